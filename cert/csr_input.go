package cert

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	caerrors "github.com/mtls-labs/clusterca/errors"
	"github.com/mtls-labs/clusterca/utils"
)

// maxCommonNameLength is the upper bound RFC 5280 puts on a common name.
const maxCommonNameLength = 64

// KeyRequest selects the algorithm and size of generated private keys.
type KeyRequest struct {
	Algo string
	Size int
}

// CACSRInput is the input used to create the cluster root certificate.
type CACSRInput struct {
	ClusterName string
	Key         KeyRequest
	Expiry      time.Duration
}

// Validate checks the cluster name can be encoded in the root subject.
func (i *CACSRInput) Validate() error {
	return ValidateClusterName(i.ClusterName)
}

// CertificateRequest asks the authority to sign a certificate for a cluster role.
type CertificateRequest struct {
	Role        Role
	ClusterName string
	// Hostname is the DNS name of the control service, required for RoleControl.
	Hostname string
	// NodeID is the UUID of the node, required for RoleNode.
	NodeID string
	// Csr is the PEM encoded certificate signing request.
	Csr []byte
}

// CommonName returns the subject common name the request asks for.
func (r *CertificateRequest) CommonName() string {
	switch r.Role {
	case RoleControl:
		return r.Hostname
	case RoleNode:
		return r.NodeID
	default:
		return ""
	}
}

// Hosts returns the subject alternative names the request asks for.
func (r *CertificateRequest) Hosts() []string {
	switch r.Role {
	case RoleControl:
		return []string{r.Hostname}
	case RoleNode:
		return []string{NodeURN(r.NodeID)}
	default:
		return nil
	}
}

// Validate reports every role specific field that is absent or malformed, as well as a missing CSR.
// The returned error wraps ErrInvalidRequest.
func (r *CertificateRequest) Validate() error {
	return r.validate(true)
}

// ValidateSubject is Validate without the CSR check, used before the CSR is generated.
func (r *CertificateRequest) ValidateSubject() error {
	return r.validate(false)
}

func (r *CertificateRequest) validate(withCSR bool) error {
	var result *multierror.Error

	switch r.Role {
	case RoleControl:
		if r.Hostname == "" {
			result = multierror.Append(result, fmt.Errorf("hostname is required for role %s", r.Role))
		} else if _, err := ValidateHostname(r.Hostname); err != nil {
			result = multierror.Append(result, err)
		}
		if r.NodeID != "" {
			result = multierror.Append(result, fmt.Errorf("node id is not allowed for role %s", r.Role))
		}
	case RoleNode:
		if r.NodeID == "" {
			result = multierror.Append(result, fmt.Errorf("node id is required for role %s", r.Role))
		} else if _, err := uuid.Parse(r.NodeID); err != nil {
			result = multierror.Append(result, fmt.Errorf("node id %q is not a UUID: %v", r.NodeID, err))
		}
		if r.Hostname != "" {
			result = multierror.Append(result, fmt.Errorf("hostname is not allowed for role %s", r.Role))
		}
	case RoleRoot:
		result = multierror.Append(result, fmt.Errorf("role %s can't be requested from the authority", r.Role))
	default:
		result = multierror.Append(result, fmt.Errorf("unknown role %q", r.Role))
	}

	if withCSR && len(r.Csr) == 0 {
		result = multierror.Append(result, fmt.Errorf("certificate signing request is empty"))
	}

	if result != nil {
		result.ErrorFormat = joinErrors
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", caerrors.ErrInvalidRequest, err)
	}

	return nil
}

func joinErrors(errs []error) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateClusterName checks a cluster name can be used as the root common name.
func ValidateClusterName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: cluster name is empty", caerrors.ErrInvalidRequest)
	case utf8.RuneCountInString(name) > maxCommonNameLength:
		return fmt.Errorf("%w: cluster name is longer than %d characters", caerrors.ErrInvalidRequest, maxCommonNameLength)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: cluster name has leading or trailing spaces", caerrors.ErrInvalidRequest)
	}

	if utils.StripNonPrintChars(name) != name {
		return fmt.Errorf("%w: cluster name contains non printable characters", caerrors.ErrInvalidRequest)
	}

	return nil
}

// NodeURN returns the URI subject alternative name of a node certificate.
func NodeURN(nodeID string) string {
	return "urn:uuid:" + nodeID
}
