package cert

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/cloudflare/cfssl/helpers"
	caerrors "github.com/mtls-labs/clusterca/errors"
)

// VerifyOptions narrows what Verify accepts besides the chain to the root.
type VerifyOptions struct {
	// Role, when set, is the role tag the certificate must carry.
	Role Role
	// Hostname, when set, must match the certificate subject alternative names.
	Hostname string
	// CurrentTime overrides the time used to check validity periods.
	CurrentTime time.Time
}

// Verify checks that the PEM certificate was issued by root: its issuer matches the
// root subject and its signature verifies against the root public key.
// Failures wrap ErrSignatureVerification, unparsable input wraps ErrCorruptData.
func Verify(root *x509.Certificate, certPEM []byte, opts VerifyOptions) (*x509.Certificate, error) {
	leaf, err := helpers.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", caerrors.ErrCorruptData, err)
	}

	if err := VerifyCertificate(root, leaf, opts); err != nil {
		return nil, err
	}

	return leaf, nil
}

// VerifyCertificate is Verify for an already parsed certificate.
func VerifyCertificate(root, leaf *x509.Certificate, opts VerifyOptions) error {
	if root == nil {
		return fmt.Errorf("%w: no root certificate", caerrors.ErrSignatureVerification)
	}

	if err := leaf.CheckSignatureFrom(root); err != nil {
		return fmt.Errorf("%w: %q is not signed by %q: %v",
			caerrors.ErrSignatureVerification, leaf.Subject.CommonName, root.Subject.CommonName, err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)

	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		DNSName:     opts.Hostname,
		CurrentTime: opts.CurrentTime,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", caerrors.ErrSignatureVerification, err)
	}

	if opts.Role != "" {
		role, err := RoleOf(leaf)
		if err != nil {
			return fmt.Errorf("%w: %v", caerrors.ErrSignatureVerification, err)
		}
		if role != opts.Role {
			return fmt.Errorf("%w: certificate %q has role %s, expected %s",
				caerrors.ErrSignatureVerification, leaf.Subject.CommonName, role, opts.Role)
		}
	}

	return nil
}
