// Package issuer turns cluster roles into signed identities: it builds the
// certificate request for a control service or an agent node, has the cluster
// authority sign it and hands back certificate and key.
package issuer

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mtls-labs/clusterca/cert"
)

// Identity is an issued certificate together with its private key.
// The caller owns it and is responsible for persisting and distributing it.
type Identity struct {
	Role cert.Role
	// Identifier is the file name stem given by the naming convention.
	Identifier string
	// Hostname is set for control service identities.
	Hostname string
	// NodeID is set for node identities.
	NodeID string

	*cert.Certificate
}

// Issuer builds certificate requests and delegates their signing to a CertificateAuthority.
type Issuer struct {
	ca        cert.CertificateAuthority
	naming    cert.Naming
	newNodeID func() (uuid.UUID, error)
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithNaming sets the naming convention used to derive identity identifiers.
func WithNaming(n cert.Naming) Option {
	return func(i *Issuer) {
		i.naming = n
	}
}

// WithNodeIDGenerator replaces the UUID generator of node identities.
func WithNodeIDGenerator(f func() (uuid.UUID, error)) Option {
	return func(i *Issuer) {
		i.newNodeID = f
	}
}

// New returns an Issuer signing with ca.
func New(ca cert.CertificateAuthority, opts ...Option) *Issuer {
	i := &Issuer{
		ca:        ca,
		naming:    cert.DefaultNaming,
		newNodeID: NewNodeID,
	}

	for _, o := range opts {
		o(i)
	}

	return i
}

// NewNodeID returns a random (version 4) UUID.
func NewNodeID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

// CreateControlIdentity issues the control service identity for hostname.
// The hostname must be a DNS name, IP literals are refused with ErrInvalidHostname.
func (i *Issuer) CreateControlIdentity(hostname string) (*Identity, error) {
	h, err := cert.ValidateHostname(hostname)
	if err != nil {
		return nil, err
	}

	return i.issue(&cert.CertificateRequest{
		Role:     cert.RoleControl,
		Hostname: h,
	})
}

// CreateNodeIdentity issues the identity of a new agent node under a fresh UUID.
func (i *Issuer) CreateNodeIdentity() (*Identity, error) {
	id, err := i.newNodeID()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate node UUID")
	}

	return i.issue(&cert.CertificateRequest{
		Role:   cert.RoleNode,
		NodeID: id.String(),
	})
}

func (i *Issuer) issue(req *cert.CertificateRequest) (*Identity, error) {
	identifier, err := i.naming.Identifier(req.Role, req.CommonName())
	if err != nil {
		return nil, err
	}

	key, err := i.ca.GenerateKeyAndCSR(req)
	if err != nil {
		return nil, err
	}

	signed, err := i.ca.Sign(req)
	if err != nil {
		return nil, err
	}

	log.Debugf("Issued %s identity %q", req.Role, identifier)

	return &Identity{
		Role:       req.Role,
		Identifier: identifier,
		Hostname:   req.Hostname,
		NodeID:     req.NodeID,
		Certificate: &cert.Certificate{
			Cert: signed.Cert,
			Key:  key,
			Csr:  signed.Csr,
		},
	}, nil
}
