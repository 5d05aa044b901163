package cert

import "crypto/x509"

// CertificateAuthority is the interface satisfied by the CertificateAuthority implementation.
// It is used to generate the cluster root certificate as well as control and node
// certificates signed by the root.
type CertificateAuthority interface {
	// SetCACert loads the root certificate and key of an existing authority.
	SetCACert(cert *Certificate) error
	// GenerateCACert generates the self-signed root certificate and key of a new authority.
	GenerateCACert(input *CACSRInput) (*Certificate, error)
	// GenerateKeyAndCSR generates a fresh private key and a CSR for the request.
	// The CSR is stored in req.Csr and the PEM encoded key is returned.
	GenerateKeyAndCSR(req *CertificateRequest) ([]byte, error)
	// Sign validates the request and signs it with the root key.
	// The returned Certificate holds the certificate and the CSR, never a key.
	Sign(req *CertificateRequest) (*Certificate, error)
	// ClusterName returns the cluster name encoded in the root certificate.
	ClusterName() string
	// RootCert returns the parsed root certificate.
	RootCert() *x509.Certificate
}
