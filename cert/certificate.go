package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/cloudflare/cfssl/helpers"
	caerrors "github.com/mtls-labs/clusterca/errors"
)

// Certificate stores the combination of Cert and Key along with the CSR if available.
// All three are PEM encoded.
type Certificate struct {
	Cert []byte
	Key  []byte
	Csr  []byte
}

// X509 parses the PEM certificate.
func (c *Certificate) X509() (*x509.Certificate, error) {
	if len(c.Cert) == 0 {
		return nil, fmt.Errorf("%w: empty certificate", caerrors.ErrCorruptData)
	}

	parsed, err := helpers.ParseCertificatePEM(c.Cert)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", caerrors.ErrCorruptData, err)
	}

	return parsed, nil
}

// CheckKeyBlock makes sure Key holds a single PEM block without parsing the key itself,
// since the key might be encrypted.
func (c *Certificate) CheckKeyBlock() error {
	block, rest := pem.Decode(c.Key)
	if block == nil {
		return fmt.Errorf("%w: no PEM block in private key", caerrors.ErrCorruptData)
	}

	if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
		return fmt.Errorf("%w: unexpected PEM block %q in private key", caerrors.ErrCorruptData, block.Type)
	}

	if len(strings.TrimSpace(string(rest))) != 0 {
		return fmt.Errorf("%w: trailing data after private key", caerrors.ErrCorruptData)
	}

	return nil
}

// Fingerprint returns the hex encoded SHA-256 digest of the DER certificate.
func Fingerprint(c *x509.Certificate) string {
	sum := sha256.Sum256(c.Raw)
	return hex.EncodeToString(sum[:])
}
