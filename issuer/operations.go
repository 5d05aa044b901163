package issuer

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mtls-labs/clusterca/cert"
	caerrors "github.com/mtls-labs/clusterca/errors"
)

// Initialize creates the cluster authority and persists it in store.
// It refuses to run when the store already holds authority material, which is left untouched.
func Initialize(ca cert.CertificateAuthority, store cert.CertStorage, input *cert.CACSRInput) (*cert.Certificate, error) {
	if store.HasCaCert() {
		return nil, fmt.Errorf("%w: refusing to replace the existing root key", caerrors.ErrAlreadyInitialized)
	}

	root, err := ca.GenerateCACert(input)
	if err != nil {
		return nil, err
	}

	if err := store.StoreCaCert(root); err != nil {
		return nil, err
	}

	log.Infof("Initialized certificate authority for cluster %q", input.ClusterName)

	return root, nil
}

// LoadAuthority loads the authority material from store into ca.
func LoadAuthority(ca cert.CertificateAuthority, store cert.CertStorage) error {
	root, err := store.LoadCaCert()
	if err != nil {
		return err
	}

	return ca.SetCACert(root)
}

// Save persists an issued identity in store under its identifier.
func Save(store cert.CertStorage, id *Identity) error {
	if err := store.StoreIdentity(id.Identifier, id.Certificate); err != nil {
		return err
	}

	log.Infof("Created %s certificate %q", id.Role, id.Identifier)

	return nil
}
