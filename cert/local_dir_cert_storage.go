package cert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mtls-labs/clusterca/constants"
	caerrors "github.com/mtls-labs/clusterca/errors"
	"github.com/mtls-labs/clusterca/utils"
)

// LocalDirCertStorage is a certificate storage, that stores certificates in a local directory.
// Every identity is kept as <identifier>.crt and <identifier>.key, identifiers follow the Naming table.
// File permissions beyond the defaults are left to the operator.
type LocalDirCertStorage struct {
	dir    string
	naming Naming
}

// NewLocalDirCertStorage inits a new LocalDirCertStorage.
func NewLocalDirCertStorage(dir string, naming Naming) *LocalDirCertStorage {
	if naming == nil {
		naming = DefaultNaming
	}

	return &LocalDirCertStorage{
		dir:    dir,
		naming: naming,
	}
}

// Dir returns the directory the storage works in.
func (c *LocalDirCertStorage) Dir() string {
	return c.dir
}

// Naming returns the naming table of the storage.
func (c *LocalDirCertStorage) Naming() Naming {
	return c.naming
}

// CertAbsFilename returns the path of the certificate file of an identifier.
func (c *LocalDirCertStorage) CertAbsFilename(identifier string) string {
	return filepath.Join(c.dir, identifier+constants.CertFileSuffix)
}

// KeyAbsFilename returns the path of the key file of an identifier.
func (c *LocalDirCertStorage) KeyAbsFilename(identifier string) string {
	return filepath.Join(c.dir, identifier+constants.KeyFileSuffix)
}

// HasCaCert reports whether the authority certificate or key is present.
func (c *LocalDirCertStorage) HasCaCert() bool {
	id := c.naming.AuthorityIdentifier()
	return utils.AnyFileExists(c.CertAbsFilename(id), c.KeyAbsFilename(id))
}

// LoadCaCert loads the authority certificate and key from disk.
func (c *LocalDirCertStorage) LoadCaCert() (*Certificate, error) {
	return c.load(c.naming.AuthorityIdentifier())
}

// StoreCaCert stores the authority certificate and key on disk.
// Existing authority material is never replaced.
func (c *LocalDirCertStorage) StoreCaCert(cert *Certificate) error {
	if c.HasCaCert() {
		return fmt.Errorf("%w: authority material exists in %s", caerrors.ErrAlreadyInitialized, c.dir)
	}

	err := c.store(c.naming.AuthorityIdentifier(), cert)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: authority material exists in %s", caerrors.ErrAlreadyInitialized, c.dir)
	}

	return err
}

// LoadIdentity loads the certificate and key stored under identifier.
func (c *LocalDirCertStorage) LoadIdentity(identifier string) (*Certificate, error) {
	return c.load(identifier)
}

// StoreIdentity stores the certificate and key of an issued identity under identifier.
func (c *LocalDirCertStorage) StoreIdentity(identifier string, cert *Certificate) error {
	if identifier == c.naming.AuthorityIdentifier() {
		return fmt.Errorf("%w: identifier %q is reserved for the authority", caerrors.ErrInvalidRequest, identifier)
	}

	return c.store(identifier, cert)
}

// ListIdentities returns the sorted identifiers of all certificates in the directory
// except the authority itself.
func (c *LocalDirCertStorage) ListIdentities() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*"+constants.CertFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", caerrors.ErrIO, err)
	}

	authority := c.naming.AuthorityIdentifier()

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), constants.CertFileSuffix)
		if id == authority {
			continue
		}
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

func (c *LocalDirCertStorage) load(identifier string) (*Certificate, error) {
	certPath := c.CertAbsFilename(identifier)
	keyPath := c.KeyAbsFilename(identifier)

	log.Debugf("loading certificate %s and key %s", certPath, keyPath)

	cert := &Certificate{}

	var err error
	if cert.Cert, err = readArtifact(certPath); err != nil {
		return nil, err
	}

	if cert.Key, err = readArtifact(keyPath); err != nil {
		return nil, err
	}

	if _, err := cert.X509(); err != nil {
		return nil, fmt.Errorf("%s: %w", certPath, err)
	}

	if err := cert.CheckKeyBlock(); err != nil {
		return nil, fmt.Errorf("%s: %w", keyPath, err)
	}

	return cert, nil
}

func (c *LocalDirCertStorage) store(identifier string, cert *Certificate) error {
	if cert == nil || len(cert.Cert) == 0 || len(cert.Key) == 0 {
		return fmt.Errorf("%w: certificate and key are both required to store %q", caerrors.ErrInvalidRequest, identifier)
	}

	if err := utils.CreateDirectory(c.dir, constants.PermissionsDir); err != nil {
		return fmt.Errorf("%w: %w", caerrors.ErrIO, err)
	}

	err := utils.WriteFiles([]utils.FileSpec{
		{Path: c.CertAbsFilename(identifier), Content: cert.Cert, Perm: constants.PermissionsCert},
		{Path: c.KeyAbsFilename(identifier), Content: cert.Key, Perm: constants.PermissionsKey},
	}, false)
	if err != nil {
		return fmt.Errorf("%w: %w", caerrors.ErrIO, err)
	}

	return nil
}

func readArtifact(path string) ([]byte, error) {
	b, err := utils.ReadFileContent(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", caerrors.ErrNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", caerrors.ErrIO, err)
	}

	return b, nil
}
