package cert

// CertStorage defines the interface used to manage certificate storage.
type CertStorage interface {
	// HasCaCert reports whether any authority artifact exists.
	HasCaCert() bool
	LoadCaCert() (*Certificate, error)
	// StoreCaCert persists the authority, refusing to replace existing material.
	StoreCaCert(cert *Certificate) error
	LoadIdentity(identifier string) (*Certificate, error)
	StoreIdentity(identifier string, cert *Certificate) error
	// ListIdentities returns the identifiers of all stored certificates but the authority.
	ListIdentities() ([]string, error)
}
