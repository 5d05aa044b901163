package cfssl

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/cfssl/cli/genkey"
	"github.com/cloudflare/cfssl/config"
	"github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/cloudflare/cfssl/initca"
	cfssllog "github.com/cloudflare/cfssl/log"
	"github.com/cloudflare/cfssl/signer"
	"github.com/cloudflare/cfssl/signer/local"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mtls-labs/clusterca/cert"
	"github.com/mtls-labs/clusterca/constants"
	caerrors "github.com/mtls-labs/clusterca/errors"
)

// leafUsages are the key usages of control and node certificates,
// both take part in mutual TLS as client and server.
var leafUsages = []string{"signing", "key encipherment", "server auth", "client auth"}

func init() {
	cfssllog.Level = cfssllog.LevelError
}

// SetDebug switches cfssl's own logger between error and debug level.
func SetDebug(debug bool) {
	cfssllog.Level = cfssllog.LevelError
	if debug {
		cfssllog.Level = cfssllog.LevelDebug
	}
}

// CA is a Certificate Authority backed by the cfssl local signer.
// Its zero value is unusable, use NewCA.
type CA struct {
	// mu serializes signing, the signer and the issued counter are shared.
	mu sync.Mutex

	rootCert *cert.Certificate
	root     *x509.Certificate
	signer   signer.Signer
	issued   uint64

	keyRequest  cert.KeyRequest
	certExpiry  time.Duration
	keyPassword []byte

	now func() time.Time
}

// CAOption configures a CA.
type CAOption func(*CA)

// WithKeyRequest sets the algorithm and size of generated keys.
func WithKeyRequest(k cert.KeyRequest) CAOption {
	return func(ca *CA) {
		if k.Algo != "" {
			ca.keyRequest = k
		}
	}
}

// WithCertExpiry sets the lifetime of signed control and node certificates.
func WithCertExpiry(d time.Duration) CAOption {
	return func(ca *CA) {
		if d > 0 {
			ca.certExpiry = d
		}
	}
}

// WithKeyPassword sets the password used to decrypt an encrypted root key.
func WithKeyPassword(password string) CAOption {
	return func(ca *CA) {
		if password != "" {
			ca.keyPassword = []byte(password)
		}
	}
}

// NewCA initializes a Certificate Authority without root material.
// Either GenerateCACert or SetCACert must be called before signing.
func NewCA(opts ...CAOption) *CA {
	ca := &CA{
		keyRequest: cert.KeyRequest{
			Algo: constants.DefaultKeyAlgo,
			Size: constants.DefaultKeySize,
		},
		certExpiry: constants.DefaultCertExpiry,
		now:        time.Now,
	}

	for _, o := range opts {
		o(ca)
	}

	return ca
}

// GenerateCACert generates the self-signed cluster root certificate and key.
func (ca *CA) GenerateCACert(input *cert.CACSRInput) (*cert.Certificate, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	key := input.Key
	if key.Algo == "" {
		key = ca.keyRequest
	}

	if err := ValidateKeyRequest(key); err != nil {
		return nil, err
	}

	expiry := input.Expiry
	if expiry <= 0 {
		expiry = constants.DefaultCAExpiry
	}

	log.Debugf("Creating root certificate for cluster %q: key=%s-%d, validity=%s",
		input.ClusterName, key.Algo, key.Size, expiry)

	req := &csr.CertificateRequest{
		CN: input.ClusterName,
		Names: []csr.Name{{
			O:  input.ClusterName,
			OU: cert.RoleRoot.String(),
		}},
		KeyRequest: &csr.KeyRequest{A: key.Algo, S: key.Size},
		CA: &csr.CAConfig{
			Expiry:      expiry.String(),
			PathLenZero: true,
		},
	}

	certBytes, csrBytes, keyBytes, err := initca.New(req)
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate the root certificate")
	}

	rootCert := &cert.Certificate{
		Cert: certBytes,
		Key:  keyBytes,
		Csr:  csrBytes,
	}

	if err := ca.SetCACert(rootCert); err != nil {
		return nil, err
	}

	return rootCert, nil
}

// SetCACert sets the root certificate and key and initializes the signer.
// The certificate must be a CA tagged with the root role and match the key.
func (ca *CA) SetCACert(caCert *cert.Certificate) error {
	if caCert == nil {
		return fmt.Errorf("%w: no authority material", caerrors.ErrNotFound)
	}

	parsed, err := caCert.X509()
	if err != nil {
		return err
	}

	role, err := cert.RoleOf(parsed)
	if err != nil {
		return err
	}

	if role != cert.RoleRoot || !parsed.IsCA {
		return fmt.Errorf("%w: %q is not a cluster root certificate", caerrors.ErrCorruptData, parsed.Subject.CommonName)
	}

	if err := checkValidity(parsed, ca.now()); err != nil {
		return err
	}

	priv, err := helpers.ParsePrivateKeyPEMWithPassword(caCert.Key, ca.keyPassword)
	if err != nil {
		// never echo the key material itself
		return fmt.Errorf("%w: unable to parse the root private key", caerrors.ErrCorruptData)
	}

	if !publicKeyMatches(parsed.PublicKey, priv) {
		return fmt.Errorf("%w: the root private key does not match the root certificate", caerrors.ErrCorruptData)
	}

	s, err := local.NewSigner(priv, parsed, signer.DefaultSigAlgo(priv), signingPolicy(ca.certExpiry))
	if err != nil {
		return errors.Wrap(err, "unable to initialize the signer")
	}

	ca.mu.Lock()
	defer ca.mu.Unlock()

	ca.rootCert = caCert
	ca.root = parsed
	ca.signer = s
	ca.issued = 0

	return nil
}

// GenerateKeyAndCSR generates a fresh key and a CSR whose subject encodes the
// request role, the cluster and the hostname or node UUID.
func (ca *CA) GenerateKeyAndCSR(req *cert.CertificateRequest) ([]byte, error) {
	if err := req.ValidateSubject(); err != nil {
		return nil, err
	}

	clusterName := ca.ClusterName()
	if clusterName == "" {
		return nil, errors.New("certificate authority has no root certificate")
	}

	if err := ValidateKeyRequest(ca.keyRequest); err != nil {
		return nil, err
	}

	cr := &csr.CertificateRequest{
		CN:         req.CommonName(),
		Names:      subjectNames(clusterName, req.Role),
		Hosts:      req.Hosts(),
		KeyRequest: &csr.KeyRequest{A: ca.keyRequest.Algo, S: ca.keyRequest.Size},
	}

	g := &csr.Generator{Validator: genkey.Validator}

	csrBytes, keyBytes, err := g.ProcessRequest(cr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to generate a key for %s %q", req.Role, req.CommonName())
	}

	req.Csr = csrBytes
	req.ClusterName = clusterName

	return keyBytes, nil
}

// Sign validates the request and signs it with the root key.
// The subject and subject alternative names of the result are derived from the request,
// the CSR only contributes its public key once it was checked to agree with the request.
func (ca *CA) Sign(req *cert.CertificateRequest) (*cert.Certificate, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ca.mu.Lock()
	defer ca.mu.Unlock()

	if ca.signer == nil {
		return nil, errors.New("certificate authority has no root certificate")
	}

	clusterName := ca.root.Subject.CommonName
	if req.ClusterName != "" && req.ClusterName != clusterName {
		return nil, fmt.Errorf("%w: request is for cluster %q, the authority signs for %q",
			caerrors.ErrInvalidRequest, req.ClusterName, clusterName)
	}

	if err := checkCSR(req); err != nil {
		return nil, err
	}

	now := ca.now()
	if err := checkValidity(ca.root, now); err != nil {
		return nil, err
	}

	// a leaf never outlives the root it chains to
	notAfter := now.Add(ca.certExpiry)
	if notAfter.After(ca.root.NotAfter) {
		log.Debugf("Capping %s certificate %q at the root expiry %s",
			req.Role, req.CommonName(), ca.root.NotAfter.UTC())
		notAfter = ca.root.NotAfter
	}

	certBytes, err := ca.signer.Sign(signer.SignRequest{
		Hosts:    req.Hosts(),
		Request:  string(req.Csr),
		Profile:  req.Role.String(),
		NotAfter: notAfter,
		Subject: &signer.Subject{
			CN:    req.CommonName(),
			Names: subjectNames(clusterName, req.Role),
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to sign %s certificate %q", req.Role, req.CommonName())
	}

	ca.issued++

	log.Debugf("Signed %s certificate %q (%d issued since the authority was loaded)",
		req.Role, req.CommonName(), ca.issued)

	return &cert.Certificate{
		Cert: certBytes,
		Csr:  req.Csr,
	}, nil
}

// checkValidity refuses a root that is expired or not yet valid at now.
func checkValidity(root *x509.Certificate, now time.Time) error {
	switch {
	case now.After(root.NotAfter):
		return fmt.Errorf("%w: root certificate %q expired on %s",
			caerrors.ErrCorruptData, root.Subject.CommonName, root.NotAfter.UTC())
	case now.Before(root.NotBefore):
		return fmt.Errorf("%w: root certificate %q is not valid before %s",
			caerrors.ErrCorruptData, root.Subject.CommonName, root.NotBefore.UTC())
	}

	return nil
}

// ClusterName returns the cluster name encoded in the root certificate.
func (ca *CA) ClusterName() string {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if ca.root == nil {
		return ""
	}

	return ca.root.Subject.CommonName
}

// Material returns the root certificate and key the authority signs with.
func (ca *CA) Material() *cert.Certificate {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	return ca.rootCert
}

// RootCert returns the parsed root certificate.
func (ca *CA) RootCert() *x509.Certificate {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	return ca.root
}

// Issued returns how many certificates were signed since the root was set.
func (ca *CA) Issued() uint64 {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	return ca.issued
}

// ValidateKeyRequest checks the key algorithm and size are supported.
func ValidateKeyRequest(k cert.KeyRequest) error {
	sizes := map[string][]int{
		"rsa":   {2048, 3072, 4096},
		"ecdsa": {256, 384, 521},
	}

	allowed, ok := sizes[k.Algo]
	if !ok {
		return fmt.Errorf("%w: unsupported key algorithm %q", caerrors.ErrInvalidRequest, k.Algo)
	}

	for _, s := range allowed {
		if s == k.Size {
			return nil
		}
	}

	return fmt.Errorf("%w: unsupported %s key size %d, use one of %v", caerrors.ErrInvalidRequest, k.Algo, k.Size, allowed)
}

// checkCSR makes sure the CSR is well formed, self-signed by its key and names
// what the request declares.
func checkCSR(req *cert.CertificateRequest) error {
	parsed, err := helpers.ParseCSRPEM(req.Csr)
	if err != nil {
		return fmt.Errorf("%w: unable to parse the CSR: %v", caerrors.ErrInvalidRequest, err)
	}

	if err := parsed.CheckSignature(); err != nil {
		return fmt.Errorf("%w: bad CSR signature: %v", caerrors.ErrInvalidRequest, err)
	}

	if parsed.Subject.CommonName != req.CommonName() {
		return fmt.Errorf("%w: CSR common name %q does not match %s %q",
			caerrors.ErrInvalidRequest, parsed.Subject.CommonName, req.Role, req.CommonName())
	}

	for _, ou := range parsed.Subject.OrganizationalUnit {
		if ou != req.Role.String() {
			return fmt.Errorf("%w: CSR role tag %q does not match %s", caerrors.ErrInvalidRequest, ou, req.Role)
		}
	}

	return nil
}

func subjectNames(clusterName string, role cert.Role) []csr.Name {
	return []csr.Name{{
		O:  clusterName,
		OU: role.String(),
	}}
}

func signingPolicy(expiry time.Duration) *config.Signing {
	profile := func() *config.SigningProfile {
		return &config.SigningProfile{
			Usage:        leafUsages,
			Expiry:       expiry,
			ExpiryString: expiry.String(),
		}
	}

	return &config.Signing{
		Profiles: map[string]*config.SigningProfile{
			cert.RoleControl.String(): profile(),
			cert.RoleNode.String():    profile(),
		},
		Default: profile(),
	}
}

func publicKeyMatches(pub crypto.PublicKey, priv crypto.Signer) bool {
	k, ok := priv.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return k.Equal(pub)
}
