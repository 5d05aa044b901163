package cfssl

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/cloudflare/cfssl/helpers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mtls-labs/clusterca/cert"
	caerrors "github.com/mtls-labs/clusterca/errors"
)

var testKey = cert.KeyRequest{Algo: "ecdsa", Size: 256}

func newTestCA(t *testing.T, clusterName string, opts ...CAOption) (*CA, *cert.Certificate) {
	t.Helper()

	ca := NewCA(append([]CAOption{WithKeyRequest(testKey)}, opts...)...)

	root, err := ca.GenerateCACert(&cert.CACSRInput{ClusterName: clusterName})
	require.NoError(t, err)

	return ca, root
}

func newRequest(t *testing.T, ca *CA, role cert.Role, name string) (*cert.CertificateRequest, []byte) {
	t.Helper()

	req := &cert.CertificateRequest{Role: role}
	switch role {
	case cert.RoleControl:
		req.Hostname = name
	case cert.RoleNode:
		req.NodeID = name
	}

	key, err := ca.GenerateKeyAndCSR(req)
	require.NoError(t, err)

	return req, key
}

func TestGenerateCACert(t *testing.T) {
	ca, root := newTestCA(t, "mycluster")

	parsed, err := root.X509()
	require.NoError(t, err)

	assert.Equal(t, "mycluster", parsed.Subject.CommonName)
	assert.Equal(t, []string{"mycluster"}, parsed.Subject.Organization)
	assert.Equal(t, []string{"root"}, parsed.Subject.OrganizationalUnit)
	assert.Equal(t, parsed.Subject.String(), parsed.Issuer.String())
	assert.True(t, parsed.IsCA)
	assert.NotEmpty(t, root.Key)
	assert.NotEmpty(t, root.Csr)

	// self-signed: verifies against its own public key
	require.NoError(t, parsed.CheckSignatureFrom(parsed))
	_, err = cert.Verify(parsed, root.Cert, cert.VerifyOptions{Role: cert.RoleRoot})
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(20*365*24*time.Hour), parsed.NotAfter, 24*time.Hour)
	assert.Equal(t, "mycluster", ca.ClusterName())
	assert.Equal(t, root, ca.Material())
}

func TestGenerateCACertRSA(t *testing.T) {
	ca := NewCA(WithKeyRequest(cert.KeyRequest{Algo: "rsa", Size: 2048}))

	root, err := ca.GenerateCACert(&cert.CACSRInput{ClusterName: "rsa-cluster", Expiry: 48 * time.Hour})
	require.NoError(t, err)

	parsed, err := root.X509()
	require.NoError(t, err)

	assert.Equal(t, x509.RSA, parsed.PublicKeyAlgorithm)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), parsed.NotAfter, time.Hour)
}

func TestGenerateCACertInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input *cert.CACSRInput
	}{
		{
			name:  "empty cluster name",
			input: &cert.CACSRInput{ClusterName: ""},
		},
		{
			name:  "cluster name with control characters",
			input: &cert.CACSRInput{ClusterName: "my\ncluster"},
		},
		{
			name:  "unsupported key size",
			input: &cert.CACSRInput{ClusterName: "mycluster", Key: cert.KeyRequest{Algo: "rsa", Size: 1024}},
		},
		{
			name:  "unsupported key algorithm",
			input: &cert.CACSRInput{ClusterName: "mycluster", Key: cert.KeyRequest{Algo: "dsa", Size: 2048}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca := NewCA(WithKeyRequest(testKey))

			_, err := ca.GenerateCACert(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, caerrors.ErrInvalidRequest), "unexpected error kind: %v", err)
			assert.Nil(t, ca.RootCert())
		})
	}
}

func TestSignControl(t *testing.T) {
	ca, root := newTestCA(t, "mycluster", WithCertExpiry(72*time.Hour))
	rootX509, err := root.X509()
	require.NoError(t, err)

	req, key := newRequest(t, ca, cert.RoleControl, "ctrl.example.com")

	signed, err := ca.Sign(req)
	require.NoError(t, err)
	assert.Empty(t, signed.Key)
	assert.NotEmpty(t, key)

	leaf, err := cert.Verify(rootX509, signed.Cert, cert.VerifyOptions{
		Role:     cert.RoleControl,
		Hostname: "ctrl.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, rootX509.Subject.String(), leaf.Issuer.String())
	assert.Equal(t, "ctrl.example.com", leaf.Subject.CommonName)
	assert.Equal(t, []string{"mycluster"}, leaf.Subject.Organization)
	assert.Equal(t, []string{"ctrl.example.com"}, leaf.DNSNames)
	assert.Empty(t, leaf.IPAddresses)
	assert.False(t, leaf.IsCA)
	assert.Contains(t, leaf.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	assert.Contains(t, leaf.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), leaf.NotAfter, time.Hour)
	assert.Equal(t, uint64(1), ca.Issued())
}

func TestSignNode(t *testing.T) {
	ca, root := newTestCA(t, "mycluster")
	rootX509, err := root.X509()
	require.NoError(t, err)

	id := uuid.NewString()
	req, _ := newRequest(t, ca, cert.RoleNode, id)

	signed, err := ca.Sign(req)
	require.NoError(t, err)

	leaf, err := cert.Verify(rootX509, signed.Cert, cert.VerifyOptions{Role: cert.RoleNode})
	require.NoError(t, err)

	assert.Equal(t, id, leaf.Subject.CommonName)
	assert.Empty(t, leaf.DNSNames)
	require.Len(t, leaf.URIs, 1)
	assert.Equal(t, cert.NodeURN(id), leaf.URIs[0].String())
}

func TestSignInvalidRequest(t *testing.T) {
	ca, _ := newTestCA(t, "mycluster")

	controlReq, _ := newRequest(t, ca, cert.RoleControl, "ctrl.example.com")
	nodeReq, _ := newRequest(t, ca, cert.RoleNode, uuid.NewString())

	tests := []struct {
		name string
		req  *cert.CertificateRequest
	}{
		{
			name: "control without hostname",
			req:  &cert.CertificateRequest{Role: cert.RoleControl, Csr: controlReq.Csr},
		},
		{
			name: "control with ip literal",
			req:  &cert.CertificateRequest{Role: cert.RoleControl, Hostname: "192.0.2.1", Csr: controlReq.Csr},
		},
		{
			name: "node without uuid",
			req:  &cert.CertificateRequest{Role: cert.RoleNode, Csr: nodeReq.Csr},
		},
		{
			name: "node with malformed uuid",
			req:  &cert.CertificateRequest{Role: cert.RoleNode, NodeID: "not-a-uuid", Csr: nodeReq.Csr},
		},
		{
			name: "root role",
			req:  &cert.CertificateRequest{Role: cert.RoleRoot, Csr: controlReq.Csr},
		},
		{
			name: "unknown role",
			req:  &cert.CertificateRequest{Role: cert.Role("user"), Csr: controlReq.Csr},
		},
		{
			name: "missing csr",
			req:  &cert.CertificateRequest{Role: cert.RoleControl, Hostname: "ctrl.example.com"},
		},
		{
			name: "garbage csr",
			req:  &cert.CertificateRequest{Role: cert.RoleControl, Hostname: "ctrl.example.com", Csr: []byte("garbage")},
		},
		{
			name: "csr for another hostname",
			req:  &cert.CertificateRequest{Role: cert.RoleControl, Hostname: "other.example.com", Csr: controlReq.Csr},
		},
		{
			name: "csr for another role",
			req:  &cert.CertificateRequest{Role: cert.RoleNode, NodeID: nodeReq.NodeID, Csr: controlReq.Csr},
		},
		{
			name: "another cluster",
			req: &cert.CertificateRequest{
				Role:        cert.RoleControl,
				ClusterName: "othercluster",
				Hostname:    "ctrl.example.com",
				Csr:         controlReq.Csr,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ca.Sign(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, caerrors.ErrInvalidRequest), "unexpected error kind: %v", err)
		})
	}

	assert.Equal(t, uint64(0), ca.Issued())
}

func TestSignWithoutRoot(t *testing.T) {
	ca, _ := newTestCA(t, "mycluster")
	req, _ := newRequest(t, ca, cert.RoleControl, "ctrl.example.com")

	_, err := NewCA().Sign(req)
	require.Error(t, err)

	_, err = NewCA().GenerateKeyAndCSR(&cert.CertificateRequest{Role: cert.RoleControl, Hostname: "ctrl.example.com"})
	require.Error(t, err)
}

func TestSetCACert(t *testing.T) {
	_, root := newTestCA(t, "mycluster")
	_, other := newTestCA(t, "othercluster")

	ca := NewCA(WithKeyRequest(testKey))
	require.NoError(t, ca.SetCACert(&cert.Certificate{Cert: root.Cert, Key: root.Key}))
	assert.Equal(t, "mycluster", ca.ClusterName())

	// a certificate issued by the loaded authority chains to the original root
	req, _ := newRequest(t, ca, cert.RoleNode, uuid.NewString())
	signed, err := ca.Sign(req)
	require.NoError(t, err)

	rootX509, err := root.X509()
	require.NoError(t, err)
	_, err = cert.Verify(rootX509, signed.Cert, cert.VerifyOptions{})
	require.NoError(t, err)

	// and does not chain to another cluster
	otherX509, err := other.X509()
	require.NoError(t, err)
	_, err = cert.Verify(otherX509, signed.Cert, cert.VerifyOptions{})
	assert.True(t, errors.Is(err, caerrors.ErrSignatureVerification), "unexpected error kind: %v", err)
}

func TestSetCACertCorrupt(t *testing.T) {
	ca, root := newTestCA(t, "mycluster")
	_, other := newTestCA(t, "othercluster")

	req, key := newRequest(t, ca, cert.RoleControl, "ctrl.example.com")
	leaf, err := ca.Sign(req)
	require.NoError(t, err)

	tests := []struct {
		name     string
		material *cert.Certificate
	}{
		{
			name:     "key of another authority",
			material: &cert.Certificate{Cert: root.Cert, Key: other.Key},
		},
		{
			name:     "leaf certificate",
			material: &cert.Certificate{Cert: leaf.Cert, Key: key},
		},
		{
			name:     "garbage certificate",
			material: &cert.Certificate{Cert: []byte("garbage"), Key: root.Key},
		},
		{
			name:     "garbage key",
			material: &cert.Certificate{Cert: root.Cert, Key: []byte("garbage")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCA().SetCACert(tt.material)
			require.Error(t, err)
			assert.True(t, errors.Is(err, caerrors.ErrCorruptData), "unexpected error kind: %v", err)
			assert.NotContains(t, err.Error(), string(tt.material.Key))
		})
	}
}

func TestSetCACertEncryptedKey(t *testing.T) {
	_, root := newTestCA(t, "mycluster")

	priv, err := helpers.ParsePrivateKeyPEM(root.Key)
	require.NoError(t, err)
	ecKey, ok := priv.(*ecdsa.PrivateKey)
	require.True(t, ok)

	der, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)

	//nolint:staticcheck // legacy PEM encryption is what operators get from openssl -aes256
	block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der, []byte("s3cret"), x509.PEMCipherAES256)
	require.NoError(t, err)

	encrypted := &cert.Certificate{Cert: root.Cert, Key: pem.EncodeToMemory(block)}

	err = NewCA().SetCACert(encrypted)
	assert.True(t, errors.Is(err, caerrors.ErrCorruptData), "unexpected error kind: %v", err)

	err = NewCA(WithKeyPassword("wrong")).SetCACert(encrypted)
	assert.True(t, errors.Is(err, caerrors.ErrCorruptData), "unexpected error kind: %v", err)

	ca := NewCA(WithKeyRequest(testKey), WithKeyPassword("s3cret"))
	require.NoError(t, ca.SetCACert(encrypted))

	req, _ := newRequest(t, ca, cert.RoleNode, uuid.NewString())
	_, err = ca.Sign(req)
	require.NoError(t, err)
}

func TestSignConcurrent(t *testing.T) {
	ca, root := newTestCA(t, "mycluster")
	rootX509, err := root.X509()
	require.NoError(t, err)

	const workers = 16

	reqs := make([]*cert.CertificateRequest, workers)
	for i := range reqs {
		reqs[i], _ = newRequest(t, ca, cert.RoleNode, uuid.NewString())
	}

	signed := make([]*cert.Certificate, workers)

	var g errgroup.Group
	for i := range reqs {
		i := i
		g.Go(func() error {
			var err error
			signed[i], err = ca.Sign(reqs[i])
			return err
		})
	}
	require.NoError(t, g.Wait())

	serials := map[string]struct{}{}
	for _, s := range signed {
		leaf, err := cert.Verify(rootX509, s.Cert, cert.VerifyOptions{Role: cert.RoleNode})
		require.NoError(t, err)
		serials[leaf.SerialNumber.String()] = struct{}{}
	}

	assert.Len(t, serials, workers)
	assert.Equal(t, uint64(workers), ca.Issued())
}

func TestValidateKeyRequest(t *testing.T) {
	tests := []struct {
		key     cert.KeyRequest
		wantErr bool
	}{
		{key: cert.KeyRequest{Algo: "rsa", Size: 4096}},
		{key: cert.KeyRequest{Algo: "rsa", Size: 2048}},
		{key: cert.KeyRequest{Algo: "ecdsa", Size: 384}},
		{key: cert.KeyRequest{Algo: "rsa", Size: 1024}, wantErr: true},
		{key: cert.KeyRequest{Algo: "ecdsa", Size: 2048}, wantErr: true},
		{key: cert.KeyRequest{Algo: "ed448", Size: 448}, wantErr: true},
	}
	for _, tt := range tests {
		err := ValidateKeyRequest(tt.key)
		if tt.wantErr {
			assert.True(t, errors.Is(err, caerrors.ErrInvalidRequest), "%v: unexpected error %v", tt.key, err)
			continue
		}
		assert.NoError(t, err, "%v", tt.key)
	}
}

func TestSignCapsLeafAtRootExpiry(t *testing.T) {
	ca := NewCA(WithKeyRequest(testKey))
	root, err := ca.GenerateCACert(&cert.CACSRInput{ClusterName: "mycluster", Expiry: time.Hour})
	require.NoError(t, err)

	rootX509, err := root.X509()
	require.NoError(t, err)

	req, _ := newRequest(t, ca, cert.RoleControl, "ctrl.example.com")
	signed, err := ca.Sign(req)
	require.NoError(t, err)

	leaf, err := signed.X509()
	require.NoError(t, err)
	assert.False(t, leaf.NotAfter.After(rootX509.NotAfter),
		"leaf expires %s, after the root %s", leaf.NotAfter, rootX509.NotAfter)

	// the leaf still chains to the root until the root expires
	_, err = cert.Verify(rootX509, signed.Cert, cert.VerifyOptions{
		Hostname:    "ctrl.example.com",
		CurrentTime: rootX509.NotAfter.Add(-time.Minute),
	})
	require.NoError(t, err)

	// a leaf lifetime shorter than the root is kept as is
	ca = NewCA(WithKeyRequest(testKey), WithCertExpiry(10*time.Minute))
	require.NoError(t, ca.SetCACert(root))

	req, _ = newRequest(t, ca, cert.RoleNode, uuid.NewString())
	signed, err = ca.Sign(req)
	require.NoError(t, err)

	leaf, err = signed.X509()
	require.NoError(t, err)
	assert.True(t, leaf.NotAfter.Before(rootX509.NotAfter))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), leaf.NotAfter, time.Minute)
}

func TestRootValidity(t *testing.T) {
	_, root := newTestCA(t, "mycluster")

	rootX509, err := root.X509()
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
	}{
		{
			name: "expired root",
			now:  rootX509.NotAfter.Add(time.Second),
		},
		{
			name: "root not yet valid",
			now:  rootX509.NotBefore.Add(-time.Second),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca := NewCA(WithKeyRequest(testKey))
			ca.now = func() time.Time { return tt.now }

			err := ca.SetCACert(root)
			require.Error(t, err)
			assert.True(t, errors.Is(err, caerrors.ErrCorruptData), "unexpected error kind: %v", err)
		})
	}

	t.Run("root expiring while loaded", func(t *testing.T) {
		ca := NewCA(WithKeyRequest(testKey))
		require.NoError(t, ca.SetCACert(root))

		ca.now = func() time.Time { return rootX509.NotAfter.Add(time.Second) }

		req, _ := newRequest(t, ca, cert.RoleNode, uuid.NewString())
		_, err := ca.Sign(req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, caerrors.ErrCorruptData), "unexpected error kind: %v", err)
		assert.Equal(t, uint64(0), ca.Issued())
	})
}
