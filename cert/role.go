package cert

import (
	"crypto/x509"
	"fmt"

	caerrors "github.com/mtls-labs/clusterca/errors"
)

// Role tags what a certificate identifies inside the cluster.
// It is carried in the OrganizationalUnit of the certificate subject.
type Role string

const (
	RoleRoot    Role = "root"
	RoleControl Role = "control"
	RoleNode    Role = "node"
)

// Roles lists all known roles.
var Roles = []Role{RoleRoot, RoleControl, RoleNode}

func (r Role) String() string {
	return string(r)
}

// ParseRole returns the Role matching s.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q", caerrors.ErrInvalidRequest, s)
}

// RoleOf returns the role tag of a parsed certificate.
func RoleOf(c *x509.Certificate) (Role, error) {
	if len(c.Subject.OrganizationalUnit) != 1 {
		return "", fmt.Errorf("%w: certificate %q carries %d role tags",
			caerrors.ErrCorruptData, c.Subject.CommonName, len(c.Subject.OrganizationalUnit))
	}

	r, err := ParseRole(c.Subject.OrganizationalUnit[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", caerrors.ErrCorruptData, err)
	}

	return r, nil
}
