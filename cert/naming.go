package cert

import (
	"fmt"
	"strings"

	caerrors "github.com/mtls-labs/clusterca/errors"
)

// namePlaceholder is replaced by the hostname or node UUID of an identity.
const namePlaceholder = "{name}"

// Naming maps a role to the file identifier pattern of its certificate and key.
// The identifier is the file name without the .crt/.key suffix.
type Naming map[Role]string

// DefaultNaming is the layout produced by the issuance commands in the authority directory.
var DefaultNaming = Naming{
	RoleRoot:    "cluster",
	RoleControl: "control-" + namePlaceholder,
	RoleNode:    namePlaceholder,
}

// InstalledNaming is the layout expected on the control and agent nodes once
// the operator copied the issued files over.
var InstalledNaming = Naming{
	RoleRoot:    "cluster",
	RoleControl: "control-service",
	RoleNode:    "node",
}

// Identifier returns the file identifier for an identity of the given role and name.
func (n Naming) Identifier(role Role, name string) (string, error) {
	pattern, ok := n[role]
	if !ok {
		return "", fmt.Errorf("%w: no file naming for role %q", caerrors.ErrInvalidRequest, role)
	}

	if strings.Contains(pattern, namePlaceholder) {
		if name == "" {
			return "", fmt.Errorf("%w: role %s needs a name for its file names", caerrors.ErrInvalidRequest, role)
		}
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return "", fmt.Errorf("%w: %q can't be used in a file name", caerrors.ErrInvalidRequest, name)
		}
	}

	return strings.ReplaceAll(pattern, namePlaceholder, name), nil
}

// AuthorityIdentifier returns the file identifier of the cluster authority.
func (n Naming) AuthorityIdentifier() string {
	id, _ := n.Identifier(RoleRoot, "")
	return id
}
