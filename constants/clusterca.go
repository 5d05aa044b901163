package constants

import (
	"os"
	"time"
)

const (
	ClusterCA = "clusterca"

	NotApplicable = "N/A"
)

const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

const (
	CertFileSuffix = ".crt"
	KeyFileSuffix  = ".key"
)

const (
	PermissionsCert os.FileMode = 0o644
	PermissionsKey  os.FileMode = 0o600
	PermissionsDir  os.FileMode = 0o755
)

const (
	DefaultKeyAlgo = "rsa"
	DefaultKeySize = 4096

	// DefaultCAExpiry is the lifetime of the cluster root certificate.
	DefaultCAExpiry = 20 * 365 * 24 * time.Hour
	// DefaultCertExpiry is the lifetime of control and node certificates.
	DefaultCertExpiry = 5 * 365 * 24 * time.Hour
)
