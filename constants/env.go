package constants

const (
	// EnvPrefix prefixes every environment variable bound to a command line flag.
	EnvPrefix = "CLUSTERCA"

	// EnvCAKeyPassword holds the password of an encrypted cluster.key.
	EnvCAKeyPassword = "CLUSTERCA_CA_KEY_PASSWORD"
)
