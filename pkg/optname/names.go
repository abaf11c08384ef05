package optname

const (
	Backend        = "backend"
	BundleDir      = "bundle-dir"
	ConnTimeout    = "connect-timeout"
	DisableIPv6    = "disable-ipv6"
	Extract        = "extract"
	Force          = "force"
	LoggingLevel   = "log-level"
	ReadTimeout    = "read-timeout"
	Resolve        = "resolve"
	Retries        = "retries"
	SettingsFile   = "settings"
	SHA256         = "sha256"
	Verbose        = "verbose"
	VerboseBackend = "verbose-backend"
)
