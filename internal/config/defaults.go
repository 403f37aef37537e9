package config

// Default values for configuration options. An empty cache_dir resolves to
// the system temporary directory.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"

	defaultStore           = StoreFile
	defaultConnectTimeout  = "10s"
	defaultRequestTimeout  = "10s"
	defaultTransferTimeout = "30m"
	defaultMaxAuthRetries  = 1
	defaultParallelUploads = 4
	defaultMaxFileSize     = "0"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			Store: defaultStore,
		},
		Network: NetworkConfig{
			ConnectTimeout:  defaultConnectTimeout,
			RequestTimeout:  defaultRequestTimeout,
			TransferTimeout: defaultTransferTimeout,
			MaxAuthRetries:  defaultMaxAuthRetries,
		},
		Transfers: TransfersConfig{
			ParallelUploads: defaultParallelUploads,
			VerifyHash:      true,
			MaxFileSize:     defaultMaxFileSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
