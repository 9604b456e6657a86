package config

const (
	defaultConfigPath        = "~/.config/betamode/config.toml"
	defaultLogDir            = "~/.local/share/betamode/logs"
	defaultWorkDir           = "~/.local/share/betamode/work"
	defaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) betamode"
	defaultFetchMaxBytes     = 32 << 20
	defaultFetchRate         = 8
	defaultFetchBurst        = 4
	defaultDetectorBoxFormat = "xyxy"
	defaultMaxDimension      = 2000
	defaultQuality           = 60
	defaultMaxInboundBytes   = 64 << 20
	defaultCacheMaxMiB       = 2048
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// DefaultCensoredLabels are the detector classes blackened when no list is configured.
var DefaultCensoredLabels = []string{
	"EXPOSED_GENITALIA_F",
	"COVERED_GENITALIA_F",
	"EXPOSED_BREAST_F",
	"EXPOSED_ANUS",
}

// DefaultAllowedSchemes are the source URI schemes the fetcher accepts.
var DefaultAllowedSchemes = []string{"http", "https", "data"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			LogDir:   defaultLogDir,
			WorkDir:  defaultWorkDir,
		},
		Fetch: Fetch{
			UserAgent:         defaultUserAgent,
			MaxBytes:          defaultFetchMaxBytes,
			RequestsPerSecond: defaultFetchRate,
			Burst:             defaultFetchBurst,
			AllowedSchemes:    append([]string(nil), DefaultAllowedSchemes...),
		},
		Detector: Detector{
			BoxFormat:      defaultDetectorBoxFormat,
			CensoredLabels: append([]string(nil), DefaultCensoredLabels...),
		},
		Encoder: Encoder{
			MaxDimension: defaultMaxDimension,
			Quality:      defaultQuality,
		},
		Protocol: Protocol{
			MaxInboundBytes: defaultMaxInboundBytes,
		},
		Cache: Cache{
			IndexEnabled: true,
			MaxMiB:       defaultCacheMaxMiB,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
