package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.TimeoutSeconds < 0 {
		return errors.New("fetch.timeout_seconds must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return errors.New("fetch.requests_per_second must be >= 0")
	}
	for _, scheme := range c.Fetch.AllowedSchemes {
		switch scheme {
		case "http", "https", "data":
		default:
			return fmt.Errorf("fetch.allowed_schemes: unsupported scheme %q (want http, https or data)", scheme)
		}
	}
	return nil
}

func (c *Config) validateDetector() error {
	if c.Detector.TimeoutSeconds < 0 {
		return errors.New("detector.timeout_seconds must be >= 0")
	}
	switch c.Detector.BoxFormat {
	case "xyxy", "xywh":
	default:
		return fmt.Errorf("detector.box_format: unsupported value %q (want xyxy or xywh)", c.Detector.BoxFormat)
	}
	if c.Detector.MinScore < 0 || c.Detector.MinScore > 1 {
		return errors.New("detector.min_score must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.Quality < 1 || c.Encoder.Quality > 100 {
		return errors.New("encoder.quality must be between 1 and 100")
	}
	if c.Encoder.MaxDimension < 16 {
		return errors.New("encoder.max_dimension must be at least 16")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxMiB < 0 {
		return errors.New("cache.max_mib must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// RequireDetector reports whether the detector command is configured. The
// host can run without one, but every uncached censor job will fail.
func (c *Config) RequireDetector() error {
	if strings.TrimSpace(c.Detector.Command) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("detector.command is required. Set BETAMODE_DETECTOR_COMMAND or edit %s (create with 'betamode config init')", defaultPath)
	}
	return nil
}
