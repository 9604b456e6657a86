package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	c.normalizeDetector()
	c.normalizeEncoder()
	if c.Protocol.MaxInboundBytes <= 0 {
		c.Protocol.MaxInboundBytes = defaultMaxInboundBytes
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() {
	if value, ok := os.LookupEnv("BETAMODE_USER_AGENT"); ok && strings.TrimSpace(value) != "" {
		c.Fetch.UserAgent = value
	}
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = defaultFetchMaxBytes
	}
	if c.Fetch.Burst <= 0 {
		c.Fetch.Burst = defaultFetchBurst
	}
	schemes := make([]string, 0, len(c.Fetch.AllowedSchemes))
	seen := make(map[string]struct{}, len(c.Fetch.AllowedSchemes))
	for _, scheme := range c.Fetch.AllowedSchemes {
		scheme = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(scheme)), ":")
		if scheme == "" {
			continue
		}
		if _, ok := seen[scheme]; ok {
			continue
		}
		seen[scheme] = struct{}{}
		schemes = append(schemes, scheme)
	}
	if len(schemes) == 0 {
		schemes = append(schemes, DefaultAllowedSchemes...)
	}
	c.Fetch.AllowedSchemes = schemes
}

func (c *Config) normalizeDetector() {
	if value, ok := os.LookupEnv("BETAMODE_DETECTOR_COMMAND"); ok && strings.TrimSpace(value) != "" {
		c.Detector.Command = value
	}
	c.Detector.Command = strings.TrimSpace(c.Detector.Command)
	if c.Detector.Command != "" {
		if expanded, err := expandPath(c.Detector.Command); err == nil && strings.ContainsRune(c.Detector.Command, os.PathSeparator) {
			c.Detector.Command = expanded
		}
	}
	c.Detector.BoxFormat = strings.ToLower(strings.TrimSpace(c.Detector.BoxFormat))
	if c.Detector.BoxFormat == "" {
		c.Detector.BoxFormat = defaultDetectorBoxFormat
	}
	c.Detector.CensoredLabels = NormalizeLabels(c.Detector.CensoredLabels)
	if len(c.Detector.CensoredLabels) == 0 {
		c.Detector.CensoredLabels = append([]string(nil), DefaultCensoredLabels...)
	}
}

func (c *Config) normalizeEncoder() {
	if c.Encoder.MaxDimension <= 0 {
		c.Encoder.MaxDimension = defaultMaxDimension
	}
	if c.Encoder.Quality <= 0 {
		c.Encoder.Quality = defaultQuality
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
		c.Logging.Format = "json"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

var labelCaser = cases.Upper(language.Und)

// NormalizeLabel canonicalizes a detector class name: upper case with
// underscores in place of spaces and hyphens.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	label = strings.NewReplacer(" ", "_", "-", "_").Replace(label)
	return labelCaser.String(label)
}

// NormalizeLabels canonicalizes and deduplicates labels, preserving order.
func NormalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		label = NormalizeLabel(label)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}
