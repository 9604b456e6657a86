package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"betamode/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("BETAMODE_USER_AGENT", "")
	t.Setenv("BETAMODE_DETECTOR_COMMAND", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, ".cache", "betamode"); cfg.Paths.CacheDir != want {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, want)
	}
	if want := filepath.Join(tempHome, ".local", "share", "betamode", "logs"); cfg.Paths.LogDir != want {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, want)
	}
	if cfg.Encoder.MaxDimension != 2000 || cfg.Encoder.Quality != 60 {
		t.Fatalf("unexpected encoder defaults: %+v", cfg.Encoder)
	}
	if cfg.Protocol.MaxInboundBytes != 64<<20 {
		t.Fatalf("unexpected inbound limit: %d", cfg.Protocol.MaxInboundBytes)
	}
	if !slices.Equal(cfg.Detector.CensoredLabels, config.DefaultCensoredLabels) {
		t.Fatalf("unexpected censored labels: %v", cfg.Detector.CensoredLabels)
	}
	if !slices.Equal(cfg.Fetch.AllowedSchemes, []string{"http", "https", "data"}) {
		t.Fatalf("unexpected schemes: %v", cfg.Fetch.AllowedSchemes)
	}
	if cfg.FetchTimeout() != 0 || cfg.DetectorTimeout() != 0 {
		t.Fatal("expected no timeouts by default")
	}
	if err := cfg.RequireDetector(); err == nil {
		t.Fatal("expected missing detector command to be reported")
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BETAMODE_USER_AGENT", "")
	t.Setenv("BETAMODE_DETECTOR_COMMAND", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
cache_dir = "~/cache"

[fetch]
timeout_seconds = 15
allowed_schemes = ["HTTPS", "https", "data:"]

[detector]
command = "nudenet-detect"
box_format = "XYWH"
censored_labels = ["exposed breast f", "EXPOSED-ANUS", "EXPOSED_ANUS"]
min_score = 0.4

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config %q to be loaded, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.CacheDir != filepath.Join(tempHome, "cache") {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
	if cfg.FetchTimeout() != 15*time.Second {
		t.Fatalf("unexpected fetch timeout: %v", cfg.FetchTimeout())
	}
	if !slices.Equal(cfg.Fetch.AllowedSchemes, []string{"https", "data"}) {
		t.Fatalf("unexpected schemes: %v", cfg.Fetch.AllowedSchemes)
	}
	if cfg.Detector.BoxFormat != "xywh" {
		t.Fatalf("unexpected box format: %q", cfg.Detector.BoxFormat)
	}
	if want := []string{"EXPOSED_BREAST_F", "EXPOSED_ANUS"}; !slices.Equal(cfg.Detector.CensoredLabels, want) {
		t.Fatalf("unexpected labels: got %v want %v", cfg.Detector.CensoredLabels, want)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if err := cfg.RequireDetector(); err != nil {
		t.Fatalf("expected detector configured: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BETAMODE_USER_AGENT", "TestAgent/1.0")
	t.Setenv("BETAMODE_DETECTOR_COMMAND", "detector-from-env")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Fetch.UserAgent != "TestAgent/1.0" {
		t.Fatalf("unexpected user agent: %q", cfg.Fetch.UserAgent)
	}
	if cfg.Detector.Command != "detector-from-env" {
		t.Fatalf("unexpected detector command: %q", cfg.Detector.Command)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"scheme", func(c *config.Config) { c.Fetch.AllowedSchemes = []string{"ftp"} }, "fetch.allowed_schemes"},
		{"box format", func(c *config.Config) { c.Detector.BoxFormat = "cxcywh" }, "detector.box_format"},
		{"min score", func(c *config.Config) { c.Detector.MinScore = 1.5 }, "detector.min_score"},
		{"quality", func(c *config.Config) { c.Encoder.Quality = 101 }, "encoder.quality"},
		{"timeout", func(c *config.Config) { c.Fetch.TimeoutSeconds = -1 }, "fetch.timeout_seconds"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[string]string{
		"exposed_breast_f":     "EXPOSED_BREAST_F",
		" covered genitalia f": "COVERED_GENITALIA_F",
		"exposed-anus":         "EXPOSED_ANUS",
		"":                     "",
	}
	for in, want := range tests {
		if got := config.NormalizeLabel(in); got != want {
			t.Fatalf("NormalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Encoder.Quality != 60 {
		t.Fatalf("unexpected sample quality: %d", cfg.Encoder.Quality)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := config.Default()
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if !strings.Contains(string(data), "[detector]") {
		t.Fatalf("expected detector section in %s", data)
	}
}
