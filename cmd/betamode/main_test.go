package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"betamode/internal/artifactcache"
	"betamode/internal/protocol"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	cacheDir   string
	logDir     string
	detector   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("BETAMODE_DETECTOR_COMMAND", "")
	t.Setenv("BETAMODE_USER_AGENT", "")

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(homeDir, ".config", "betamode", "config.toml"),
		cacheDir:   filepath.Join(base, "cache"),
		logDir:     filepath.Join(base, "logs"),
		detector:   filepath.Join(base, "detector.sh"),
	}
	script := "#!/bin/sh\necho '[{\"label\":\"EXPOSED_BREAST_F\",\"score\":0.9,\"box\":[1,1,6,6]},{\"label\":\"FACE_F\",\"score\":0.8,\"box\":[0,0,2,2]}]'\n"
	if err := os.WriteFile(env.detector, []byte(script), 0o755); err != nil {
		t.Fatalf("write detector: %v", err)
	}
	content := fmt.Sprintf(`[paths]
cache_dir = %q
log_dir = %q
work_dir = %q

[detector]
command = %q
args = []

[logging]
level = "error"
`, env.cacheDir, env.logDir, filepath.Join(base, "work"), env.detector)
	if err := os.MkdirAll(filepath.Dir(env.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string, stdin []byte) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := range 12 {
		for x := range 12 {
			img.Set(x, y, color.RGBA{R: 200, G: 160, B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Detector")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# source: "+env.configPath)
	requireContains(t, out, env.cacheDir)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", nil)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", nil); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigValidateStrictFailsWithoutDetector(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.Remove(env.detector); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate", "--strict"}, env.configPath, nil); err == nil {
		t.Fatal("expected strict validation to fail when the detector is missing")
	}
}

func TestManifestCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"manifest", "--browser", "chrome", "--extension-id", "abcdef", "--path", "/opt/betamode"}, "", nil)
	if err != nil {
		t.Fatalf("manifest chrome: %v", err)
	}
	var manifest hostManifest
	if err := json.Unmarshal([]byte(out), &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Name != hostName || manifest.Type != "stdio" || manifest.Path != "/opt/betamode" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	if len(manifest.AllowedOrigins) != 1 || manifest.AllowedOrigins[0] != "chrome-extension://abcdef/" {
		t.Fatalf("unexpected origins: %v", manifest.AllowedOrigins)
	}

	out, _, err = runCLI(t, []string{"manifest", "--browser", "firefox", "--extension-id", "betamode@example.org", "--path", "/opt/betamode"}, "", nil)
	if err != nil {
		t.Fatalf("manifest firefox: %v", err)
	}
	manifest = hostManifest{}
	if err := json.Unmarshal([]byte(out), &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(manifest.AllowedExtensions) != 1 || manifest.AllowedOrigins != nil {
		t.Fatalf("unexpected firefox manifest: %+v", manifest)
	}

	if _, _, err := runCLI(t, []string{"manifest", "--browser", "safari", "--extension-id", "x"}, "", nil); err == nil {
		t.Fatal("expected unsupported browser error")
	}
	if _, _, err := runCLI(t, []string{"manifest"}, "", nil); err == nil {
		t.Fatal("expected error without extension id")
	}
}

func TestCacheStatsPruneAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries:  0")

	cache := artifactcache.New(env.cacheDir, nil, nil)
	for i := range 3 {
		data := bytes.Repeat([]byte{byte(i)}, 600*1024)
		id := protocol.NumberID(int64(i))
		meta := artifactcache.Meta{JobID: id, Censored: i == 0, Regions: i}
		if err := cache.Write(artifactcache.Key(id, "https://example.com/seed.png"), data, meta); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	out, _, err = runCLI(t, []string{"cache", "stats", "--json"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("cache stats json: %v", err)
	}
	var stats artifactcache.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Entries != 3 {
		t.Fatalf("expected 3 entries, got %d", stats.Entries)
	}

	out, _, err = runCLI(t, []string{"cache", "prune", "--max-mib", "1"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, out, "Pruned 2 artifact(s)")

	lock := artifactcache.NewLock(filepath.Join(env.cacheDir, ".lock"))
	if err := lock.Shared(t.Context()); err != nil {
		t.Fatalf("take shared lock: %v", err)
	}
	if _, _, err := runCLI(t, []string{"cache", "clear"}, env.configPath, nil); err == nil {
		t.Fatal("expected clear to fail while a host holds the lock")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Removed 1 artifact(s)")
}

func TestDetectCommandWritesCensoredImage(t *testing.T) {
	env := setupCLITestEnv(t)
	src := filepath.Join(env.baseDir, "photo.png")
	writeTestPNG(t, src)

	out, _, err := runCLI(t, []string{"detect", src}, env.configPath, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	requireContains(t, out, "EXPOSED_BREAST_F")
	requireContains(t, out, "Blackened 1 region(s)")

	data, err := os.ReadFile(filepath.Join(env.baseDir, "photo.censored.jpg"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("expected a JPEG file")
	}
}

func TestRootCommandRunsHostUntilEOF(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"chrome-extension://abcdef/"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("host run: %v", err)
	}
	if out != "" {
		t.Fatalf("host must not write to stdout without requests, got %q", out)
	}
	matches, _ := filepath.Glob(filepath.Join(env.logDir, "betamode-*.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one run log, got %v", matches)
	}
}
