package detect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"betamode/internal/logging"
	"betamode/internal/services"
)

// ImagePlaceholder in an argument is replaced with the image path. When no
// argument contains it, the path is appended.
const ImagePlaceholder = "{image}"

// CommandOptions configures a Command detector.
type CommandOptions struct {
	Command   string
	Args      []string
	BoxFormat string
	// Timeout bounds one detector run. Zero means no timeout.
	Timeout time.Duration
	// WorkDir receives temporary image copies. Empty uses os.TempDir.
	WorkDir string
}

// Command runs an external detector program.
type Command struct {
	opts   CommandOptions
	logger *slog.Logger
}

// NewCommand returns a Command detector.
func NewCommand(opts CommandOptions, logger *slog.Logger) *Command {
	return &Command{opts: opts, logger: logging.NewComponentLogger(logger, "detect")}
}

// Detect writes img to a temporary file, runs the detector on it and parses
// the detections it prints.
func (c *Command) Detect(ctx context.Context, img []byte) ([]Detection, error) {
	if strings.TrimSpace(c.opts.Command) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "censor", "detect", "detector.command is not configured", nil)
	}
	if len(img) == 0 {
		return nil, services.Wrap(services.ErrDetect, "censor", "detect", "empty image", nil)
	}

	if c.opts.WorkDir != "" {
		if err := os.MkdirAll(c.opts.WorkDir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrDetect, "censor", "detect", "create work dir", err)
		}
	}
	tmp, err := os.CreateTemp(c.opts.WorkDir, "detect-*.img")
	if err != nil {
		return nil, services.Wrap(services.ErrDetect, "censor", "detect", "create temp image", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(img); err != nil {
		_ = tmp.Close()
		return nil, services.Wrap(services.ErrDetect, "censor", "detect", "write temp image", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, services.Wrap(services.ErrDetect, "censor", "detect", "close temp image", err)
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	args := buildArgs(c.opts.Args, path)
	cmd := exec.CommandContext(ctx, c.opts.Command, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "censor", "detect",
				fmt.Sprintf("detector exceeded %s", c.opts.Timeout), err)
		}
		return nil, services.Wrap(services.ErrDetect, "censor", "detect",
			summarizeStderr(stderr.String()), err)
	}

	detections, err := Parse(stdout.Bytes(), c.opts.BoxFormat)
	if err != nil {
		return nil, services.Wrap(services.ErrDetect, "censor", "parse detections", "", err)
	}
	c.logger.Debug("detector finished",
		logging.Int("detections", len(detections)),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "detector_finished"),
	)
	return detections, nil
}

func buildArgs(template []string, path string) []string {
	args := make([]string, 0, len(template)+1)
	substituted := false
	for _, arg := range template {
		if strings.Contains(arg, ImagePlaceholder) {
			arg = strings.ReplaceAll(arg, ImagePlaceholder, path)
			substituted = true
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, path)
	}
	return args
}

func summarizeStderr(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return "detector failed"
	}
	lines := strings.Split(stderr, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if len(last) > 200 {
		last = last[:200]
	}
	return "detector failed: " + last
}
