// Package daemonrun assembles and runs one native host process.
package daemonrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"betamode/internal/artifactcache"
	"betamode/internal/config"
	"betamode/internal/daemon"
	"betamode/internal/detect"
	"betamode/internal/fetch"
	"betamode/internal/imaging"
	"betamode/internal/logging"
	"betamode/internal/preflight"
	"betamode/internal/protocol"
	"betamode/internal/queue"
	"betamode/internal/workflow"
)

// Options configures host process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run builds the pipeline from cfg and serves the extension over stdin and
// stdout until the input ends or a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options, stdin io.Reader, stdout io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("betamode-%s.log", runID))
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", logPath},
		Development: opts.Development,
		SessionID:   uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update betamode.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, "betamode-*.log", logPath, cfg.Logging.RetentionDays)
	logPreflight(logger, cfg)

	var index *artifactcache.Index
	if cfg.Cache.IndexEnabled {
		index, err = artifactcache.OpenIndex(signalCtx, cfg.CacheIndexPath())
		if err != nil {
			logging.WarnWithContext(logger, "artifact index unavailable", "cache_index_unavailable",
				logging.String("path", cfg.CacheIndexPath()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove index.db to rebuild it"),
				logging.String(logging.FieldImpact, "cache stats and prune ordering are not recorded for this run"),
			)
		} else {
			defer index.Close()
		}
	}

	store := queue.NewStore()
	writer := protocol.NewWriter(stdout, logger)
	manager := workflow.NewManager(store, buildDeps(cfg, index, writer, logger), workflow.Settings{
		CensoredLabels: cfg.Detector.CensoredLabels,
		MinScore:       cfg.Detector.MinScore,
		MaxDimension:   cfg.Encoder.MaxDimension,
		Quality:        cfg.Encoder.Quality,
	}, logger)
	for _, h := range manager.StageHealth(signalCtx) {
		if !h.Ready {
			logging.WarnWithContext(logger, "stage not ready", "stage_unhealthy",
				logging.String(logging.FieldStage, h.Name),
				logging.String("detail", h.Detail),
			)
		}
	}

	reader := protocol.NewReader(stdin, cfg.Protocol.MaxInboundBytes)
	d, err := daemon.New(reader, writer, store, manager, artifactcache.NewLock(cfg.CacheLockPath()), logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("betamode host starting",
		logging.String(logging.FieldEventType, "host_starting"),
		logging.String("log_path", logPath),
		logging.String("cache_dir", cfg.Paths.CacheDir),
		logging.Int("pid", os.Getpid()),
	)
	return d.Run(signalCtx)
}

func buildDeps(cfg *config.Config, index *artifactcache.Index, writer workflow.ResultWriter, logger *slog.Logger) workflow.Deps {
	deps := workflow.Deps{
		Fetcher: fetch.New(fetch.Options{
			UserAgent:         cfg.Fetch.UserAgent,
			Timeout:           cfg.FetchTimeout(),
			MaxBytes:          cfg.Fetch.MaxBytes,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
			Burst:             cfg.Fetch.Burst,
			AllowedSchemes:    cfg.Fetch.AllowedSchemes,
		}, logger),
		Encoder: imaging.NewEncoder(),
		Cache:   artifactcache.New(cfg.Paths.CacheDir, index, logger),
		Writer:  writer,
	}
	if cfg.Detector.Command != "" {
		deps.Detector = detect.NewCommand(detect.CommandOptions{
			Command:   cfg.Detector.Command,
			Args:      cfg.Detector.Args,
			BoxFormat: cfg.Detector.BoxFormat,
			Timeout:   cfg.DetectorTimeout(),
			WorkDir:   cfg.Paths.WorkDir,
		}, logger)
	}
	return deps
}

func logPreflight(logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.Failed(preflight.RunAll(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run 'betamode config validate' for details"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "betamode.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
