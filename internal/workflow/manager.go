package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"betamode/internal/logging"
	"betamode/internal/queue"
	"betamode/internal/stage"
)

// Manager owns the fetch and censor stage goroutines.
type Manager struct {
	store  *queue.Store
	deps   Deps
	logger *slog.Logger

	fetch  *fetchStage
	censor *censorStage

	fetchAlive  atomic.Bool
	censorAlive atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager.
func NewManager(store *queue.Store, deps Deps, settings Settings, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	return &Manager{
		store:  store,
		deps:   deps,
		logger: logger,
		fetch:  &fetchStage{store: store, fetcher: deps.Fetcher, cache: deps.Cache},
		censor: &censorStage{
			deps:     deps,
			settings: settings,
			logger:   logger,
		},
	}
}

// Start launches both stages. They run until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.deps.Fetcher == nil || m.deps.Cache == nil || m.deps.Writer == nil || m.deps.Encoder == nil {
		return errors.New("workflow collaborators not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		runStage[queue.FetchJob](runCtx, m, m.fetch, m.store.PopFetch, &m.fetchAlive)
	}()
	go func() {
		defer m.wg.Done()
		runStage[queue.CensorJob](runCtx, m, m.censor, m.store.PopCensor, &m.censorAlive)
	}()
	return nil
}

// Stop cancels both stages and waits for them to exit. A job in flight is
// abandoned at its next cancellation point.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// SetUserAgent forwards a configure request to the fetcher.
func (m *Manager) SetUserAgent(userAgent string) {
	if m.deps.Fetcher != nil {
		m.deps.Fetcher.SetUserAgent(userAgent)
	}
}

// StageHealth reports readiness for both stages.
func (m *Manager) StageHealth(ctx context.Context) []stage.Health {
	return []stage.Health{m.fetch.HealthCheck(ctx), m.censor.HealthCheck(ctx)}
}
