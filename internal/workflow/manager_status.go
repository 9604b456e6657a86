package workflow

import "betamode/internal/protocol"

// Status builds the status reply from the store snapshot and stage liveness.
func (m *Manager) Status() protocol.Status {
	snap := m.store.Snapshot()
	return protocol.NewStatus(
		protocol.StageStatus{Queue: snap.FetchQueue, Alive: m.fetchAlive.Load()},
		protocol.StageStatus{Queue: snap.CensorQueue, Alive: m.censorAlive.Load()},
		snap.Failures,
	)
}
