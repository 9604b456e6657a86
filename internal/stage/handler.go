// Package stage defines the contract between the workflow manager and the
// pipeline stages, along with stage health records and panic isolation.
package stage

import "context"

// Handler processes one job of type J at a time.
type Handler[J any] interface {
	Name() string
	Handle(ctx context.Context, job J) error
	HealthCheck(ctx context.Context) Health
}
