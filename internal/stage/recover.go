package stage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"betamode/internal/logging"
)

// Run calls fn and converts a panic into an error. The panic is logged with
// its stack trace so one bad job cannot take down the stage loop.
func Run(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, logger), "stage handler panicked", "stage_panic",
				logging.String(logging.FieldStage, name),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this crash with the log file attached"),
			)
			retErr = fmt.Errorf("panic in %s stage: %v", name, r)
		}
	}()
	return fn(ctx)
}
