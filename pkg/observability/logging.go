package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tutorgraph/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, and failed nodes at warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "run_id", e.RunID, "node_id", e.NodeID, "kind", e.NodeKind)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "node_failed", "run_id", e.RunID, "node_id", e.NodeID, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "node_leave", "run_id", e.RunID, "node_id", e.NodeID, "duration", e.Duration)
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.DebugContext(ctx, "decision", "run_id", e.RunID, "from", e.From, "route", e.Route, "to", e.To)
		},
		OnHalt: func(ctx context.Context, e *domain.HaltEvent) {
			logger.InfoContext(ctx, "halt", "run_id", e.RunID, "last_node", e.LastNode, "steps", e.Steps)
		},
	}
}
