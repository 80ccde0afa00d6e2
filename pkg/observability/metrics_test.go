package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeID: domain.TopLevelSupervisor, NodeKind: domain.KindTopLevel})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{NodeID: domain.TopLevelSupervisor, NodeKind: domain.KindTopLevel})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{NodeID: domain.LessonAgent, Duration: time.Second, Err: errors.New("boom")})
	hooks.OnDecision(ctx, &domain.DecisionEvent{From: domain.MathSupervisor, Route: domain.RouteFinish, To: domain.Halt})
	hooks.OnHalt(ctx, &domain.HaltEvent{Steps: 4})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("TopLevelSupervisor", "top_level")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeErrors.WithLabelValues("LessonAgent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("MathSupervisor", "FINISH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs))
	assert.Equal(t, 1, testutil.CollectAndCount(m.NodeDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunSteps))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	hooks := domain.Merge(observability.LoggingHooks(logger))
	ctx := context.Background()
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{EventBase: domain.EventBase{RunID: "r1"}, NodeID: domain.LessonAgent, Err: errors.New("boom")})
	hooks.OnHalt(ctx, &domain.HaltEvent{EventBase: domain.EventBase{RunID: "r1"}, LastNode: domain.MathSupervisor, Steps: 4})

	out := buf.String()
	assert.Contains(t, out, "node_failed")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "steps=4")
}
