package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydev/clauder/internal/event"
)

func TestMetricsTallies(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.RunStarted()
	m.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeRuns))

	m.RunCompleted("completed", 12.5)
	m.RunCompleted("timed_out", 600)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("timed_out")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRuns))

	m.PermissionResolved("allow", "session")
	m.PermissionResolved("allow", "session")
	m.PermissionResolved("deny", "timeout")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.permissionDecisions.WithLabelValues("allow", "session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.permissionDecisions.WithLabelValues("deny", "timeout")))

	m.InteractionRequired("choice")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interactionsTotal.WithLabelValues("choice")))
}

func TestMustNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.RunCompleted("completed", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.runsTotal.WithLabelValues("completed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RunStarted()
	m.RunCompleted("completed", 1)
	m.PermissionResolved("allow", "rule")
	m.InteractionRequired("question")
}

func TestCollector(t *testing.T) {
	event.Reset()
	m := MustNewMetrics(prometheus.NewRegistry())
	detach := NewCollector(m).Attach()
	defer detach()

	event.PublishSync(event.Event{
		Type: event.RunStarted,
		Data: event.RunStartedData{RunID: "run-1", Tier: "standard"},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRuns))

	event.PublishSync(event.Event{
		Type: event.RunCompleted,
		Data: event.RunCompletedData{RunID: "run-1", Status: "completed", Success: true, Elapsed: 3.2},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRuns))
	require.GreaterOrEqual(t, testutil.CollectAndCount(m.runDuration), 1)

	event.PublishSync(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{Outcome: "deny", Source: "repeat-guard"},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.permissionDecisions.WithLabelValues("deny", "repeat-guard")))

	event.PublishSync(event.Event{
		Type: event.InteractionRequired,
		Data: event.InteractionRequiredData{RunID: "run-1", Kind: "confirmation"},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interactionsTotal.WithLabelValues("confirmation")))
}

func TestCollectorDetach(t *testing.T) {
	event.Reset()
	m := MustNewMetrics(prometheus.NewRegistry())
	detach := NewCollector(m).Attach()
	detach()

	event.PublishSync(event.Event{
		Type: event.RunStarted,
		Data: event.RunStartedData{RunID: "run-1"},
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRuns))
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name string
		data event.RunCompletedData
		want string
	}{
		{"explicit status wins", event.RunCompletedData{Status: "timed_out", Success: false}, "timed_out"},
		{"success fallback", event.RunCompletedData{Success: true}, "completed"},
		{"failure fallback", event.RunCompletedData{Success: false}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runStatus(tt.data))
		})
	}
}
