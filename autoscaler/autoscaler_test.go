package autoscaler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoscaler_HighPriorityGapBypassesCooldownAndScalesUp(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-a", Priority: PriorityHigh,
		MinReplicas: 1, MaxReplicas: 10,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
		Cooldown: time.Hour,
	}
	orch.Register(svc, 5, 2) // gap of 3
	metrics.Values["svc-a"] = 90

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))

	// gap-fill: current(5) + min(gap=3, max-current=5) = 8; the cooldown-
	// bypassed step-5 decision then applies its own +1 on top: 9.
	assert.Equal(t, 9, orch.Current["svc-a"])
}

func TestAutoscaler_MediumPriorityGapTerminatesNonRunning(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-b", Priority: PriorityMedium,
		MinReplicas: 1, MaxReplicas: 5,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
		Cooldown: time.Hour,
	}
	orch.Register(svc, 3, 1)
	metrics.Values["svc-b"] = 10

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))

	assert.Equal(t, 1, orch.Terminated["svc-b"])
	assert.Equal(t, 1, orch.Current["svc-b"]) // terminated down to the running count, already at min
}

func TestAutoscaler_LowPriorityGapTakesNoAction(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-c", Priority: PriorityLow,
		MinReplicas: 1, MaxReplicas: 5,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
		Cooldown: time.Hour,
	}
	orch.Register(svc, 3, 1)
	metrics.Values["svc-c"] = 50

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))

	assert.Equal(t, 3, orch.Current["svc-c"])
	assert.Equal(t, 0, orch.Terminated["svc-c"])
}

func TestAutoscaler_ScaleUpRespectsMaxReplicas(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-d", Priority: PriorityLow,
		MinReplicas: 1, MaxReplicas: 3,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
	}
	orch.Register(svc, 3, 3)
	metrics.Values["svc-d"] = 95

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))

	assert.Equal(t, 3, orch.Current["svc-d"]) // already at max, no scale-up
}

func TestAutoscaler_ScaleDownRespectsMinReplicas(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-e", Priority: PriorityLow,
		MinReplicas: 2, MaxReplicas: 5,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
	}
	orch.Register(svc, 2, 2)
	metrics.Values["svc-e"] = 5

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))

	assert.Equal(t, 2, orch.Current["svc-e"]) // already at min, no scale-down
}

func TestAutoscaler_OnDemandServiceHasNoUpperBound(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-f", Priority: PriorityLow,
		MinReplicas: 0, MaxReplicas: -1,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
	}
	orch.Register(svc, 100, 100)
	metrics.Values["svc-f"] = 95

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))

	assert.Equal(t, 101, orch.Current["svc-f"])
}

func TestAutoscaler_CooldownBlocksRepeatedScaleUp(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	svc := ServiceConfig{
		ServiceID: "svc-g", Priority: PriorityLow,
		MinReplicas: 0, MaxReplicas: 10,
		Metric: MetricCPU, ThresholdUp: 80, ThresholdDown: 20,
		Cooldown: time.Hour,
	}
	orch.Register(svc, 1, 1)
	metrics.Values["svc-g"] = 95

	a := New(orch, metrics, time.Minute, nil)
	require.NoError(t, a.Tick(context.Background()))
	assert.Equal(t, 2, orch.Current["svc-g"])

	require.NoError(t, a.Tick(context.Background()))
	assert.Equal(t, 2, orch.Current["svc-g"]) // cooldown still active, no further scale-up
}

func TestAutoscaler_RunStopsOnContextCancel(t *testing.T) {
	orch := NewFakeOrchestrator()
	metrics := NewFakeMetricsSource()
	a := New(orch, metrics, 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context deadline")
	}
}
