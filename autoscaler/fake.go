package autoscaler

import "context"

// FakeOrchestrator is an in-memory Orchestrator, keyed by service id,
// matching the "abstract the network-facing dependency behind an
// interface with a fake" convention used for the KV/document/broker
// dependencies elsewhere in this codebase.
type FakeOrchestrator struct {
	Services   map[string]ServiceConfig
	Current    map[string]int
	Running    map[string]int
	Terminated map[string]int
}

// NewFakeOrchestrator builds an empty FakeOrchestrator.
func NewFakeOrchestrator() *FakeOrchestrator {
	return &FakeOrchestrator{
		Services:   make(map[string]ServiceConfig),
		Current:    make(map[string]int),
		Running:    make(map[string]int),
		Terminated: make(map[string]int),
	}
}

// Register adds svc with its starting current/running replica counts.
func (f *FakeOrchestrator) Register(svc ServiceConfig, current, running int) {
	f.Services[svc.ServiceID] = svc
	f.Current[svc.ServiceID] = current
	f.Running[svc.ServiceID] = running
}

func (f *FakeOrchestrator) LabeledServices(context.Context) ([]ServiceConfig, error) {
	out := make([]ServiceConfig, 0, len(f.Services))
	for _, svc := range f.Services {
		out = append(out, svc)
	}
	return out, nil
}

func (f *FakeOrchestrator) CurrentReplicas(_ context.Context, serviceID string) (int, int, error) {
	return f.Current[serviceID], f.Running[serviceID], nil
}

func (f *FakeOrchestrator) Scale(_ context.Context, serviceID string, replicas int) error {
	f.Current[serviceID] = replicas
	f.Running[serviceID] = replicas
	return nil
}

func (f *FakeOrchestrator) TerminateNonRunning(_ context.Context, serviceID string) error {
	f.Terminated[serviceID]++
	f.Current[serviceID] = f.Running[serviceID]
	return nil
}

// FakeMetricsSource returns a fixed value per service id.
type FakeMetricsSource struct {
	Values map[string]float64
}

// NewFakeMetricsSource builds a FakeMetricsSource.
func NewFakeMetricsSource() *FakeMetricsSource {
	return &FakeMetricsSource{Values: make(map[string]float64)}
}

func (f *FakeMetricsSource) Query(_ context.Context, cfg ServiceConfig) (float64, error) {
	return f.Values[cfg.ServiceID], nil
}
