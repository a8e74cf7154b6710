// Package autoscaler implements the label-driven autoscaler (C10): a
// control loop polling a container orchestrator and a metrics backend,
// scaling each labeled service up or down within its configured bounds.
package autoscaler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Priority classifies how aggressively a service reacts to load.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Metric names the signal a service scales on.
type Metric string

const (
	MetricCPU    Metric = "cpu"
	MetricMemory Metric = "memory"
)

// ServiceConfig is the per-service policy extracted from its labels.
type ServiceConfig struct {
	ServiceID     string
	Priority      Priority
	MinReplicas   int
	MaxReplicas   int // -1 means unlimited/on-demand
	Metric        Metric
	CustomQuery   string
	ThresholdUp   float64
	ThresholdDown float64
	Cooldown      time.Duration
}

// onDemand reports whether s has no upper replica bound.
func (s ServiceConfig) onDemand() bool { return s.MaxReplicas < 0 }

// Orchestrator abstracts the container platform: listing labeled services,
// reading replica counts, scaling, and terminating non-running tasks.
type Orchestrator interface {
	LabeledServices(ctx context.Context) ([]ServiceConfig, error)
	CurrentReplicas(ctx context.Context, serviceID string) (current, running int, err error)
	Scale(ctx context.Context, serviceID string, replicas int) error
	TerminateNonRunning(ctx context.Context, serviceID string) error
}

// MetricsSource abstracts the metrics backend a service's Metric or
// CustomQuery is evaluated against.
type MetricsSource interface {
	Query(ctx context.Context, cfg ServiceConfig) (float64, error)
}

// Autoscaler runs the control loop described in §4.8.
type Autoscaler struct {
	orchestrator  Orchestrator
	metrics       MetricsSource
	checkInterval time.Duration
	logger        *logrus.Entry

	lastScaled map[string]time.Time
}

// New builds an Autoscaler polling every checkInterval.
func New(orchestrator Orchestrator, metrics MetricsSource, checkInterval time.Duration, logger *logrus.Entry) *Autoscaler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Autoscaler{
		orchestrator:  orchestrator,
		metrics:       metrics,
		checkInterval: checkInterval,
		logger:        logger,
		lastScaled:    make(map[string]time.Time),
	}
}

// Run blocks, ticking every checkInterval and calling Tick, until ctx is
// done.
func (a *Autoscaler) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.logger.WithError(err).Error("autoscaler tick failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Tick runs one pass over every labeled service.
func (a *Autoscaler) Tick(ctx context.Context) error {
	services, err := a.orchestrator.LabeledServices(ctx)
	if err != nil {
		return err
	}
	for _, svc := range services {
		if err := a.evaluate(ctx, svc); err != nil {
			a.logger.WithError(err).WithField("service_id", svc.ServiceID).Warn("evaluate failed, skipping service")
		}
	}
	return nil
}

// evaluate implements steps 2-5 of §4.8 for one service.
func (a *Autoscaler) evaluate(ctx context.Context, svc ServiceConfig) error {
	metricValue, err := a.metrics.Query(ctx, svc)
	if err != nil {
		return err
	}

	current, running, err := a.orchestrator.CurrentReplicas(ctx, svc.ServiceID)
	if err != nil {
		return err
	}

	bypassCooldown := false
	if gap := current - running; gap > 0 {
		switch svc.Priority {
		case PriorityHigh:
			if metricValue > svc.ThresholdUp {
				target := gap
				if !svc.onDemand() {
					if room := svc.MaxReplicas - current; room < target {
						target = room
					}
				}
				if target > 0 {
					if err := a.orchestrator.Scale(ctx, svc.ServiceID, current+target); err != nil {
						return err
					}
					current += target
					a.lastScaled[svc.ServiceID] = time.Now()
				}
				bypassCooldown = true
			}
		case PriorityMedium:
			if err := a.orchestrator.TerminateNonRunning(ctx, svc.ServiceID); err != nil {
				return err
			}
			current = running
		case PriorityLow:
			// no action
		}
	}

	return a.applyScalingDecision(ctx, svc, metricValue, current, bypassCooldown)
}

// applyScalingDecision implements step 5: the cooldown-respecting +1/-1
// decision from the metric threshold comparison.
func (a *Autoscaler) applyScalingDecision(ctx context.Context, svc ServiceConfig, metricValue float64, current int, bypassCooldown bool) error {
	if !bypassCooldown {
		if last, ok := a.lastScaled[svc.ServiceID]; ok && time.Since(last) < svc.Cooldown {
			return nil
		}
	}

	switch {
	case metricValue > svc.ThresholdUp:
		if !svc.onDemand() && current >= svc.MaxReplicas {
			return nil
		}
		if err := a.orchestrator.Scale(ctx, svc.ServiceID, current+1); err != nil {
			return err
		}
		a.lastScaled[svc.ServiceID] = time.Now()
	case metricValue < svc.ThresholdDown:
		if current <= svc.MinReplicas {
			return nil
		}
		if err := a.orchestrator.Scale(ctx, svc.ServiceID, current-1); err != nil {
			return err
		}
		a.lastScaled[svc.ServiceID] = time.Now()
	}
	return nil
}
