package autoscaler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// queryTemplates maps a builtin Metric to the PromQL query used when a
// service doesn't set CustomQuery — %s is replaced with svc.ServiceID.
var queryTemplates = map[Metric]string{
	MetricCPU:    `avg(rate(container_cpu_usage_seconds_total{service="%s"}[1m])) * 100`,
	MetricMemory: `avg(container_memory_working_set_bytes{service="%s"}) / avg(container_spec_memory_limit_bytes{service="%s"}) * 100`,
}

// PrometheusMetricsSource implements MetricsSource by running a service's
// configured PromQL query (or its Metric's query template) as an instant
// query against a Prometheus server.
type PrometheusMetricsSource struct {
	api prometheusv1.API
}

// NewPrometheusMetricsSource builds a client against a Prometheus server at
// address (e.g. "http://prometheus:9090").
func NewPrometheusMetricsSource(address string) (*PrometheusMetricsSource, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("build prometheus client: %w", err)
	}
	return &PrometheusMetricsSource{api: prometheusv1.NewAPI(client)}, nil
}

// Query runs cfg's metric query and returns its scalar result. A query
// resolving to no samples is treated as "no signal" and returns 0 rather
// than erroring, since a newly-labeled service may not have metrics yet. A
// vector result with several samples yields the value of its first sample.
func (s *PrometheusMetricsSource) Query(ctx context.Context, cfg ServiceConfig) (float64, error) {
	query := cfg.CustomQuery
	if query == "" {
		tmpl, ok := queryTemplates[cfg.Metric]
		if !ok {
			return 0, fmt.Errorf("no query template for metric %q and no custom_query set", cfg.Metric)
		}
		query = strings.ReplaceAll(tmpl, "%s", cfg.ServiceID)
	}

	value, warnings, err := s.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query prometheus for %q: %w", cfg.ServiceID, err)
	}
	for _, w := range warnings {
		_ = w // surfaced via logger at the call site if desired; query still succeeded
	}

	return scalarValue(value)
}

func scalarValue(value model.Value) (float64, error) {
	switch v := value.(type) {
	case *model.Scalar:
		return float64(v.Value), nil
	case model.Vector:
		if len(v) == 0 {
			return 0, nil
		}
		return float64(v[0].Value), nil
	default:
		return 0, fmt.Errorf("unexpected prometheus result type %T", value)
	}
}
