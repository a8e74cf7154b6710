package autoscaler

import (
	"context"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

// Label keys a container must carry to be discovered by LabeledServices,
// mirroring the label-driven policy §4.8 describes: a service's scaling
// bounds, metric, and thresholds travel with the containers themselves
// rather than in a side config file.
const (
	labelManaged       = "sheetflow.autoscale"
	labelService       = "sheetflow.service"
	labelPriority      = "sheetflow.priority"
	labelMinReplicas   = "sheetflow.min_replicas"
	labelMaxReplicas   = "sheetflow.max_replicas"
	labelMetric        = "sheetflow.metric"
	labelCustomQuery   = "sheetflow.custom_query"
	labelThresholdUp   = "sheetflow.threshold_up"
	labelThresholdDown = "sheetflow.threshold_down"
	labelCooldown      = "sheetflow.cooldown"
)

// ContainerdOrchestrator implements Orchestrator over a containerd socket,
// treating every container labeled labelManaged=="true" in namespace as a
// replica of the service named by its labelService label.
type ContainerdOrchestrator struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdOrchestrator dials socketPath (the containerd gRPC socket,
// e.g. "/run/containerd/containerd.sock") and scopes every call to
// namespace.
func NewContainerdOrchestrator(socketPath, namespace string) (*ContainerdOrchestrator, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &ContainerdOrchestrator{client: client, namespace: namespace}, nil
}

// Close releases the containerd client connection.
func (o *ContainerdOrchestrator) Close() error {
	return o.client.Close()
}

func (o *ContainerdOrchestrator) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, o.namespace)
}

// LabeledServices lists every distinct service among labelManaged
// containers, building its ServiceConfig from that service's labels (read
// off its first container — every replica of a service carries the same
// policy labels).
func (o *ContainerdOrchestrator) LabeledServices(ctx context.Context) ([]ServiceConfig, error) {
	ctx = o.ctx(ctx)
	containers, err := o.client.Containers(ctx, fmt.Sprintf(`labels."%s"=="true"`, labelManaged))
	if err != nil {
		return nil, fmt.Errorf("list labeled containers: %w", err)
	}

	seen := make(map[string]bool)
	var services []ServiceConfig
	for _, c := range containers {
		labels, err := c.Labels(ctx)
		if err != nil {
			continue
		}
		serviceID := labels[labelService]
		if serviceID == "" || seen[serviceID] {
			continue
		}
		seen[serviceID] = true
		services = append(services, serviceConfigFromLabels(serviceID, labels))
	}
	return services, nil
}

func serviceConfigFromLabels(serviceID string, labels map[string]string) ServiceConfig {
	cfg := ServiceConfig{
		ServiceID:   serviceID,
		Priority:    Priority(labels[labelPriority]),
		MinReplicas: atoiOr(labels[labelMinReplicas], 1),
		MaxReplicas: atoiOr(labels[labelMaxReplicas], -1),
		Metric:      Metric(labels[labelMetric]),
		CustomQuery: labels[labelCustomQuery],
	}
	cfg.ThresholdUp, _ = strconv.ParseFloat(labels[labelThresholdUp], 64)
	cfg.ThresholdDown, _ = strconv.ParseFloat(labels[labelThresholdDown], 64)
	if d, err := time.ParseDuration(labels[labelCooldown]); err == nil {
		cfg.Cooldown = d
	}
	return cfg
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// serviceContainers returns every labelManaged container for serviceID.
func (o *ContainerdOrchestrator) serviceContainers(ctx context.Context, serviceID string) ([]containerd.Container, error) {
	filter := fmt.Sprintf(`labels."%s"=="true",labels."%s"=="%s"`, labelManaged, labelService, serviceID)
	return o.client.Containers(ctx, filter)
}

// CurrentReplicas counts serviceID's containers, and among them how many
// have a running task.
func (o *ContainerdOrchestrator) CurrentReplicas(ctx context.Context, serviceID string) (current, running int, err error) {
	ctx = o.ctx(ctx)
	containers, err := o.serviceContainers(ctx, serviceID)
	if err != nil {
		return 0, 0, fmt.Errorf("list containers for %q: %w", serviceID, err)
	}
	current = len(containers)
	for _, c := range containers {
		if o.isRunning(ctx, c) {
			running++
		}
	}
	return current, running, nil
}

func (o *ContainerdOrchestrator) isRunning(ctx context.Context, c containerd.Container) bool {
	task, err := c.Task(ctx, nil)
	if err != nil {
		return false
	}
	status, err := task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}

// Scale drives serviceID to replicas by cloning its existing container
// spec (to add replicas) or stopping and deleting the excess containers
// at the front of the listing (to remove replicas). A service with zero existing containers cannot be
// scaled up, since there is no template to clone from — it must start
// with at least one container carrying its labels.
func (o *ContainerdOrchestrator) Scale(ctx context.Context, serviceID string, replicas int) error {
	ctx = o.ctx(ctx)
	containers, err := o.serviceContainers(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("list containers for %q: %w", serviceID, err)
	}

	switch {
	case len(containers) < replicas:
		if len(containers) == 0 {
			return fmt.Errorf("scale %q: no existing container to clone from", serviceID)
		}
		return o.growService(ctx, serviceID, containers[0], replicas-len(containers))
	case len(containers) > replicas:
		return o.shrinkService(ctx, containers[:len(containers)-replicas])
	default:
		return nil
	}
}

func (o *ContainerdOrchestrator) growService(ctx context.Context, serviceID string, template containerd.Container, count int) error {
	image, err := template.Image(ctx)
	if err != nil {
		return fmt.Errorf("read template image: %w", err)
	}
	labels, err := template.Labels(ctx)
	if err != nil {
		return fmt.Errorf("read template labels: %w", err)
	}

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%d", serviceID, time.Now().UnixNano())
		c, err := o.client.NewContainer(ctx, id,
			containerd.WithImage(image),
			containerd.WithNewSnapshot(id+"-snapshot", image),
			containerd.WithNewSpec(oci.WithImageConfig(image)),
			containerd.WithContainerLabels(labels),
		)
		if err != nil {
			return fmt.Errorf("create replica of %q: %w", serviceID, err)
		}
		task, err := c.NewTask(ctx, cio.NullIO)
		if err != nil {
			return fmt.Errorf("create task for replica of %q: %w", serviceID, err)
		}
		if err := task.Start(ctx); err != nil {
			return fmt.Errorf("start replica of %q: %w", serviceID, err)
		}
	}
	return nil
}

func (o *ContainerdOrchestrator) shrinkService(ctx context.Context, victims []containerd.Container) error {
	for _, c := range victims {
		if err := o.stopAndDelete(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (o *ContainerdOrchestrator) stopAndDelete(ctx context.Context, c containerd.Container) error {
	if task, err := c.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_ = task.Kill(stopCtx, syscall.SIGTERM)
		statusC, err := task.Wait(stopCtx)
		if err == nil {
			select {
			case <-statusC:
			case <-stopCtx.Done():
				_ = task.Kill(ctx, syscall.SIGKILL)
			}
		}
		_, _ = task.Delete(ctx)
	}
	return c.Delete(ctx, containerd.WithSnapshotCleanup)
}

// TerminateNonRunning removes serviceID's containers that have no running
// task, per §4.8's cleanup of failed/exited replicas between ticks.
func (o *ContainerdOrchestrator) TerminateNonRunning(ctx context.Context, serviceID string) error {
	ctx = o.ctx(ctx)
	containers, err := o.serviceContainers(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("list containers for %q: %w", serviceID, err)
	}
	for _, c := range containers {
		if !o.isRunning(ctx, c) {
			if err := o.stopAndDelete(ctx, c); err != nil {
				return fmt.Errorf("terminate non-running replica of %q: %w", serviceID, err)
			}
		}
	}
	return nil
}
