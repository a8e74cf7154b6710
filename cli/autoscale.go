package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheetflow/sheetflow/autoscaler"
)

var (
	containerdSocket    string
	containerdNamespace string
	prometheusAddress   string
)

var autoscaleCmd = &cobra.Command{
	Use:   "autoscale",
	Short: "Run the label-driven autoscaler control loop",
	Long: `autoscale polls containerd for every container labeled
sheetflow.autoscale=="true", groups them into services by their
sheetflow.service label, queries Prometheus for each service's configured
metric, and scales replica counts up or down per the service's priority,
thresholds, and cooldown (C10).`,
	RunE: runAutoscale,
}

func init() {
	autoscaleCmd.Flags().StringVar(&containerdSocket, "containerd-socket", "/run/containerd/containerd.sock", "containerd gRPC socket path")
	autoscaleCmd.Flags().StringVar(&containerdNamespace, "containerd-namespace", "sheetflow", "containerd namespace to scope all calls to")
	autoscaleCmd.Flags().StringVar(&prometheusAddress, "prometheus-address", "http://localhost:9090", "Prometheus server address")
}

func runAutoscale(cmd *cobra.Command, args []string) error {
	cfg := loadPipelineConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	entry := newEntry(cfg, "autoscale")

	orchestrator, err := autoscaler.NewContainerdOrchestrator(containerdSocket, containerdNamespace)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	metrics, err := autoscaler.NewPrometheusMetricsSource(prometheusAddress)
	if err != nil {
		return err
	}

	scaler := autoscaler.New(orchestrator, metrics, cfg.Autoscaler.CheckInterval, entry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		entry.Info("shutdown signal received, stopping autoscaler")
		cancel()
	}()

	entry.Infof("autoscaler ticking every %s", cfg.Autoscaler.CheckInterval)
	return scaler.Run(ctx)
}
