package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/sheetflow/sheetflow/api"
	"github.com/sheetflow/sheetflow/config"
	"github.com/sheetflow/sheetflow/db/connection"
	"github.com/sheetflow/sheetflow/db/repository"
	"github.com/sheetflow/sheetflow/gateway"
	httpx "github.com/sheetflow/sheetflow/http"
	"github.com/sheetflow/sheetflow/publisher"
	"github.com/sheetflow/sheetflow/queue"
	"github.com/sheetflow/sheetflow/worker"
)

var grpcPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP edge and the streaming result gateway",
	Long: `serve exposes the upload/status HTTP surface (§6 HTTP surface) and a
gRPC/SSE streaming gateway (C8) over the schema and validation results
queues, so external subscribers can watch completed tasks without
polling.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&grpcPort, "grpc-port", 9090, "port the WorkerStream gRPC service listens on")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadPipelineConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	entry := newEntry(cfg, "serve")

	kvMgr := connection.NewKVManager(cfg.KVStoreURL)
	docMgr := connection.NewDocManager(cfg.DocStoreURL)
	kv := repository.NewResilientKVStore(kvMgr, cfg.KVRetry.Policy)
	docs := repository.NewResilientDocStore(docMgr, cfg.DocRetry.Policy)
	schemas := repository.NewResilientSchemaStore(docMgr, cfg.DocRetry.Policy)
	tasks := repository.NewTaskRepository(kv, docs, cfg.TTL)
	defer tasks.Close()
	defer schemas.Close()

	factory := queue.NewFactory(cfg.Broker.URL)
	topology := cfg.Broker.Topology()
	pub := publisher.New(factory, cfg.Broker.ExchangeName, "edge")
	edge := api.NewEdge(tasks, schemas, pub, entry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := gateway.NewManager(entry)
	schemaResultsCfg := config.BuildWorkerConfig("gateway-schemas-results", "schemas-results", cfg.BrokerRetry, cfg.Worker)
	validationResultsCfg := config.BuildWorkerConfig("gateway-validations-results", "validations-results", cfg.BrokerRetry, cfg.Worker)
	manager.Spawn(ctx, "schemas-results", worker.New(factory, topology, schemaResultsCfg, entry))
	manager.Spawn(ctx, "validations-results", worker.New(factory, topology, validationResultsCfg, entry))
	defer manager.StopAll()

	grpcServer := grpc.NewServer()
	gateway.NewServer(manager, grpcServer)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("listen on grpc port %d: %w", grpcPort, err)
	}
	go func() {
		entry.Infof("WorkerStream gRPC service listening on :%d", grpcPort)
		if err := grpcServer.Serve(lis); err != nil {
			entry.WithError(err).Error("grpc server stopped")
		}
	}()
	defer grpcServer.GracefulStop()

	runCfg := httpx.DefaultRunServerConfig("sheetflow", cfg.Service.Name, cfg.Service.Version)
	runCfg.Port = cfg.Server.Port
	runCfg.ShutdownTimeout = 10 * time.Second

	return httpx.RunServer(runCfg, func(e *echo.Echo) error {
		api.RegisterRoutes(e, edge, cfg.Auth.APIKey)
		e.GET("/stream/:worker_id", gateway.SSEHandler(manager))
		return nil
	})
}
