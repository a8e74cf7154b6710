package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/streadway/amqp"

	"github.com/sheetflow/sheetflow/config"
	"github.com/sheetflow/sheetflow/db/connection"
	"github.com/sheetflow/sheetflow/db/repository"
	"github.com/sheetflow/sheetflow/model"
	"github.com/sheetflow/sheetflow/pipeline"
	"github.com/sheetflow/sheetflow/queue"
	"github.com/sheetflow/sheetflow/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume schema and validation requests and process them",
	Long: `worker runs the messaging worker framework (C6) against the "schemas"
and "validations" queues, dispatching each dequeued message to the domain
processor (schema upsert or validation bookkeeping) and publishing a
result envelope to the matching *-results queue once the task reaches a
terminal status. It never parses spreadsheet content — that is the
compile subcommand's job, fed by an external formula parser.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := loadPipelineConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	entry := newEntry(cfg, "worker")

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
	proc := pipeline.New(tasks, schemas, entry)

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		entry.Info("shutdown signal received, stopping workers")
		cancel()
	}()

	queues := []struct {
		ownerID, queueName, resultRoutingKeyPrefix string
		kind                                       model.TaskKind
	}{
		{"worker-schemas", config.SchemaQueueName, "schemas.result.", model.KindSchemas},
		{"worker-validations", config.ValidationQueueName, "validation.result.", model.KindValidation},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(queues))
	for _, q := range queues {
		wg.Add(1)
		go func(q struct {
			ownerID, queueName, resultRoutingKeyPrefix string
			kind                                       model.TaskKind
		}) {
			defer wg.Done()
			wcfg := config.BuildWorkerConfig(q.ownerID, q.queueName, cfg.BrokerRetry, cfg.Worker)
			w := worker.New(factory, topology, wcfg, entry.WithField("queue", q.queueName))

			go func() {
				if err := w.StartConsuming(ctx); err != nil {
					errs <- fmt.Errorf("%s: %w", q.queueName, err)
				}
			}()

			drainAndProcess(ctx, w, proc, tasks, factory, cfg.Broker.ExchangeName, q.ownerID, q.resultRoutingKeyPrefix, q.kind, entry)
		}(q)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// drainAndProcess dequeues messages from w, routes each through proc, and
// publishes a result envelope carrying the task's final status to the
// result routing key once processing completes — the independent
// "processed request → result" leg of the flow the streaming gateway (C8)
// reads from.
func drainAndProcess(
	ctx context.Context,
	w *worker.Worker,
	proc *pipeline.Processor,
	tasks *repository.TaskRepository,
	factory *queue.Factory,
	exchangeName, ownerID, resultRoutingKeyPrefix string,
	kind model.TaskKind,
	logger *logrus.Entry,
) {
	stream := w.GetMessageStream(ctx, 2*time.Second, false)
	for msg := range stream {
		if msg.ID == "" {
			continue
		}
		if err := proc.Process(ctx, msg); err != nil {
			logger.WithError(err).WithField("task_id", msg.ID).Warn("message processing failed")
		}

		task, found, err := tasks.Get(ctx, msg.ID, kind)
		if err != nil || !found {
			continue
		}
		body, err := json.Marshal(task)
		if err != nil {
			logger.WithError(err).Warn("marshal result envelope failed")
			continue
		}
		routingKey := resultRoutingKeyPrefix + msg.ImportName
		if err := factory.Publish(ownerID, exchangeName, routingKey, amqp.Publishing{
			ContentType: "application/json",
			MessageId:   msg.ID,
			Body:        body,
		}); err != nil {
			logger.WithError(err).WithField("task_id", msg.ID).Warn("publish result envelope failed")
		}
	}
}
