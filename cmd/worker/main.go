package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prayatna/fraudscreen/backend/internal/database"
	"github.com/prayatna/fraudscreen/backend/internal/queue"
	"github.com/prayatna/fraudscreen/backend/internal/storage"
	"github.com/prayatna/fraudscreen/backend/internal/util"
	"github.com/prayatna/fraudscreen/backend/pkg/capability"
	"github.com/prayatna/fraudscreen/backend/pkg/capability/explain"
	explainollama "github.com/prayatna/fraudscreen/backend/pkg/capability/explain/ollama"
	explainopenai "github.com/prayatna/fraudscreen/backend/pkg/capability/explain/openai"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
	"github.com/prayatna/fraudscreen/backend/pkg/leaselock"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/logger/console"
	"github.com/prayatna/fraudscreen/backend/pkg/pipeline"
	pgxstore "github.com/prayatna/fraudscreen/backend/pkg/store/pgx"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// Init pgx client
	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}
	pgConn, err := database.Connect(ctx)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	cases := pgxstore.NewCaseStore(pgConn)
	records := pgxstore.NewRecordStore(pgConn)
	locks := leaselock.New(pgConn)

	cache := graph.NewCache(graph.NewCacheParams{
		MinRingSize: util.GetEnvInt("SCREEN_MIN_RING_SIZE", 3),
		Capacity:    util.GetEnvInt("SCREEN_GRAPH_CACHE_SIZE", 8),
	})

	orch := &pipeline.Orchestrator{
		Extraction: capability.NewExtractionClient(util.GetEnv("NLP_SERVICE_URL")),
		Anomaly:    capability.NewAnomalyClient(util.GetEnv("ANOMALY_SERVICE_URL")),
		Duplicate:  capability.NewDuplicateClient(util.GetEnv("DUPLICATE_SERVICE_URL")),

		Graph:   cache,
		Records: records,

		Explainer: newExplainer(),

		StageTimeout: time.Duration(util.GetEnvInt("SCREEN_STAGE_TIMEOUT_MS", 5000)) * time.Millisecond,
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.ScreenQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// A single consumer channel with prefetch=1 so only one document is
	// screened at a time.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				processingErr := queue.ProcessScreenMessage(
					ctx, s3Client, orch, locks, cases, records, string(qm.msg.Body),
				)

				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				logger.Info("Processing time", "duration", time.Since(startTime).Round(time.Millisecond).String())
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func newExplainer() explain.Client {
	switch util.GetEnv("EXPLAIN_ADAPTER") {
	case "openai":
		return explainopenai.NewExplainClient(explainopenai.NewExplainClientParams{
			Model:   util.GetEnv("EXPLAIN_MODEL"),
			BaseURL: util.GetEnv("EXPLAIN_URL"),
			ApiKey:  util.GetEnv("EXPLAIN_KEY"),
		})
	case "ollama":
		client, err := explainollama.NewExplainClient(explainollama.NewExplainClientParams{
			Model:   util.GetEnv("EXPLAIN_MODEL"),
			BaseURL: util.GetEnv("EXPLAIN_URL"),
			ApiKey:  util.GetEnv("EXPLAIN_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("EXPLAIN_PARALLEL_REQ", 4)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama explain client", "err", err)
		}
		return client
	default:
		return nil
	}
}
