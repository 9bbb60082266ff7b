package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prayatna/fraudscreen/backend/internal/database"
	"github.com/prayatna/fraudscreen/backend/internal/queue"
	mid "github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/internal/storage"
	"github.com/prayatna/fraudscreen/backend/internal/util"
	"github.com/prayatna/fraudscreen/backend/pkg/capability"
	"github.com/prayatna/fraudscreen/backend/pkg/capability/explain"
	explainollama "github.com/prayatna/fraudscreen/backend/pkg/capability/explain/ollama"
	explainopenai "github.com/prayatna/fraudscreen/backend/pkg/capability/explain/openai"
	"github.com/prayatna/fraudscreen/backend/pkg/graph"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
	"github.com/prayatna/fraudscreen/backend/pkg/pipeline"
	pgxstore "github.com/prayatna/fraudscreen/backend/pkg/store/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	jwksUrl := util.GetEnv("AUTH_URL") + "/jwks"
	k, err := keyfunc.NewDefault([]string{jwksUrl})
	if err != nil {
		logger.Fatal("Failed to load jwks keys", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	conn, err := database.Connect(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}

	if err := queue.SetupQueues(ch, []string{queue.ScreenQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	cases := pgxstore.NewCaseStore(conn)
	records := pgxstore.NewRecordStore(conn)

	cache := graph.NewCache(graph.NewCacheParams{
		MinRingSize: util.GetEnvInt("SCREEN_MIN_RING_SIZE", 3),
		Capacity:    util.GetEnvInt("SCREEN_GRAPH_CACHE_SIZE", 8),
	})

	orch := newOrchestrator(cache, records)

	masterAPIKey := util.GetEnv("MASTER_API_KEY")
	masterUserID, _ := strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)
	masterUserRole := util.GetEnv("MASTER_USER_ROLE")

	app := &mid.App{
		DBConn:       conn,
		Queue:        ch,
		Key:          &k,
		S3:           s3,
		Cases:        cases,
		Records:      records,
		Orchestrator: orch,
		GraphCache:   cache,

		MasterAPIKey:   masterAPIKey,
		MasterUserID:   masterUserID,
		MasterUserRole: masterUserRole,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// newOrchestrator wires the pipeline stages from SCREEN_* and EXPLAIN_* env
// configuration. The worker builds its orchestrator the same way.
func newOrchestrator(cache *graph.Cache, records pipeline.RecordSource) *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Extraction: capability.NewExtractionClient(util.GetEnv("NLP_SERVICE_URL")),
		Anomaly:    capability.NewAnomalyClient(util.GetEnv("ANOMALY_SERVICE_URL")),
		Duplicate:  capability.NewDuplicateClient(util.GetEnv("DUPLICATE_SERVICE_URL")),

		Graph:   cache,
		Records: records,

		Explainer: newExplainer(),

		StageTimeout: time.Duration(util.GetEnvInt("SCREEN_STAGE_TIMEOUT_MS", 5000)) * time.Millisecond,
	}
}

// newExplainer picks the explanation backend from EXPLAIN_ADAPTER. With no
// adapter configured the explanation stage reports itself unavailable.
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
