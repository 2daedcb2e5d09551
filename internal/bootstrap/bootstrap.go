package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lpellerin/invoiceflow/internal/config"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
	"github.com/lpellerin/invoiceflow/internal/core/usecase"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/extraction/vision"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/finetune"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/queue/nats"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/repository/postgres"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/resilience"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/storage/localfs"
	"github.com/lpellerin/invoiceflow/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.MessageQueue
	Docs  ports.DocumentRepository

	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	PreviewUC  ports.PreviewService
	ApprovalUC ports.ApprovalCommitter
	BatchUC    ports.BatchService
	FeedbackUC ports.FeedbackService
	TrainingUC ports.TrainingDataBuilder
	ModelUC    ports.ModelManager

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	results := postgres.NewParseResultRepository(db)
	previews := postgres.NewPreviewRepository(db)
	feedback := postgres.NewFeedbackRepository(db)
	versions := postgres.NewModelVersionRepository(db)
	store := postgres.NewDomainStore(db)
	tx := postgres.NewTransactor(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	extractor := vision.New(vision.Options{
		BaseURL:      cfg.VisionURL,
		APIKey:       cfg.VisionAPIKey,
		DefaultModel: cfg.VisionDefaultModel,
		Timeout:      time.Duration(cfg.VisionTimeoutSecs) * time.Second,
		Executor:     executor,
		Storage:      storage,
	})
	tuner := finetune.New(finetune.Options{
		BaseURL:  cfg.FineTuneURL,
		APIKey:   cfg.FineTuneAPIKey,
		Executor: executor,
	})

	feedbackUC := usecase.NewFeedbackUseCase(feedback, logger)
	previewUC := usecase.NewPreviewUseCase(previews, docs, queue, feedbackUC, logger)
	approvalUC := usecase.NewApprovalOrchestrator(previews, docs, store, tx, logger)
	quality := usecase.NewTaskQualityScorer(extractor)
	batchUC := usecase.NewBatchUseCase(previews, previewUC, quality, logger)
	ingestUC := usecase.NewIngestDocumentUseCase(docs, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(docs, results, previews, store, versions, extractor)
	trainingUC := usecase.NewTrainingDataUseCase(feedback, results, logger)
	modelUC := usecase.NewModelVersionUseCase(
		versions, feedback, results, docs,
		trainingUC, tuner, extractor, tx,
		cfg.BaseModel, logger,
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue: queue,
		Docs:  docs,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		PreviewUC:  previewUC,
		ApprovalUC: approvalUC,
		BatchUC:    batchUC,
		FeedbackUC: feedbackUC,
		TrainingUC: trainingUC,
		ModelUC:    modelUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
