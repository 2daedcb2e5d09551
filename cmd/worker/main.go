package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lpellerin/invoiceflow/internal/bootstrap"
	"github.com/lpellerin/invoiceflow/internal/config"
	"github.com/lpellerin/invoiceflow/internal/observability/metrics"
)

const serviceName = "invoiceflow-worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.TrainingPollSchedule, func() {
		pollCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		pollErr := app.ModelUC.PollPending(pollCtx)
		workerMetrics.RecordTrainingPoll(serviceName, pollErr)
		if pollErr != nil {
			log.Printf("training poll error: %v", pollErr)
		}
	}); err != nil {
		log.Fatalf("schedule training poll: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	instrument := func(unit string, timeout time.Duration, run func(context.Context, string) error) func(context.Context, string) error {
		return func(handlerCtx context.Context, id string) error {
			workCtx, cancel := context.WithTimeout(handlerCtx, timeout)
			defer cancel()

			workerMetrics.StartWork(unit)
			started := time.Now()
			err := run(workCtx, id)
			workerMetrics.FinishWork(serviceName, unit, time.Since(started), err)
			return err
		}
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.Queue.SubscribeDocumentParse(ctx, instrument("parse", 5*time.Minute, app.ProcessUC.ProcessByID))
	}()
	go func() {
		errCh <- app.Queue.SubscribePreviewApprove(ctx, instrument("approve", 1*time.Minute, app.ApprovalUC.CommitApproval))
	}()

	log.Printf("worker consuming parse and approval queues")
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			log.Fatalf("worker subscribe error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("worker metrics shutdown error: %v", err)
	}
}
