package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"formrelay/internal/broker"
	"formrelay/internal/config"
	"formrelay/internal/constants"
	"formrelay/internal/db"
	"formrelay/internal/lock"
	"formrelay/internal/metrics"
	"formrelay/internal/notify"
	"formrelay/internal/pipeline"
	"formrelay/internal/queue"
	"formrelay/internal/repository"
	"formrelay/internal/secure"
	"formrelay/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	sqlDB, err := sql.Open("postgres", cfg.PostgresConnection)
	if err != nil {
		log.Fatal("database connection failed:", err)
	}
	defer sqlDB.Close()

	locks := lock.NewPostgresDistributedLockManager(sqlDB)
	if err := db.Init(cfg.PostgresConnection, cfg.MigrationsDir, locks); err != nil {
		log.Fatal("migrations:", err)
	}

	box, err := secure.NewBox(cfg.ContextKey)
	if err != nil {
		log.Fatal("context key:", err)
	}

	subRepo := repository.NewPostgresSubmissionRepository(sqlDB)
	jobRepo := queue.NewPostgresJobRepository(sqlDB)
	recorder := metrics.LogRecorder{}

	client := upstream.NewHTTPClient(
		cfg.Upstream.BaseURL,
		cfg.Upstream.APIKey,
		time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second,
	)

	controller := pipeline.NewController(subRepo, client, box, notify.LogDispatcher{}, recorder, pipeline.ControllerConfig{
		SendFailureEmail:  cfg.Notify.SendFailureEmail,
		FailureTemplateID: cfg.Notify.FailureTemplateID,
	})

	registry, err := queue.NewRegistry(
		pipeline.SubmitHandler(controller, cfg.Queue.MaxAttempts),
	)
	if err != nil {
		log.Fatal("registry:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Broker.Enabled {
		mq, err := broker.NewRabbitMQ(cfg.Broker.URL, cfg.Broker.Exchange, cfg.Broker.Queue, cfg.Broker.RoutingKey)
		if err != nil {
			log.Fatal("broker:", err)
		}
		defer mq.Close()

		go func() {
			if err := queue.Drain(ctx, mq, cfg.Broker.Queue, jobRepo, registry); err != nil && ctx.Err() == nil {
				log.Println("broker drain stopped:", err)
			}
		}()
	}

	runner := queue.NewRunner(jobRepo, registry, locks, cfg.Instance, queue.RunnerOptions{
		Interval:       time.Duration(cfg.Queue.IntervalSeconds) * time.Second,
		WorkerCount:    cfg.Queue.WorkerCount,
		BatchSize:      cfg.Queue.BatchSize,
		RetryBaseDelay: time.Duration(cfg.Queue.RetryBaseDelaySeconds) * time.Second,
	})
	go func() {
		if err := runner.Start(ctx); err != nil && ctx.Err() == nil {
			log.Println("runner stopped:", err)
		}
	}()

	poller := pipeline.NewStatusPoller(subRepo, client, recorder, cfg.Poller.BatchSize)
	go func() {
		err := pipeline.RunOnSchedule(ctx, "poller", cfg.Poller.Schedule, locks, constants.PollerLock, poller.Poll)
		if err != nil && ctx.Err() == nil {
			log.Println("poller stopped:", err)
		}
	}()

	sweep := pipeline.NewRetentionSweep(subRepo, recorder, time.Duration(cfg.Retention.MaxAgeDays)*24*time.Hour)
	go func() {
		err := pipeline.RunOnSchedule(ctx, "retention", cfg.Retention.Schedule, locks, constants.RetentionLock, sweep.Sweep)
		if err != nil && ctx.Err() == nil {
			log.Println("retention stopped:", err)
		}
	}()

	log.Printf("formrelay worker %s started", cfg.Instance)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Println("formrelay shutting down gracefully...")
	cancel()

	for _, lockID := range constants.Locks {
		_ = locks.Release(lockID)
	}
	_ = locks.Close()

	log.Println("formrelay shutdown complete")
}
