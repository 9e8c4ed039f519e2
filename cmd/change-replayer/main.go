// Command change-replayer replays stream batches that the change logger gave up on.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/dannyrandall/moviecatalog/internal/app"
	"github.com/dannyrandall/moviecatalog/internal/changelog"
	"github.com/dannyrandall/moviecatalog/internal/changequeue"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	rt, err := app.Start(setupCtx, "movies-change-replayer")
	if err != nil {
		log.Fatalf("unable to start: %s", err)
	}
	defer rt.Close(context.Background())

	if err := rt.Config.RequireFailureQueue(); err != nil {
		rt.Logger.Fatal("invalid config", zap.Error(err))
	}
	awsCfg, err := rt.AWSConfig(setupCtx)
	if err != nil {
		rt.Logger.Fatal("unable to load aws config", zap.Error(err))
	}

	q := &changequeue.Replayer{
		SQS:       sqs.NewFromConfig(awsCfg),
		Streams:   dynamodbstreams.NewFromConfig(awsCfg),
		Projector: changelog.NewProjector(rt.Logger, rt.Metrics),
		Tracer:    rt.Tracing.Tracer(),
		Logger:    rt.Logger,
		QueueName: rt.Config.FailureQueueName,
		QueueURL:  rt.Config.FailureQueueURL,
		BatchSize: rt.Config.StreamBatchSize,
		// The first delivery plus the configured retries.
		MaxAttempts: rt.Config.StreamRetryAttempts + 1,
	}

	rt.Logger.Info("waiting for failed stream batches", zap.String("queue", q.QueueURL))
	if err := q.ReceiveAndProcess(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Logger.Fatal("unable to receive and process", zap.Error(err))
	}
}
