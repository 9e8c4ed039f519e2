// Command movies-lambda serves the catalogue API behind API Gateway.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/dannyrandall/moviecatalog/internal/app"
	"github.com/dannyrandall/moviecatalog/internal/handlers"
	"go.uber.org/zap"
)

func main() {
	setupCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	rt, err := app.Start(setupCtx, "movies-api")
	if err != nil {
		log.Fatalf("unable to start: %s", err)
	}

	awsCfg, err := rt.AWSConfig(setupCtx)
	if err != nil {
		rt.Logger.Fatal("unable to load aws config", zap.Error(err))
	}
	catalog, err := rt.Catalog(awsCfg)
	if err != nil {
		rt.Logger.Fatal("unable to create catalog", zap.Error(err))
	}
	authorizer, err := rt.Authorizer()
	if err != nil {
		rt.Logger.Fatal("unable to create authorizer", zap.Error(err))
	}

	// API Gateway runs the authorizer and api key checks before invoking us.
	adapter := chiadapter.New(handlers.NewRouter(handlers.Options{
		Catalog:        catalog,
		Authorizer:     authorizer,
		Logger:         rt.Logger,
		Metrics:        rt.Metrics,
		TraceID:        rt.Tracing.TraceID,
		AllowedOrigins: rt.Config.AllowedOrigins,
	}))

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		if err != nil {
			rt.Logger.Error("proxy request", zap.String("path", req.Path), zap.Error(err))
		}
		return resp, err
	})
}
