// Command authorizer is the API Gateway request authorizer for the catalogue API.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dannyrandall/moviecatalog/internal/app"
	"go.uber.org/zap"
)

func main() {
	setupCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	rt, err := app.Start(setupCtx, "movies-authorizer")
	if err != nil {
		log.Fatalf("unable to start: %s", err)
	}

	authorizer, err := rt.Authorizer()
	if err != nil {
		rt.Logger.Fatal("unable to create authorizer", zap.Error(err))
	}
	lambda.Start(authorizer.Handle)
}
