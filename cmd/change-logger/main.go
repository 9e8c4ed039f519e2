// Command change-logger logs every change on the movies table stream.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dannyrandall/moviecatalog/internal/app"
	"github.com/dannyrandall/moviecatalog/internal/changelog"
)

func main() {
	setupCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	rt, err := app.Start(setupCtx, "movies-change-logger")
	if err != nil {
		log.Fatalf("unable to start: %s", err)
	}

	p := changelog.NewProjector(rt.Logger, rt.Metrics)
	lambda.Start(p.HandleStream)
}
