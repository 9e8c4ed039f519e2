package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dannyrandall/moviecatalog/internal/app"
	"github.com/dannyrandall/moviecatalog/internal/handlers"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Timeout for setup functions
	setupCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	rt, err := app.Start(setupCtx, "movies")
	if err != nil {
		log.Fatalf("unable to start: %s", err)
	}
	defer rt.Close(context.Background())

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
	if rt.Config.AdminAPIKey == "" {
		rt.Logger.Warn("ADMIN_API_KEY is not set, writes will be rejected")
	}

	router := handlers.NewRouter(handlers.Options{
		Catalog:        catalog,
		Authorizer:     authorizer,
		EnforceAuth:    true,
		AdminAPIKey:    rt.Config.AdminAPIKey,
		Logger:         rt.Logger,
		Metrics:        rt.Metrics,
		TraceID:        rt.Tracing.TraceID,
		AllowedOrigins: rt.Config.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              rt.Config.ServerAddress,
		Handler:           rt.Tracing.Handler(router, "movies"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.Logger.Error("shutdown server", zap.Error(err))
		}
	}()

	rt.Logger.Info("starting server", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rt.Logger.Fatal("error serving", zap.Error(err))
	}
}
