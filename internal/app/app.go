// Package app wires configuration, logging, tracing and AWS clients for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dannyrandall/moviecatalog/internal/auth"
	"github.com/dannyrandall/moviecatalog/internal/config"
	"github.com/dannyrandall/moviecatalog/internal/logging"
	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"github.com/dannyrandall/moviecatalog/internal/store"
	"github.com/dannyrandall/moviecatalog/internal/tracing"
	"go.uber.org/zap"
)

const metricsNamespace = "movies"

// Runtime is what every binary sets up before serving.
type Runtime struct {
	Config  *config.Config
	Logger  *zap.Logger
	Tracing *tracing.Tracing
	Metrics *metrics.Collector
}

// Start loads configuration and starts logging and tracing.
func Start(ctx context.Context, defaultService string) (*Runtime, error) {
	cfg, err := config.Load(defaultService)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("service", cfg.ServiceName))

	tr, err := tracing.Setup(ctx, cfg.Tracing, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	logger.Info("tracing configured", zap.String("mode", tr.Mode()))

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Tracing: tr,
		Metrics: metrics.New(metricsNamespace),
	}, nil
}

// Close flushes traces and logs.
func (rt *Runtime) Close(ctx context.Context) {
	if err := rt.Tracing.Shutdown(ctx); err != nil {
		rt.Logger.Warn("shutdown tracing", zap.Error(err))
	}
	_ = rt.Logger.Sync()
}

// AWSConfig loads the SDK configuration with tracing middleware installed.
func (rt *Runtime) AWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if rt.Config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(rt.Config.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	rt.Tracing.InstrumentAWS(&cfg)
	return cfg, nil
}

// Catalog builds the table client and the typed catalog over it.
func (rt *Runtime) Catalog(awsCfg aws.Config) (*store.Catalog, error) {
	if err := rt.Config.RequireTable(); err != nil {
		return nil, err
	}
	rt.Logger.Info("using movies table", zap.String("table", rt.Config.TableName))

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if rt.Config.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(rt.Config.DynamoDBEndpoint)
		}
	})
	return store.NewCatalog(store.NewGateway(db, rt.Config.TableName, rt.Logger, rt.Metrics)), nil
}

// Authorizer builds the cookie authorizer backed by the identity provider's key set.
func (rt *Runtime) Authorizer() (*auth.Authorizer, error) {
	if err := rt.Config.RequireIdentityProvider(); err != nil {
		return nil, err
	}

	url := rt.Config.JWKSURL
	if url == "" {
		url = auth.JWKSURL(rt.Config.Region, rt.Config.UserPoolID)
	}
	selection := auth.KeySelection(rt.Config.JWKSKeySelection)
	rt.Logger.Info("verifying session tokens",
		zap.String("jwks", url),
		zap.String("keySelection", string(selection)),
		zap.Duration("cacheTTL", rt.Config.JWKSCacheTTL))

	keys := auth.NewKeySet(auth.KeySetOptions{
		URL:       url,
		Client:    rt.Tracing.HTTPClient(),
		Selection: selection,
		TTL:       rt.Config.JWKSCacheTTL,
		Logger:    rt.Logger,
		Metrics:   rt.Metrics,
	})
	return auth.NewAuthorizer(auth.NewVerifier(keys, rt.Logger), rt.Logger, rt.Metrics), nil
}
