// Package handlers serves the catalogue's HTTP API.
package handlers

import (
	"context"
	"net/http"

	"github.com/dannyrandall/moviecatalog/internal/auth"
	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"github.com/dannyrandall/moviecatalog/internal/movies"
	"github.com/dannyrandall/moviecatalog/internal/store"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Catalog is the data the API serves.
type Catalog interface {
	CreateMovie(ctx context.Context, m movies.Movie) (movies.Movie, error)
	GetMovie(ctx context.Context, id int) (movies.Movie, error)
	DeleteMovie(ctx context.Context, id int) (movies.Movie, error)
	ListMovies(ctx context.Context) ([]movies.Movie, error)
	ListCast(ctx context.Context, movieID int) ([]movies.CastMember, error)
	GetCastMember(ctx context.Context, movieID, actorID int) (movies.CastMember, error)
	ListAwards(ctx context.Context, q store.AwardQuery) ([]movies.Award, error)
}

type Options struct {
	Catalog    Catalog
	Authorizer *auth.Authorizer
	// EnforceAuth checks cookies and api keys in process. Leave it off behind API Gateway,
	// which runs the authorizer and api key checks itself.
	EnforceAuth bool
	AdminAPIKey string

	Logger  *zap.Logger
	Metrics *metrics.Collector
	// TraceID returns the trace id of the request in ctx for log correlation.
	TraceID func(ctx context.Context) string
	// AllowedOrigins lists the origins allowed to send cookies. Empty allows any origin
	// without credentials.
	AllowedOrigins []string
}

type API struct {
	catalog     Catalog
	authorizer  *auth.Authorizer
	enforceAuth bool
	adminAPIKey string
	validate    *validator.Validate
	logger      *zap.Logger
	metrics     *metrics.Collector
	traceID     func(context.Context) string
}

func New(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		catalog:     opts.Catalog,
		authorizer:  opts.Authorizer,
		enforceAuth: opts.EnforceAuth,
		adminAPIKey: opts.AdminAPIKey,
		validate:    validator.New(),
		logger:      logger,
		metrics:     opts.Metrics,
		traceID:     opts.TraceID,
	}
}

// NewRouter builds the routes for opts.
func NewRouter(opts Options) *chi.Mux {
	api := New(opts)

	// Browsers refuse credentialed responses for a wildcard origin, so cookies cross origins
	// only when the origins are listed.
	origins, credentials := opts.AllowedOrigins, true
	if len(origins) == 0 {
		origins, credentials = []string{"*"}, false
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(api.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cookie", apiKeyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Location"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", opts.Metrics.Handler())

	r.Get("/public", api.public)
	r.Get("/protected", api.protected)

	r.Group(func(r chi.Router) {
		if api.enforceAuth {
			r.Use(api.authenticate)
		}
		r.Get("/movies", api.listMovies)
		r.Get("/movies/{movieId}", api.getMovie)
		r.Get("/movies/{movieId}/actors", api.listCast)
		r.Get("/movies/{movieId}/actors/{actorId}", api.getCastMember)
		r.Get("/awards", api.listAwards)
	})

	r.Group(func(r chi.Router) {
		if api.enforceAuth {
			r.Use(api.requireAPIKey)
		}
		r.Post("/movies", api.createMovie)
		r.Delete("/movies/{movieId}", api.deleteMovie)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
