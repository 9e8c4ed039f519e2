package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/dannyrandall/moviecatalog/internal/auth"
	"github.com/dannyrandall/moviecatalog/internal/logging"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	apiKeyHeader    = "x-api-key"
)

type (
	loggerKey struct{}
	stateKey  struct{}
)

// requestState is filled in by inner middleware and read by the request logger.
type requestState struct {
	username string
}

// LoggerFrom returns the request logger, or a no-op logger outside a request.
func LoggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// requestLogger tags each request with an id and trace id, logs the caller and records
// request metrics once the handler returns.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = ksuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)

		log := a.logger.With(zap.String("requestId", id))
		if a.traceID != nil {
			log = logging.WithTraceID(log, a.traceID(r.Context()))
		}
		st := &requestState{}
		ctx := context.WithValue(r.Context(), loggerKey{}, log)
		ctx = context.WithValue(ctx, stateKey{}, st)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		user := st.username
		if user == "" {
			user = username(r)
		}
		log.Info("handled request",
			zap.String("username", user),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
		a.metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

// authenticate enforces the session cookie in front of next.
func (a *API) authenticate(next http.Handler) http.Handler {
	return a.authorizer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
			st.username = username(r)
		}
		next.ServeHTTP(w, r)
	}))
}

// requireAPIKey guards write routes with the admin api key.
func (a *API) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if a.adminAPIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.adminAPIKey)) != 1 {
			writeMessage(w, r, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// username is the caller's name from the in-process decision or, behind API Gateway, from
// the authorizer context.
func username(r *http.Request) string {
	if d, ok := auth.DecisionFromContext(r.Context()); ok {
		return d.Username
	}

	rc, ok := core.GetAPIGatewayContextFromContext(r.Context())
	if !ok {
		return ""
	}
	for _, key := range []string{"username", "principalId"} {
		if s, ok := rc.Authorizer[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
