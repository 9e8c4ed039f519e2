package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dannyrandall/moviecatalog/internal/session"
)

type decisionKey struct{}

// WithDecision stores an Allow decision on the context.
func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext returns the decision stored by the middleware, if any.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// Resource names the resource a plain HTTP request targets.
func Resource(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// DecideRequest authorizes an HTTP request from its cookie header.
func (a *Authorizer) DecideRequest(r *http.Request) Decision {
	cookies, ok := session.FromRequest(r)
	return a.decide(r.Context(), cookies, ok, Resource(r))
}

// Middleware enforces cookie authorization in front of next. Requests without a credential
// get a 401 and denied requests a 403.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := a.DecideRequest(r)
		if !d.Allowed() {
			Reject(w, d)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
	})
}

// Reject writes the error response for a Deny decision.
func Reject(w http.ResponseWriter, d Decision) {
	code, msg := http.StatusForbidden, "Forbidden"
	if d.Reason == ReasonNoCredential {
		code, msg = http.StatusUnauthorized, "Unauthorised request"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
