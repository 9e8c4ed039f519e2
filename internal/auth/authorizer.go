// Package auth decides whether a request's session cookie grants access to a resource.
package auth

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"github.com/dannyrandall/moviecatalog/internal/session"
	"go.uber.org/zap"
)

// Reason records why a decision was reached.
type Reason string

const (
	ReasonVerified     Reason = "verified"
	ReasonNoCredential Reason = "no_credential"
	ReasonInvalidToken Reason = "invalid_token"
)

// Decision is the authorization outcome for one request. It is never reused across requests.
type Decision struct {
	Effect      Effect
	PrincipalID string
	Username    string
	Reason      Reason
	Resource    string
}

// Allowed reports whether the decision grants access.
func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

// Response renders the decision as an API Gateway authorizer response.
func (d Decision) Response() events.APIGatewayCustomAuthorizerResponse {
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID:    d.PrincipalID,
		PolicyDocument: BuildPolicy(d.Resource, d.Effect),
		Context: map[string]interface{}{
			"username": d.Username,
		},
	}
}

// TokenVerifier verifies a raw session token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Claims, bool)
}

// Authorizer turns a request's cookies into an Allow or Deny decision.
type Authorizer struct {
	verifier TokenVerifier
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewAuthorizer(verifier TokenVerifier, logger *zap.Logger, m *metrics.Collector) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{verifier: verifier, logger: logger, metrics: m}
}

// Decide authorizes a request given its headers.
func (a *Authorizer) Decide(ctx context.Context, headers map[string]string, resource string) Decision {
	cookies, ok := session.Parse(headers)
	return a.decide(ctx, cookies, ok, resource)
}

// Handle is the Lambda REQUEST authorizer entrypoint.
func (a *Authorizer) Handle(ctx context.Context, req events.APIGatewayCustomAuthorizerRequestTypeRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	d := a.Decide(ctx, req.Headers, req.MethodArn)
	return d.Response(), nil
}

func (a *Authorizer) decide(ctx context.Context, cookies session.Cookies, present bool, resource string) Decision {
	d := Decision{Effect: Deny, Reason: ReasonNoCredential, Resource: resource}

	if present {
		// a missing token cookie is verified as an empty token, which always fails
		token, _ := cookies.Token()
		if claims, ok := a.verifier.Verify(ctx, token); ok {
			d = Decision{
				Effect:      Allow,
				PrincipalID: claims.Subject,
				Username:    username(claims),
				Reason:      ReasonVerified,
				Resource:    resource,
			}
		} else if _, hasToken := cookies.Token(); hasToken {
			d.Reason = ReasonInvalidToken
		}
	}

	a.metrics.ObserveDecision(string(d.Effect), string(d.Reason))
	a.logger.Info("authorization decision",
		zap.String("effect", string(d.Effect)),
		zap.String("reason", string(d.Reason)),
		zap.String("principal", d.PrincipalID),
		zap.String("resource", resource))
	return d
}

func username(c Claims) string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}
