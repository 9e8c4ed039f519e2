package auth

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims is the verified identity carried by a session token.
type Claims struct {
	Subject string
	Email   string
}

// KeyProvider resolves the public key for a token's kid.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks session tokens issued by the identity provider.
type Verifier struct {
	keys   KeyProvider
	logger *zap.Logger
	parser *jwt.Parser
}

func NewVerifier(keys KeyProvider, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		keys:   keys,
		logger: logger,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// Verify returns the token's claims when its signature, lifetime and subject are valid.
// Any failure, including an unreachable key set, returns false. The cause is logged only.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, bool) {
	if raw == "" {
		v.logger.Info("token verification failed", zap.String("reason", "empty token"))
		return Claims{}, false
	}

	var claims tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		v.logger.Info("token verification failed",
			zap.String("reason", failureReason(err)),
			zap.Error(err))
		return Claims{}, false
	}

	if claims.Subject == "" {
		v.logger.Info("token verification failed", zap.String("reason", "missing subject"))
		return Claims{}, false
	}

	return Claims{Subject: claims.Subject, Email: claims.Email}, true
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not valid yet"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "key unavailable"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	default:
		return "invalid"
	}
}
