package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestVerifier(t *testing.T) {
	ctx := context.Background()
	k1 := newSigningKey(t, "k1")
	srv := newJWKSServer(t, k1)
	v := NewVerifier(NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Hour}), nil)

	t.Run("valid token", func(t *testing.T) {
		claims, ok := v.Verify(ctx, k1.sign(t, validClaims("user-1", "a@example.com")))
		assert.True(t, ok)
		assert.Equal(t, Claims{Subject: "user-1", Email: "a@example.com"}, claims)
	})

	t.Run("valid token without email", func(t *testing.T) {
		claims, ok := v.Verify(ctx, k1.sign(t, validClaims("user-2", "")))
		assert.True(t, ok)
		assert.Equal(t, "user-2", claims.Subject)
		assert.Empty(t, claims.Email)
	})

	invalid := map[string]func(t *testing.T) string{
		"empty":   func(t *testing.T) string { return "" },
		"garbage": func(t *testing.T) string { return "abc" },
		"expired": func(t *testing.T) string {
			c := validClaims("user-1", "")
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return k1.sign(t, c)
		},
		"not valid yet": func(t *testing.T) string {
			c := validClaims("user-1", "")
			c["nbf"] = time.Now().Add(time.Hour).Unix()
			return k1.sign(t, c)
		},
		"missing subject": func(t *testing.T) string {
			c := validClaims("", "")
			delete(c, "sub")
			return k1.sign(t, c)
		},
		"signed by unknown key": func(t *testing.T) string {
			return newSigningKey(t, "k1").sign(t, validClaims("user-1", ""))
		},
		"unknown kid": func(t *testing.T) string {
			return newSigningKey(t, "other").sign(t, validClaims("user-1", ""))
		},
		"hmac token": func(t *testing.T) string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("user-1", ""))
			tok.Header["kid"] = "k1"
			s, err := tok.SignedString([]byte("secret"))
			assert.NoError(t, err)
			return s
		},
		"unsigned token": func(t *testing.T) string {
			tok := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("user-1", ""))
			s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
			assert.NoError(t, err)
			return s
		},
	}

	for name, token := range invalid {
		t.Run(name, func(t *testing.T) {
			claims, ok := v.Verify(ctx, token(t))
			assert.False(t, ok)
			assert.Equal(t, Claims{}, claims)
		})
	}
}

func TestVerifierUnreachableProvider(t *testing.T) {
	k1 := newSigningKey(t, "k1")
	srv := newJWKSServer(t, k1)
	url := srv.URL
	srv.Close()

	v := NewVerifier(NewKeySet(KeySetOptions{URL: url}), nil)
	_, ok := v.Verify(context.Background(), k1.sign(t, validClaims("user-1", "")))
	assert.False(t, ok)
}

func TestVerifierKeyRotation(t *testing.T) {
	ctx := context.Background()
	k1, k2 := newSigningKey(t, "k1"), newSigningKey(t, "k2")
	srv := newJWKSServer(t, k1, k2)
	token := k2.sign(t, validClaims("user-1", ""))

	byKid := NewVerifier(NewKeySet(KeySetOptions{URL: srv.URL, Selection: SelectByKeyID}), nil)
	_, ok := byKid.Verify(ctx, token)
	assert.True(t, ok)

	first := NewVerifier(NewKeySet(KeySetOptions{URL: srv.URL, Selection: SelectFirst}), nil)
	_, ok = first.Verify(ctx, token)
	assert.False(t, ok, "first-key selection cannot verify tokens signed by later keys")
}
