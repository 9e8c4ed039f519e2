package auth

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestJWKSURL(t *testing.T) {
	assert.Equal(t,
		"https://cognito-idp.eu-west-1.amazonaws.com/eu-west-1_abc/.well-known/jwks.json",
		JWKSURL("eu-west-1", "eu-west-1_abc"))
}

func TestKeySet(t *testing.T) {
	ctx := context.Background()

	t.Run("caches within ttl", func(t *testing.T) {
		k1 := newSigningKey(t, "k1")
		srv := newJWKSServer(t, k1)
		ks := NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Hour})

		for i := 0; i < 3; i++ {
			key, err := ks.Key(ctx, "k1")
			require.NoError(t, err)
			assert.Equal(t, k1.priv.PublicKey.N, key.N)
			assert.Equal(t, k1.priv.PublicKey.E, key.E)
		}
		assert.EqualValues(t, 1, srv.hits.Load())
	})

	t.Run("zero ttl fetches every lookup", func(t *testing.T) {
		srv := newJWKSServer(t, newSigningKey(t, "k1"))
		ks := NewKeySet(KeySetOptions{URL: srv.URL})

		for i := 0; i < 3; i++ {
			_, err := ks.Key(ctx, "k1")
			require.NoError(t, err)
		}
		assert.EqualValues(t, 3, srv.hits.Load())
	})

	t.Run("expired cache refetches", func(t *testing.T) {
		srv := newJWKSServer(t, newSigningKey(t, "k1"))
		ks := NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Minute})
		now := time.Now()
		ks.now = func() time.Time { return now }

		_, err := ks.Key(ctx, "k1")
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = ks.Key(ctx, "k1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, srv.hits.Load())
	})

	t.Run("unknown kid refetches once after rotation", func(t *testing.T) {
		k1, k2 := newSigningKey(t, "k1"), newSigningKey(t, "k2")
		srv := newJWKSServer(t, k1)
		ks := NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Hour})

		_, err := ks.Key(ctx, "k1")
		require.NoError(t, err)

		srv.setKeys(k2, k1)
		key, err := ks.Key(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, k2.priv.PublicKey.N, key.N)
		assert.EqualValues(t, 2, srv.hits.Load())

		// a second miss within the refresh interval is served from the cache
		_, err = ks.Key(ctx, "nope")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.EqualValues(t, 2, srv.hits.Load())
	})

	t.Run("unknown kids refetch at most once per interval", func(t *testing.T) {
		srv := newJWKSServer(t, newSigningKey(t, "k1"))
		ks := NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Hour, RefreshInterval: time.Minute})
		now := time.Now()
		ks.now = func() time.Time { return now }

		_, err := ks.Key(ctx, "k1")
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			_, err := ks.Key(ctx, fmt.Sprintf("made-up-%d", i))
			assert.ErrorIs(t, err, ErrKeyNotFound)
		}
		assert.EqualValues(t, 2, srv.hits.Load())

		now = now.Add(2 * time.Minute)
		_, err = ks.Key(ctx, "made-up")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.EqualValues(t, 3, srv.hits.Load())

		key, err := ks.Key(ctx, "k1")
		require.NoError(t, err)
		assert.NotNil(t, key)
		assert.EqualValues(t, 3, srv.hits.Load())
	})

	t.Run("concurrent lookups share one fetch", func(t *testing.T) {
		srv := newJWKSServer(t, newSigningKey(t, "k1"))
		srv.slow(200 * time.Millisecond)
		ks := NewKeySet(KeySetOptions{URL: srv.URL})

		start := time.Now()
		var g errgroup.Group
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				_, err := ks.Key(ctx, "k1")
				return err
			})
		}
		require.NoError(t, g.Wait())

		assert.Less(t, time.Since(start), time.Second)
		assert.Less(t, srv.hits.Load(), int32(10))
	})

	t.Run("caller stops waiting when its context ends", func(t *testing.T) {
		srv := newJWKSServer(t, newSigningKey(t, "k1"))
		srv.slow(500 * time.Millisecond)
		ks := NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Hour})

		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := ks.Key(short, "k1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		// the fetch it started still completes for everyone else
		key, err := ks.Key(ctx, "k1")
		require.NoError(t, err)
		assert.NotNil(t, key)
	})

	t.Run("first selection ignores kid", func(t *testing.T) {
		k1, k2 := newSigningKey(t, "k1"), newSigningKey(t, "k2")
		srv := newJWKSServer(t, k1, k2)
		ks := NewKeySet(KeySetOptions{URL: srv.URL, Selection: SelectFirst})

		key, err := ks.Key(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, k1.priv.PublicKey.N, key.N)
	})

	t.Run("provider error", func(t *testing.T) {
		srv := newJWKSServer(t, newSigningKey(t, "k1"))
		srv.fail(http.StatusInternalServerError)
		ks := NewKeySet(KeySetOptions{URL: srv.URL, TTL: time.Hour})

		_, err := ks.Key(ctx, "k1")
		assert.Error(t, err)
	})

	t.Run("skips non rsa and malformed keys", func(t *testing.T) {
		k1 := newSigningKey(t, "k1")
		srv := newJWKSServer(t)
		srv.setRaw(
			jwk{Kty: "EC", Kid: "ec"},
			jwk{Kty: "RSA", Kid: "bad", N: "!!!", E: "AQAB"},
			k1.jwk(),
		)
		ks := NewKeySet(KeySetOptions{URL: srv.URL, Selection: SelectFirst})

		key, err := ks.Key(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, k1.priv.PublicKey.N, key.N)
	})

	t.Run("no usable keys", func(t *testing.T) {
		srv := newJWKSServer(t)
		srv.setRaw(jwk{Kty: "EC", Kid: "ec"})
		ks := NewKeySet(KeySetOptions{URL: srv.URL})

		_, err := ks.Key(ctx, "ec")
		assert.ErrorIs(t, err, ErrNoKeys)
	})
}
