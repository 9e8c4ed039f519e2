package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	fetchTimeout = 10 * time.Second

	// DefaultRefreshInterval is the minimum time between refetches caused by an unknown kid.
	DefaultRefreshInterval = time.Minute
)

// KeySelection decides which key of the set verifies a token.
type KeySelection string

const (
	// SelectByKeyID uses the key whose kid matches the token header.
	SelectByKeyID KeySelection = "kid"

	// SelectFirst always uses the first key of the set. A token signed with any other key
	// fails verification after the provider rotates keys.
	SelectFirst KeySelection = "first"
)

var (
	ErrNoKeys      = errors.New("key set has no usable RSA keys")
	ErrKeyNotFound = errors.New("no key matches token kid")
)

// JWKSURL returns the well-known key set location of a Cognito user pool.
func JWKSURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, userPoolID)
}

// KeySetOptions configures a KeySet.
type KeySetOptions struct {
	URL       string
	Client    *http.Client
	Selection KeySelection

	// TTL bounds how long fetched keys are reused. Zero fetches the set on every lookup.
	TTL time.Duration
	// RefreshInterval limits refetches triggered by an unknown kid to one per interval.
	// Defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

type publicKey struct {
	kid string
	key *rsa.PublicKey
}

// KeySet fetches and caches an identity provider's public signing keys.
type KeySet struct {
	url             string
	client          *http.Client
	selection       KeySelection
	ttl             time.Duration
	refreshInterval time.Duration
	breaker         *gobreaker.CircuitBreaker
	logger          *zap.Logger
	metrics         *metrics.Collector
	now             func() time.Time

	// fetches collapses concurrent loads into one request. mu guards the fields below and is
	// never held across a fetch.
	fetches     singleflight.Group
	mu          sync.RWMutex
	keys        []publicKey
	fetchedAt   time.Time
	refreshedAt time.Time
}

func NewKeySet(opts KeySetOptions) *KeySet {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	selection := opts.Selection
	if selection == "" {
		selection = SelectByKeyID
	}
	refreshInterval := opts.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}

	return &KeySet{
		url:             opts.URL,
		client:          client,
		selection:       selection,
		ttl:             opts.TTL,
		refreshInterval: refreshInterval,
		logger:          logger,
		metrics:         opts.Metrics,
		now:             time.Now,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "jwks",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// Key returns the public key that should verify a token carrying kid.
func (s *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, fresh, err := s.load(ctx, false)
	if err != nil {
		return nil, err
	}

	key, err := s.pick(keys, kid)
	if errors.Is(err, ErrKeyNotFound) && !fresh && s.allowRefresh() {
		// the provider may have rotated keys since the set was cached
		if keys, _, err = s.load(ctx, true); err != nil {
			return nil, err
		}
		key, err = s.pick(keys, kid)
	}
	return key, err
}

func (s *KeySet) pick(keys []publicKey, kid string) (*rsa.PublicKey, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if s.selection == SelectFirst {
		return keys[0].key, nil
	}
	for _, k := range keys {
		if k.kid == kid {
			return k.key, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
}

// allowRefresh reports whether an unknown kid may refetch the set, and if so starts a new
// interval.
func (s *KeySet) allowRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.refreshedAt.IsZero() && now.Sub(s.refreshedAt) < s.refreshInterval {
		return false
	}
	s.refreshedAt = now
	return true
}

func (s *KeySet) cached() ([]publicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ttl <= 0 || s.keys == nil || s.now().Sub(s.fetchedAt) >= s.ttl {
		return nil, false
	}
	return s.keys, true
}

// load returns the cached keys unless they expired or refresh is set. fresh reports whether
// the keys were fetched for this call. Concurrent loads share one fetch, and a caller whose
// ctx ends stops waiting without cancelling the fetch for the others.
func (s *KeySet) load(ctx context.Context, refresh bool) (keys []publicKey, fresh bool, err error) {
	if !refresh {
		if keys, ok := s.cached(); ok {
			return keys, false, nil
		}
	}

	ch := s.fetches.DoChan(s.url, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		keys, err := s.fetch(fetchCtx)
		if err != nil {
			s.metrics.ObserveJWKSFetch("error")
			return nil, err
		}
		s.metrics.ObserveJWKSFetch("ok")

		if s.ttl > 0 {
			s.mu.Lock()
			s.keys = keys
			s.fetchedAt = s.now()
			s.mu.Unlock()
		}
		return keys, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]publicKey), true, nil
	}
}

func (s *KeySet) fetch(ctx context.Context) ([]publicKey, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("bad response: status code %v", resp.StatusCode)
		}

		var set jwkSet
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return nil, fmt.Errorf("decode key set: %w", err)
		}
		return set.publicKeys(s.logger)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch key set %s: %w", s.url, err)
	}
	return res.([]publicKey), nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (set jwkSet) publicKeys(logger *zap.Logger) ([]publicKey, error) {
	var keys []publicKey
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		key, err := k.rsa()
		if err != nil {
			logger.Warn("skipping malformed key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys = append(keys, publicKey{kid: k.Kid, key: key})
	}
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return keys, nil
}

func (k jwk) rsa() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 2 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("invalid key parameters")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exp.Int64()),
	}, nil
}
