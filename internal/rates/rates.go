// Package rates supplies reference-to-settlement currency conversion
// rates. Quotes come from an upstream HTTP source, are cached with a
// short TTL, and degrade to a static fallback table when the upstream
// is unavailable: the oracle never fails its caller outright.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisRatesKey = "altitude:rates"

// DefaultFallback is served when no live or cached quote exists.
var DefaultFallback = map[string]float64{
	"BTC":  60000,
	"ETH":  3000,
	"USDT": 1,
}

// Source fetches a fresh rate set from upstream.
type Source interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// HTTPSource pulls a JSON {currency: rate} document.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: status %d", resp.StatusCode)
	}

	var out map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return out, nil
}

// Oracle caches quotes from a Source. Redis is optional; without it an
// in-process memo provides the TTL behavior.
type Oracle struct {
	source   Source
	cache    *redis.Client
	ttl      time.Duration
	fallback map[string]float64

	mu        sync.Mutex
	memo      map[string]float64
	fetchedAt time.Time
}

func NewOracle(source Source, cache *redis.Client, ttl time.Duration) *Oracle {
	return &Oracle{
		source:   source,
		cache:    cache,
		ttl:      ttl,
		fallback: DefaultFallback,
	}
}

// Rates returns the current rate set. Resolution order: redis cache,
// fresh in-process memo, upstream fetch, stale memo, static fallback.
func (o *Oracle) Rates(ctx context.Context) map[string]float64 {
	if o.cache != nil {
		if raw, err := o.cache.Get(ctx, redisRatesKey).Result(); err == nil {
			var cached map[string]float64
			if json.Unmarshal([]byte(raw), &cached) == nil && len(cached) > 0 {
				return cached
			}
		}
	}

	o.mu.Lock()
	if o.memo != nil && time.Since(o.fetchedAt) < o.ttl {
		memo := o.memo
		o.mu.Unlock()
		return memo
	}
	o.mu.Unlock()

	if o.source != nil {
		fresh, err := o.source.Fetch(ctx)
		if err == nil && len(fresh) > 0 {
			o.store(ctx, fresh)
			return fresh
		}
		if err != nil {
			log.Printf("[RATES] Upstream fetch failed, using fallback: %v", err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.memo != nil {
		return o.memo
	}
	return o.fallback
}

// Rate returns the quote for one currency; zero means no quote.
func (o *Oracle) Rate(ctx context.Context, currency string) (float64, error) {
	return o.Rates(ctx)[currency], nil
}

func (o *Oracle) store(ctx context.Context, fresh map[string]float64) {
	o.mu.Lock()
	o.memo = fresh
	o.fetchedAt = time.Now()
	o.mu.Unlock()

	if o.cache != nil {
		if data, err := json.Marshal(fresh); err == nil {
			if err := o.cache.Set(ctx, redisRatesKey, data, o.ttl).Err(); err != nil {
				log.Printf("[RATES] Cache write failed: %v", err)
			}
		}
	}
}

// Static is a fixed rate table, mainly for tests and local runs.
type Static map[string]float64

func (s Static) Rate(_ context.Context, currency string) (float64, error) {
	return s[currency], nil
}

func (s Static) Fetch(context.Context) (map[string]float64, error) {
	return s, nil
}
