package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kmorozova/bike-demand-service/internal/models"
	"github.com/kmorozova/bike-demand-service/internal/observability"
)

const keyPrefix = "obs:"

// MemcachedStore is a look-aside tier in front of another Store (normally
// the FileStore), sharing daily observations across process restarts and
// instances. The inner store stays the source of truth: Missing and Bounds
// delegate, and a memcached outage degrades to inner lookups.
type MemcachedStore struct {
	inner  Store
	client *memcache.Client
	ttl    time.Duration
}

// NewMemcachedStore wraps inner with a memcached tier. addrs is a
// comma-separated server list; timeout and maxIdleConns use client defaults
// when zero.
func NewMemcachedStore(inner Store, addrs string, timeout time.Duration, maxIdleConns int, ttl time.Duration) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemcachedStore{inner: inner, client: client, ttl: ttl}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func cacheKey(date time.Time) string {
	return keyPrefix + models.Day(date).Format(models.DateFormat)
}

// Get checks memcached first, falls back to the inner store and backfills
// the memcached entry on an inner hit. Memcached errors are swallowed; the
// inner store answers authoritatively.
func (s *MemcachedStore) Get(ctx context.Context, date time.Time) (models.Observation, bool, error) {
	if ctx.Err() != nil {
		return models.Observation{}, false, ctx.Err()
	}
	item, err := s.client.Get(cacheKey(date))
	if err == nil {
		var obs models.Observation
		if err := json.Unmarshal(item.Value, &obs); err == nil {
			observability.CacheHitsTotal.WithLabelValues("memcached").Inc()
			return obs, true, nil
		}
	}

	obs, ok, err := s.inner.Get(ctx, date)
	if err != nil || !ok {
		return obs, ok, err
	}
	s.set(obs)
	return obs, true, nil
}

// Missing delegates to the inner store; the file index is authoritative for
// which dates still need a provider fetch.
func (s *MemcachedStore) Missing(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	return s.inner.Missing(ctx, from, to)
}

// Append persists to the inner store first, then populates memcached.
func (s *MemcachedStore) Append(ctx context.Context, obs []models.Observation) error {
	if err := s.inner.Append(ctx, obs); err != nil {
		return err
	}
	for _, o := range obs {
		s.set(o)
	}
	return nil
}

// Bounds implements Store.Bounds.
func (s *MemcachedStore) Bounds() (time.Time, time.Time, bool) {
	return s.inner.Bounds()
}

func (s *MemcachedStore) set(obs models.Observation) {
	raw, err := json.Marshal(obs)
	if err != nil {
		return
	}
	expSec := int32(s.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 24 * 60 * 60
	}
	// best effort; a write failure only costs a future look-aside miss
	_ = s.client.Set(&memcache.Item{Key: cacheKey(obs.Date), Value: raw, Expiration: expSec})
}

// Ping checks memcached reachability. Used by the health handler.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes memcached connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
