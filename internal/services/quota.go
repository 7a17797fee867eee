package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
)

// QuotaState is the view of one metered provider.
type QuotaState struct {
	Provider    string    `json:"provider"`
	Available   bool      `json:"available"`
	LastChecked time.Time `json:"last_checked"`
}

// QuotaStore persists exhaustion across restarts and replicas.
type QuotaStore interface {
	LoadExhausted(ctx context.Context, provider string) (time.Time, bool, error)
	SaveExhausted(ctx context.Context, provider string, at time.Time, ttl time.Duration) error
	Clear(ctx context.Context, provider string) error
}

// QuotaTracker remembers which metered APIs are out of quota. While a
// provider is exhausted and inside its window, Check answers without any
// network call. After the window a single canary probe decides.
type QuotaTracker struct {
	mu     sync.RWMutex
	states map[string]*quotaEntry
	window time.Duration
	store  QuotaStore
	probes singleflight.Group
	now    func() time.Time
	log    *logger.Logger
}

type quotaEntry struct {
	available   bool
	lastChecked time.Time
	hydrated    bool
}

func NewQuotaTracker(window time.Duration, store QuotaStore, log *logger.Logger) *QuotaTracker {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &QuotaTracker{
		states: make(map[string]*quotaEntry),
		window: window,
		store:  store,
		now:    time.Now,
		log:    log.With("service", "QuotaTracker"),
	}
}

func (q *QuotaTracker) entry(provider string) *quotaEntry {
	q.mu.RLock()
	e, ok := q.states[provider]
	q.mu.RUnlock()
	if ok {
		return e
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.states[provider]; ok {
		return e
	}
	e = &quotaEntry{available: true}
	q.states[provider] = e
	return e
}

// hydrate loads persisted exhaustion once per provider.
func (q *QuotaTracker) hydrate(ctx context.Context, provider string) {
	e := q.entry(provider)
	q.mu.RLock()
	done := e.hydrated
	q.mu.RUnlock()
	if done || q.store == nil {
		return
	}

	at, found, err := q.store.LoadExhausted(ctx, provider)
	if err != nil {
		q.log.Warn("quota state load failed", "provider", provider, "error", err)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if e.hydrated {
		return
	}
	e.hydrated = true
	if found && at.After(e.lastChecked) {
		e.available = false
		e.lastChecked = at
	}
}

// Check reports whether provider may be called. probe may be nil, in which
// case an elapsed window simply resets the provider to available.
func (q *QuotaTracker) Check(ctx context.Context, provider string, probe func(ctx context.Context) error) bool {
	q.hydrate(ctx, provider)
	e := q.entry(provider)

	q.mu.RLock()
	available, last := e.available, e.lastChecked
	q.mu.RUnlock()

	if available {
		return true
	}
	if q.now().Sub(last) < q.window {
		return false
	}

	v, _, _ := q.probes.Do(provider, func() (interface{}, error) {
		if probe == nil {
			q.MarkAvailable(ctx, provider)
			return true, nil
		}
		err := probe(ctx)
		if errors.Is(err, ErrQuotaExceeded) {
			q.log.Info("quota still exhausted after window", "provider", provider)
			q.MarkExhausted(ctx, provider)
			return false, nil
		}
		if err != nil {
			q.log.Warn("quota probe failed, assuming available", "provider", provider, "error", err)
		}
		q.MarkAvailable(ctx, provider)
		return true, nil
	})
	return v.(bool)
}

// MarkExhausted flips provider to exhausted. Repeated calls only refresh the time.
func (q *QuotaTracker) MarkExhausted(ctx context.Context, provider string) {
	e := q.entry(provider)
	at := q.now()

	q.mu.Lock()
	e.available = false
	e.lastChecked = at
	e.hydrated = true
	q.mu.Unlock()

	q.log.Warn("metered api quota exhausted", "provider", provider, "retry_after", q.window.String())
	if q.store != nil {
		if err := q.store.SaveExhausted(ctx, provider, at, q.window); err != nil {
			q.log.Warn("quota state save failed", "provider", provider, "error", err)
		}
	}
}

func (q *QuotaTracker) MarkAvailable(ctx context.Context, provider string) {
	e := q.entry(provider)

	q.mu.Lock()
	wasExhausted := !e.available
	e.available = true
	e.lastChecked = q.now()
	e.hydrated = true
	q.mu.Unlock()

	if wasExhausted && q.store != nil {
		if err := q.store.Clear(ctx, provider); err != nil {
			q.log.Warn("quota state clear failed", "provider", provider, "error", err)
		}
	}
}

func (q *QuotaTracker) State(ctx context.Context, provider string) QuotaState {
	q.hydrate(ctx, provider)
	e := q.entry(provider)
	q.mu.RLock()
	defer q.mu.RUnlock()
	return QuotaState{Provider: provider, Available: e.available, LastChecked: e.lastChecked}
}

// RedisQuotaStore keeps exhaustion timestamps under quota:<provider> with a TTL
// equal to the window, so expiry and the window agree.
type RedisQuotaStore struct {
	rdb *redis.Client
}

func NewRedisQuotaStore(rdb *redis.Client) *RedisQuotaStore {
	return &RedisQuotaStore{rdb: rdb}
}

func quotaKey(provider string) string {
	return fmt.Sprintf("quota:%s", provider)
}

func (s *RedisQuotaStore) LoadExhausted(ctx context.Context, provider string) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, quotaKey(provider)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse quota timestamp: %w", err)
	}
	return at, true, nil
}

func (s *RedisQuotaStore) SaveExhausted(ctx context.Context, provider string, at time.Time, ttl time.Duration) error {
	return s.rdb.Set(ctx, quotaKey(provider), at.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (s *RedisQuotaStore) Clear(ctx context.Context, provider string) error {
	return s.rdb.Del(ctx, quotaKey(provider)).Err()
}
