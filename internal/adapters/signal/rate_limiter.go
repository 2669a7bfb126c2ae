package signal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
)

// ActionClass selects a budget. Joins and signaling messages have
// independent windows.
type ActionClass string

const (
	ActionJoin   ActionClass = "join"
	ActionSignal ActionClass = "signal"
)

type Budget struct {
	Limit  int
	Window time.Duration
}

// CounterStore increments the counter for key within its window and returns
// the new count. Increments must be atomic; a distributed store qualifies
// as long as they are atomic there.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter gates the gateway before any room mutation. A denied message
// gets an error event; the socket stays up.
type RateLimiter struct {
	store   CounterStore
	budgets map[ActionClass]Budget
	// onDenied observes rejections (metrics hook).
	onDenied func(class ActionClass)
}

func NewRateLimiter(store CounterStore, join, sig Budget, onDenied func(ActionClass)) *RateLimiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &RateLimiter{
		store: store,
		budgets: map[ActionClass]Budget{
			ActionJoin:   join,
			ActionSignal: sig,
		},
		onDenied: onDenied,
	}
}

// Allow reports whether principal may perform another action of this class
// in the current window. Exactly Limit actions pass per window; store
// failures fail open so a counter outage cannot take signaling down.
func (rl *RateLimiter) Allow(ctx context.Context, principal domain.UserID, class ActionClass) bool {
	b, ok := rl.budgets[class]
	if !ok || b.Limit <= 0 {
		return true
	}
	key := "voice:rate:" + string(class) + ":" + string(principal)
	n, err := rl.store.Incr(ctx, key, b.Window)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal.rate").Str("key", key).Msg("counter store failed, allowing")
		return true
	}
	if n > int64(b.Limit) {
		if rl.onDenied != nil {
			rl.onDenied(class)
		}
		return false
	}
	return true
}

// MemoryStore is a fixed-window in-process counter. Windows reset when the
// first increment after expiry arrives; no record outlives its window
// without being refreshed.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*rateRecord
	now     func() time.Time
}

// sweepThreshold is the record count past which Incr prunes expired
// windows inline.
const sweepThreshold = 1024

type rateRecord struct {
	expiry time.Time
	count  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*rateRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[key]
	if !ok || !now.Before(rec.expiry) {
		rec = &rateRecord{expiry: now.Add(window)}
		s.records[key] = rec
	}
	rec.count++

	s.sweepLocked(now)
	return rec.count, nil
}

// sweepLocked drops records whose window has passed so idle principals do
// not accumulate. A record with time left on its window is never touched,
// whatever that window's length.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if len(s.records) < sweepThreshold {
		return
	}
	for key, rec := range s.records {
		if !now.Before(rec.expiry) {
			delete(s.records, key)
		}
	}
}
