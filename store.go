package bridge

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSessionTTL is how long an uncompleted session stays readable.
const DefaultSessionTTL = 6 * time.Hour

// sessionEntry owns one session's serialization. mu is held for the full
// duration of any mutation, including across the payment executor's
// suspension point. flagMu guards the pending/cancel flags so a cancel
// arriving mid-payment can be recorded without taking mu.
type sessionEntry struct {
	mu     sync.Mutex
	flagMu sync.Mutex

	paymentPending  bool
	cancelRequested bool

	session *Session
}

func (e *sessionEntry) beginPayment() {
	e.flagMu.Lock()
	e.paymentPending = true
	e.flagMu.Unlock()
}

// finishPayment clears the in-flight marker and reports whether a cancel was
// requested while the payment call was outstanding.
func (e *sessionEntry) finishPayment() bool {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	e.paymentPending = false
	canceled := e.cancelRequested
	e.cancelRequested = false
	return canceled
}

// requestCancelIfPending records a deferred cancellation when a payment call
// is in flight and returns a snapshot of the session as it will end up. The
// snapshot is taken under flagMu, which orders it before finishPayment and
// therefore before any post-payment mutation. Returns false when no payment
// is pending, in which case the caller cancels through the normal mutation
// path.
func (e *sessionEntry) requestCancelIfPending() (*Session, bool) {
	e.flagMu.Lock()
	defer e.flagMu.Unlock()
	if !e.paymentPending {
		return nil, false
	}
	e.cancelRequested = true
	snapshot := e.session.clone()
	snapshot.State = SessionStateCanceled
	return snapshot, true
}

// SessionStore is the injected, explicitly constructed session map. Mutations
// of the same session id are serialized by a per-entry mutex; different ids
// never block each other. Expiry is enforced lazily on lookup.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry

	ttl    time.Duration
	clock  func() time.Time
	logger zerolog.Logger
}

// SessionStoreOption customizes store construction.
type SessionStoreOption func(*SessionStore)

// WithSessionTTL overrides the default 6 hour session lifetime.
func WithSessionTTL(ttl time.Duration) SessionStoreOption {
	if ttl <= 0 {
		panic("store: session TTL must be positive")
	}
	return func(st *SessionStore) {
		st.ttl = ttl
	}
}

// WithStoreClock provides deterministic time in tests.
func WithStoreClock(clock func() time.Time) SessionStoreOption {
	return func(st *SessionStore) {
		st.clock = clock
	}
}

// WithStoreLogger attaches a logger for eviction and hygiene events.
func WithStoreLogger(logger zerolog.Logger) SessionStoreOption {
	return func(st *SessionStore) {
		st.logger = logger
	}
}

// NewSessionStore builds an empty store.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	st := &SessionStore{
		entries: make(map[string]*sessionEntry),
		ttl:     DefaultSessionTTL,
		clock:   time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(st)
	}
	return st
}

// TTL returns the configured session lifetime.
func (st *SessionStore) TTL() time.Duration { return st.ttl }

// Put inserts a new session. The session's ExpiresAt must already be set.
func (st *SessionStore) Put(session *Session) {
	st.mu.Lock()
	st.entries[session.ID] = &sessionEntry{session: session}
	st.mu.Unlock()
}

// lookup resolves an entry, evicting it first if the TTL has elapsed.
// ExpiresAt is immutable after creation so the check needs no entry lock.
func (st *SessionStore) lookup(id string) (*sessionEntry, *Error) {
	st.mu.RLock()
	entry, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return nil, NewSessionNotFoundError(id)
	}
	if st.expired(entry.session) {
		st.evict(id)
		return nil, NewSessionExpiredError(id)
	}
	return entry, nil
}

// Get returns a point-in-time copy of the session.
func (st *SessionStore) Get(id string) (*Session, *Error) {
	entry, err := st.lookup(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	snapshot := entry.session.clone()
	return snapshot, nil
}

// Mutate runs fn with the per-id lock held. At most one mutation per session
// id is in flight at a time.
func (st *SessionStore) Mutate(id string, fn func(*Session) *Error) *Error {
	entry, err := st.lookup(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if st.expired(entry.session) {
		st.evict(id)
		return NewSessionExpiredError(id)
	}
	return fn(entry.session)
}

// Sweep evicts every expired session. Not required for correctness (expiry is
// lazy) but keeps the map small under sustained load.
func (st *SessionStore) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	now := st.clock()
	for id, entry := range st.entries {
		if now.After(entry.session.ExpiresAt) {
			delete(st.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		st.logger.Debug().Int("evicted", evicted).Msg("session store sweep")
	}
	return evicted
}

// Len reports the number of live entries, expired or not.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

func (st *SessionStore) expired(s *Session) bool {
	return st.clock().After(s.ExpiresAt)
}

func (st *SessionStore) evict(id string) {
	st.mu.Lock()
	delete(st.entries, id)
	st.mu.Unlock()
	st.logger.Debug().Str("session_id", id).Msg("expired session evicted")
}

// OrderStore keeps orders by id. Orders are never deleted, only adjusted.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*orderEntry
}

type orderEntry struct {
	mu    sync.Mutex
	order *Order
}

// NewOrderStore builds an empty order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*orderEntry)}
}

// Put inserts a new order.
func (st *OrderStore) Put(order *Order) {
	st.mu.Lock()
	st.orders[order.ID] = &orderEntry{order: order}
	st.mu.Unlock()
}

// Get returns a point-in-time copy of the order.
func (st *OrderStore) Get(id string) (*Order, *Error) {
	st.mu.RLock()
	entry, ok := st.orders[id]
	st.mu.RUnlock()
	if !ok {
		return nil, NewOrderNotFoundError(id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.order.clone(), nil
}

// Mutate runs fn with the per-order lock held, so an order's fulfillment
// event and its paired adjustment land atomically.
func (st *OrderStore) Mutate(id string, fn func(*Order) *Error) *Error {
	st.mu.RLock()
	entry, ok := st.orders[id]
	st.mu.RUnlock()
	if !ok {
		return NewOrderNotFoundError(id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.order)
}
