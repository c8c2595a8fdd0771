package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// Reader is read access to committed state.
type Reader interface {
	GetState(key string) ([]byte, error)
}

// Backend is the raw key-value state a store commits into. A Fabric
// chaincode stub satisfies it directly.
type Backend interface {
	Reader
	PutState(key string, value []byte) error
}

// Tx is the view a mutating operation runs against. Writes and events are
// staged and only reach the backend if the operation succeeds. TxID is the
// identifier the host assigned to the transaction.
type Tx interface {
	Backend
	TxID() string
	Emit(ev Event)
}

// Store runs operations against state. Update must apply all of fn's writes
// or none of them, and must not interleave with another Update.
type Store interface {
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type stagedTx struct {
	id     string
	base   Reader
	writes map[string][]byte
	order  []string
	events []Event
}

func (t *stagedTx) GetState(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return bytes.Clone(v), nil
	}
	return t.base.GetState(key)
}

func (t *stagedTx) PutState(key string, value []byte) error {
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = bytes.Clone(value)
	return nil
}

func (t *stagedTx) TxID() string { return t.id }

func (t *stagedTx) Emit(ev Event) {
	t.events = append(t.events, ev)
}

// RunStaged executes fn against an overlay of backend. When fn succeeds the
// staged writes are flushed to backend in first-write order and the emitted
// events are returned; otherwise backend is left untouched.
func RunStaged(ctx context.Context, backend Backend, txID string, fn func(ctx context.Context, tx Tx) error) ([]Event, error) {
	tx := &stagedTx{id: txID, base: backend, writes: make(map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return nil, err
	}
	for _, key := range tx.order {
		if err := backend.PutState(key, tx.writes[key]); err != nil {
			return nil, err
		}
	}
	return tx.events, nil
}

type mapBackend map[string][]byte

func (m mapBackend) GetState(key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (m mapBackend) PutState(key string, value []byte) error {
	m[key] = bytes.Clone(value)
	return nil
}

type readOnly struct{ r Reader }

func (ro readOnly) GetState(key string) ([]byte, error) { return ro.r.GetState(key) }

// MemoryStore is an in-process Store. Updates are serialized by a write
// lock; views share a read lock and only observe committed state. Committed
// events are numbered in commit order and kept for Events.
type MemoryStore struct {
	mu    sync.RWMutex
	state mapBackend
	txs   uint64
	log   []Event

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int

	logger *slog.Logger
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		state:  make(mapBackend),
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

func (m *MemoryStore) View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, readOnly{m.state})
}

func (m *MemoryStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++
	events, err := RunStaged(ctx, m.state, "mem"+strconv.FormatUint(m.txs, 10), fn)
	if err != nil {
		return err
	}
	for i := range events {
		events[i].Seq = uint64(len(m.log)) + 1
		m.log = append(m.log, events[i])
	}
	// Published under the write lock so subscribers see commit order.
	m.publish(events)
	return nil
}

// Events returns up to limit committed events starting at sequence from
// (1-based). A limit of zero or less reads to the end.
func (m *MemoryStore) Events(from uint64, limit int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if from == 0 {
		from = 1
	}
	if from > uint64(len(m.log)) {
		return []Event{}
	}
	tail := m.log[from-1:]
	if limit > 0 && limit < len(tail) {
		tail = tail[:limit]
	}
	return append([]Event(nil), tail...)
}

// Subscribe registers a listener for committed events. Delivery never blocks
// a commit: when the buffer is full the event is dropped for that listener,
// which can catch up through Events. The returned func unsubscribes.
func (m *MemoryStore) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
			close(ch)
		})
	}
}

func (m *MemoryStore) publish(events []Event) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ev := range events {
		for id, ch := range m.subs {
			select {
			case ch <- ev:
			default:
				m.logger.Warn("event dropped for slow subscriber", "subscriber", id, "seq", ev.Seq, "event", ev.Name)
			}
		}
	}
}
