package reconcile

import (
	"container/list"
	"context"
	"sync"

	"github.com/roach88/payconfirm/internal/confirm"
)

// DefaultRecentIdentifiers is the MemoryLedger capacity used when none is
// configured.
const DefaultRecentIdentifiers = 256

// Ledger remembers which identifiers have already been escalated.
// Implemented by MemoryLedger and *store.Store.
type Ledger interface {
	// MarkAlerted records a. first is true only for the first call per
	// identifier.
	MarkAlerted(ctx context.Context, a confirm.Alert) (first bool, err error)
}

// MemoryLedger is a bounded recent-identifiers set. When full, the least
// recently marked identifier is forgotten.
//
// Thread-safety: safe for concurrent use via internal mutex.
type MemoryLedger struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	index    map[string]*list.Element
}

// NewMemoryLedger creates a ledger holding up to capacity identifiers.
// capacity < 1 uses DefaultRecentIdentifiers.
func NewMemoryLedger(capacity int) *MemoryLedger {
	if capacity < 1 {
		capacity = DefaultRecentIdentifiers
	}
	return &MemoryLedger{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// MarkAlerted implements Ledger.
func (l *MemoryLedger) MarkAlerted(_ context.Context, a confirm.Alert) (bool, error) {
	id := confirm.NormalizeIdentifier(a.Identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.index[id]; ok {
		l.order.MoveToFront(el)
		return false, nil
	}

	l.index[id] = l.order.PushFront(id)
	for l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.index, oldest.Value.(string))
	}
	return true, nil
}

// Alerted reports whether identifier is remembered.
func (l *MemoryLedger) Alerted(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[confirm.NormalizeIdentifier(identifier)]
	return ok
}

// Len returns how many identifiers are remembered.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
