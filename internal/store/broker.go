package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// changeBroker keeps track of live queries per collection and wakes them up
// when the collection changes.
type changeBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscription]struct{}
}

type subscription struct {
	collection string
	filters    []Filter
	listener   Listener
	pending    chan struct{}
	done       chan struct{}
	once       sync.Once
	closed     atomic.Bool
	deliver    sync.Mutex
	versions   map[string]time.Time
}

func newChangeBroker() *changeBroker {
	return &changeBroker{subscribers: make(map[string]map[*subscription]struct{})}
}

func newSubscription(collection string, filters []Filter, listener Listener) *subscription {
	return &subscription{
		collection: collection,
		filters:    append([]Filter(nil), filters...),
		listener:   listener,
		pending:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		versions:   map[string]time.Time{},
	}
}

// signal marks the subscription dirty. Bursts of writes collapse into one reload.
func (s *subscription) signal() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

func (b *changeBroker) subscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.collection]; !exists {
		b.subscribers[sub.collection] = make(map[*subscription]struct{})
	}
	b.subscribers[sub.collection][sub] = struct{}{}
}

func (b *changeBroker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[sub.collection]; ok {
		delete(subscribers, sub)
		if len(subscribers) == 0 {
			delete(b.subscribers, sub.collection)
		}
	}
}

func (b *changeBroker) notify(collection string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers[collection] {
		sub.signal()
	}
}

func (b *changeBroker) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, subscribers := range b.subscribers {
		total += len(subscribers)
	}
	return total
}
