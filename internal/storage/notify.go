package storage

import (
	"sort"
	"sync"
)

// Subscription delivers the names of changed keys. Changes that arrive while
// the consumer is busy are merged, so the consumer always ends up reading the
// latest values without being able to fall behind.
type Subscription struct {
	C <-chan struct{}

	signal  chan struct{}
	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
	hub     *notifier
}

// Drain returns and clears the keys changed since the last call, sorted.
func (s *Subscription) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for k := range s.pending {
		out = append(out, k)
	}
	s.pending = map[string]struct{}{}
	sort.Strings(out)
	return out
}

// Close stops delivery and closes C.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.close()
}

func (s *Subscription) mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[key] = struct{}{}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.signal)
}

type notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: map[*Subscription]struct{}{}}
}

func (n *notifier) subscribe() *Subscription {
	signal := make(chan struct{}, 1)
	s := &Subscription{C: signal, signal: signal, pending: map[string]struct{}{}, hub: n}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

func (n *notifier) remove(s *Subscription) {
	n.mu.Lock()
	delete(n.subs, s)
	n.mu.Unlock()
}

func (n *notifier) publish(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs {
		s.mark(key)
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs {
		s.close()
		delete(n.subs, s)
	}
}
