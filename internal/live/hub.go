// Package live holds process-local observed state. A Hub fans snapshots out to
// subscribers keyed by a namespace path; each subscriber sees only the most recent
// snapshot it has not yet consumed.
package live

import (
	"sync"
)

// Unsubscribe stops deliveries to one subscriber. It is safe to call more than once.
type Unsubscribe func()

type subscriber[T any] struct {
	mailbox chan T
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber[T]) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub delivers whole snapshots of type T. Publishing never blocks on slow
// subscribers: an undelivered snapshot is replaced by the newer one.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]*subscriber[T]
	last   map[string]T
	loads  map[string]*keyLock
	next   uint64
	closed bool
}

type keyLock struct {
	sync.Mutex
	refs int
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subs:  make(map[string]map[uint64]*subscriber[T]),
		last:  make(map[string]T),
		loads: make(map[string]*keyLock),
	}
}

// Subscribe registers fn for key. If a snapshot was already published for key,
// fn receives it first. fn runs on a dedicated goroutine, one call at a time.
func (h *Hub[T]) Subscribe(key string, fn func(T)) Unsubscribe {
	s := &subscriber[T]{
		mailbox: make(chan T, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.next
	h.next++
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]*subscriber[T])
	}
	h.subs[key][id] = s
	if snap, ok := h.last[key]; ok {
		s.mailbox <- snap
	}
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.done:
				return
			case snap := <-s.mailbox:
				select {
				case <-s.done:
					return
				default:
				}
				fn(snap)
			}
		}
	}()

	return func() {
		h.mu.Lock()
		if subs := h.subs[key]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.subs, key)
			}
		}
		h.mu.Unlock()
		s.stop()
	}
}

// Publish records snap as the latest state for key and hands it to every subscriber.
func (h *Hub[T]) Publish(key string, snap T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last[key] = snap
	for _, s := range h.subs[key] {
		select {
		case <-s.mailbox:
		default:
		}
		s.mailbox <- snap
	}
}

// Reload calls load and publishes its result. Reloads of the same key run one
// at a time, so a snapshot read earlier can never be published after a later one.
func (h *Hub[T]) Reload(key string, load func() (T, error)) error {
	unlock := h.lockKey(key)
	defer unlock()
	snap, err := load()
	if err != nil {
		return err
	}
	h.Publish(key, snap)
	return nil
}

func (h *Hub[T]) lockKey(key string) func() {
	h.mu.Lock()
	kl := h.loads[key]
	if kl == nil {
		kl = &keyLock{}
		h.loads[key] = kl
	}
	kl.refs++
	h.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		h.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(h.loads, key)
		}
		h.mu.Unlock()
	}
}

// Latest returns the last snapshot published for key.
func (h *Hub[T]) Latest(key string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.last[key]
	return snap, ok
}

// Subscribers reports how many subscribers are registered for key.
func (h *Hub[T]) Subscribers(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// Forget drops the cached snapshot for key.
func (h *Hub[T]) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.last, key)
}

// Close stops all subscribers. Further publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for _, s := range subs {
			s.stop()
		}
	}
	h.subs = nil
}
