package tracker

import (
	"context"
	"sync"

	"expensewise/internal/aggregate"
	"expensewise/internal/auth"
)

// AuthEvents is the sign-in/sign-out stream a Registry follows.
type AuthEvents interface {
	Subscribe(fn func(auth.Event)) func()
}

// Registry owns at most one Tracker per signed-in user.
type Registry struct {
	src     Source
	deleter Deleter
	opts    aggregate.Options

	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewRegistry(src Source, del Deleter, opts aggregate.Options) *Registry {
	return &Registry{
		src:      src,
		deleter:  del,
		opts:     opts,
		trackers: make(map[string]*Tracker),
	}
}

// Get returns the user's tracker, creating it on first use.
func (r *Registry) Get(ctx context.Context, uid string) (*Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trackers[uid]; ok {
		return t, nil
	}
	t, err := New(ctx, uid, r.src, r.deleter, r.opts)
	if err != nil {
		return nil, err
	}
	r.trackers[uid] = t
	return t, nil
}

// Lookup returns the tracker only if one is already running.
func (r *Registry) Lookup(uid string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[uid]
	return t, ok
}

// Drop stops and forgets the user's tracker.
func (r *Registry) Drop(uid string) {
	r.mu.Lock()
	t, ok := r.trackers[uid]
	delete(r.trackers, uid)
	r.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// Follow tears trackers down when their user signs out.
func (r *Registry) Follow(events AuthEvents) func() {
	return events.Subscribe(func(ev auth.Event) {
		if ev.Type == auth.SignedOut {
			r.Drop(ev.UserID)
		}
	})
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

func (r *Registry) Close() {
	r.mu.Lock()
	all := r.trackers
	r.trackers = make(map[string]*Tracker)
	r.mu.Unlock()
	for _, t := range all {
		t.Stop()
	}
}
