// Package tracker keeps a per-user live view of expenses and categories. Each
// snapshot replaces the lists wholesale; listeners are told after every change.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"expensewise/internal/aggregate"
	"expensewise/internal/core"
	"expensewise/internal/store"
)

// Source streams snapshots for one user.
type Source interface {
	SubscribeExpenses(ctx context.Context, uid string, onSnapshot func([]core.Expense), onError func(error)) (store.Unsubscribe, error)
	SubscribeCategories(ctx context.Context, uid string, onSnapshot func([]core.Category), onError func(error)) (store.Unsubscribe, error)
}

// Deleter removes an expense remotely.
type Deleter interface {
	DeleteExpense(ctx context.Context, uid, id string) error
}

type Tracker struct {
	uid     string
	deleter Deleter
	opts    aggregate.Options
	now     func() time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.RWMutex
	expenses   []core.Expense
	categories []core.Category
	version    uint64
	loaded     bool
	err        error
	listeners  map[uint64]func()
	nextID     uint64
	unsubs     []store.Unsubscribe
	stopped    bool
}

// New subscribes to both collections of uid. It returns once both
// subscriptions are registered; snapshots arrive asynchronously.
func New(ctx context.Context, uid string, src Source, del Deleter, opts aggregate.Options) (*Tracker, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		uid:       uid,
		deleter:   del,
		opts:      opts,
		now:       time.Now,
		cancel:    cancel,
		done:      make(chan struct{}),
		listeners: make(map[uint64]func()),
	}

	// Subscriptions outlive the caller's ctx; Stop cancels subCtx.
	var expUnsub, catUnsub store.Unsubscribe
	var g errgroup.Group
	g.Go(func() error {
		u, err := src.SubscribeExpenses(subCtx, uid, t.setExpenses, t.setError(store.Expenses))
		if err != nil {
			return fmt.Errorf("subscribe expenses: %w", err)
		}
		expUnsub = u
		return nil
	})
	g.Go(func() error {
		u, err := src.SubscribeCategories(subCtx, uid, t.setCategories, t.setError(store.Categories))
		if err != nil {
			return fmt.Errorf("subscribe categories: %w", err)
		}
		catUnsub = u
		return nil
	})
	err := g.Wait()

	for _, u := range []store.Unsubscribe{expUnsub, catUnsub} {
		if u != nil {
			t.unsubs = append(t.unsubs, u)
		}
	}
	if err != nil {
		t.Stop()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) UserID() string { return t.uid }

// Expenses returns the current list, newest first.
func (t *Tracker) Expenses() []core.Expense {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Expense(nil), t.expenses...)
}

// Categories returns the selectable category names for the add form.
func (t *Tracker) Categories() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return core.CategoryNames(t.categories)
}

// Summary aggregates the current list for f.
func (t *Tracker) Summary(f aggregate.Filter) aggregate.Summary {
	return aggregate.Apply(t.Expenses(), f, t.now(), t.opts)
}

// Err is the last subscription error. It is cleared by the next snapshot.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Loaded reports whether the first expense snapshot has arrived.
func (t *Tracker) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

func (t *Tracker) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Subscribe registers fn to run after every change and returns its cancel func.
// fn must not block.
func (t *Tracker) Subscribe(fn func()) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Delete removes id locally, then remotely. If the remote call fails the old
// list is restored, unless a newer snapshot has replaced it meanwhile.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	prev := t.expenses
	next := make([]core.Expense, 0, len(prev))
	for _, e := range prev {
		if e.ID != id {
			next = append(next, e)
		}
	}
	t.expenses = next
	t.version++
	mine := t.version
	fns := t.listenersLocked()
	t.mu.Unlock()
	notify(fns)

	if err := t.deleter.DeleteExpense(ctx, t.uid, id); err != nil {
		t.mu.Lock()
		if t.version == mine {
			t.expenses = prev
			t.version++
			fns = t.listenersLocked()
		} else {
			fns = nil
		}
		t.mu.Unlock()
		notify(fns)
		return err
	}
	return nil
}

// Done is closed once the tracker has been stopped. Holders should fetch a
// fresh tracker from the Registry.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Stop cancels both subscriptions and drops listeners.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	unsubs := t.unsubs
	t.unsubs = nil
	t.listeners = make(map[uint64]func())
	close(t.done)
	t.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	t.cancel()
}

func (t *Tracker) setExpenses(snap []core.Expense) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.expenses = snap
	t.loaded = true
	t.err = nil
	t.version++
	fns := t.listenersLocked()
	t.mu.Unlock()
	notify(fns)
}

func (t *Tracker) setCategories(snap []core.Category) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.categories = snap
	fns := t.listenersLocked()
	t.mu.Unlock()
	notify(fns)
}

func (t *Tracker) setError(c store.Collection) func(error) {
	return func(err error) {
		slog.Warn("Snapshot subscription failed", "path", store.Path(t.uid, c), "error", err)
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.err = err
		fns := t.listenersLocked()
		t.mu.Unlock()
		notify(fns)
	}
}

func (t *Tracker) listenersLocked() []func() {
	fns := make([]func(), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
