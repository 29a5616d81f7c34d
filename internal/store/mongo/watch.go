package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"expensewise/internal/core"
	"expensewise/internal/store"
)

func (s *Store) SubscribeExpenses(ctx context.Context, uid string, onSnapshot func([]core.Expense), onError func(error)) (store.Unsubscribe, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	key := store.Path(uid, store.Expenses)
	if _, ok := s.expHub.Latest(key); !ok {
		if err := s.expHub.Reload(key, s.expenseLoader(ctx, uid)); err != nil {
			return nil, err
		}
	}
	unsub := s.expHub.Subscribe(key, onSnapshot)
	stopWatch := s.watch(uid, store.Expenses, func(wctx context.Context) error {
		return s.expHub.Reload(key, s.expenseLoader(wctx, uid))
	}, onError)
	return func() { stopWatch(); unsub() }, nil
}

func (s *Store) SubscribeCategories(ctx context.Context, uid string, onSnapshot func([]core.Category), onError func(error)) (store.Unsubscribe, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	key := store.Path(uid, store.Categories)
	if _, ok := s.catHub.Latest(key); !ok {
		if err := s.catHub.Reload(key, s.categoryLoader(ctx, uid)); err != nil {
			return nil, err
		}
	}
	unsub := s.catHub.Subscribe(key, onSnapshot)
	stopWatch := s.watch(uid, store.Categories, func(wctx context.Context) error {
		return s.catHub.Reload(key, s.categoryLoader(wctx, uid))
	}, onError)
	return func() { stopWatch(); unsub() }, nil
}

func (s *Store) Refresh(ctx context.Context, uid string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if err := s.expHub.Reload(store.Path(uid, store.Expenses), s.expenseLoader(ctx, uid)); err != nil {
		return err
	}
	return s.catHub.Reload(store.Path(uid, store.Categories), s.categoryLoader(ctx, uid))
}

// watch follows the collection's change stream and calls reload after every
// event. Standalone servers have no change streams; the error goes to onError
// and local writes keep the snapshot current.
func (s *Store) watch(uid string, c store.Collection, reload func(context.Context) error, onError func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = cancel
	s.mu.Unlock()

	report := func(err error) {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("Change stream failed", "path", store.Path(uid, c), "error", err)
		if onError != nil {
			onError(err)
		}
	}

	go func() {
		cs, err := s.coll(uid, c).Watch(ctx, mongo.Pipeline{}, options.ChangeStream())
		if err != nil {
			report(fmt.Errorf("watch %s: %w", store.Path(uid, c), err))
			return
		}
		defer cs.Close(context.Background())

		for cs.Next(ctx) {
			if err := reload(ctx); err != nil {
				report(err)
			}
		}
		if err := cs.Err(); err != nil {
			report(err)
		}
	}()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
		cancel()
	}
}

func (s *Store) publishExpenses(ctx context.Context, uid string) {
	key := store.Path(uid, store.Expenses)
	if s.expHub.Subscribers(key) == 0 {
		s.expHub.Forget(key)
		return
	}
	if err := s.expHub.Reload(key, s.expenseLoader(ctx, uid)); err != nil {
		slog.WarnContext(ctx, "Failed to refresh expense snapshot", "path", key, "error", err)
	}
}

func (s *Store) publishCategories(ctx context.Context, uid string) {
	key := store.Path(uid, store.Categories)
	if s.catHub.Subscribers(key) == 0 {
		s.catHub.Forget(key)
		return
	}
	if err := s.catHub.Reload(key, s.categoryLoader(ctx, uid)); err != nil {
		slog.WarnContext(ctx, "Failed to refresh category snapshot", "path", key, "error", err)
	}
}

func (s *Store) expenseLoader(ctx context.Context, uid string) func() ([]core.Expense, error) {
	return func() ([]core.Expense, error) {
		return s.ListExpenses(ctx, uid, store.AllTime())
	}
}

func (s *Store) categoryLoader(ctx context.Context, uid string) func() ([]core.Category, error) {
	return func() ([]core.Category, error) {
		return s.ListCategories(ctx, uid)
	}
}
