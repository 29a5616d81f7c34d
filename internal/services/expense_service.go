package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"expensewise/internal/aggregate"
	"expensewise/internal/amqp"
	"expensewise/internal/cache"
	"expensewise/internal/core"
	"expensewise/internal/store"
)

// EventPublisher announces writes to other processes. *amqp.Client implements it.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev *amqp.ChangeEvent) error
}

// Store is the part of the document store the service writes through.
type Store interface {
	store.ExpenseWriter
	store.ExpenseReader
	store.CategoryStore
	store.ProfileStore
}

const summaryCacheTTL = 30 * time.Second

// ExpenseService validates user input, writes it through the store and
// publishes change events. Publishing never fails a write.
type ExpenseService struct {
	store     Store
	publisher EventPublisher
	opts      aggregate.Options
	summaries *cache.LRUCache[aggregate.Summary]
	now       func() time.Time

	// generations counts invalidations per user. A summary is cached only if
	// no invalidation happened while it was being read.
	genMu       sync.Mutex
	generations map[string]uint64
}

func NewExpenseService(st Store, publisher EventPublisher, opts aggregate.Options) *ExpenseService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &ExpenseService{
		store:     st,
		publisher: publisher,
		opts:      opts,
		summaries:   cache.NewLRUCache[aggregate.Summary](1000, summaryCacheTTL),
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

// SummaryCache exposes the summary cache for registration with a cache.Manager.
func (s *ExpenseService) SummaryCache() cache.Cleaner {
	return s.summaries
}

func (s *ExpenseService) Options() aggregate.Options {
	return s.opts
}

// AddExpense validates in and records it. When Other is chosen with a custom
// label that is not in known, the label is created as a category first.
// Validation failures are returned as core.FieldErrors before any store call.
func (s *ExpenseService) AddExpense(ctx context.Context, uid string, in core.ExpenseInput, known []string) (string, error) {
	if err := store.CheckUID(uid); err != nil {
		return "", err
	}
	ne, fieldErrs := in.Parse(s.opts.Location)
	if fieldErrs != nil {
		return "", fieldErrs
	}

	if label, ok := in.CustomLabel(); ok && !core.ContainsCategory(known, label) {
		created, err := s.store.AddCategory(ctx, uid, label)
		if err != nil {
			return "", fmt.Errorf("add category: %w", err)
		}
		if created {
			s.publish(ctx, amqp.NewChangeEvent(uid, amqp.CategoryCreated, label))
		}
	}

	id, err := s.store.AddExpense(ctx, uid, ne)
	if err != nil {
		return "", fmt.Errorf("add expense: %w", err)
	}
	s.Invalidate(uid)
	s.publish(ctx, amqp.NewChangeEvent(uid, amqp.ExpenseCreated, id))

	slog.InfoContext(ctx, "Expense created",
		"user_id", uid,
		"expense_id", id,
		"category", ne.Category,
		"amount_cents", ne.Amount.Cents)
	return id, nil
}

// DeleteExpense removes the expense. Unknown ids are not an error.
func (s *ExpenseService) DeleteExpense(ctx context.Context, uid, id string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return store.ErrNotFound
	}
	if err := s.store.DeleteExpense(ctx, uid, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.Invalidate(uid)
	s.publish(ctx, amqp.NewChangeEvent(uid, amqp.ExpenseDeleted, id))
	return nil
}

func (s *ExpenseService) Profile(ctx context.Context, uid string) (*core.UserProfile, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	p, err := s.store.GetUserProfile(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SaveProfile merges the supplied fields into the stored profile.
func (s *ExpenseService) SaveProfile(ctx context.Context, uid string, u core.ProfileUpdate) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if u.IsEmpty() {
		return core.ErrEmptyProfile
	}
	if fieldErrs := u.Validate(); fieldErrs != nil {
		return fieldErrs
	}
	if u.FullName != nil {
		name := strings.TrimSpace(*u.FullName)
		u.FullName = &name
	}
	if u.PhoneNumber != nil {
		phone := strings.TrimSpace(*u.PhoneNumber)
		u.PhoneNumber = &phone
	}
	if err := s.store.SaveUserProfile(ctx, uid, u); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.publish(ctx, amqp.NewChangeEvent(uid, amqp.ProfileSaved, ""))
	return nil
}

// CategoryNames returns the selectable categories for the add form.
func (s *ExpenseService) CategoryNames(ctx context.Context, uid string) ([]string, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	cats, err := s.store.ListCategories(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return core.CategoryNames(cats), nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context, uid string, r core.DateRange) ([]core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	exps, err := s.store.ListExpenses(ctx, uid, r)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return exps, nil
}

// Summary reads the filter's window from the store and aggregates it. An
// unresolvable filter (bad manual date) yields an empty summary, not an error.
func (s *ExpenseService) Summary(ctx context.Context, uid string, f aggregate.Filter) (aggregate.Summary, error) {
	if err := store.CheckUID(uid); err != nil {
		return aggregate.Summary{}, err
	}
	r, ok := f.Resolve(s.now(), s.opts)
	if !ok {
		return aggregate.Empty(r), nil
	}

	key := summaryKey(uid, r)
	if sum, hit := s.summaries.Get(key); hit {
		return sum, nil
	}
	gen := s.generation(uid)
	exps, err := s.store.ListExpenses(ctx, uid, core.NewDateRange(r.Start, r.End))
	if err != nil {
		return aggregate.Summary{}, fmt.Errorf("list expenses: %w", err)
	}
	sum := aggregate.Summarize(exps, r)

	s.genMu.Lock()
	if s.generations[uid] == gen {
		s.summaries.Set(key, sum)
	}
	s.genMu.Unlock()
	return sum, nil
}

// Invalidate drops cached summaries for uid, e.g. after a change event.
func (s *ExpenseService) Invalidate(uid string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[uid]++
	s.summaries.DeletePrefix(uid + "|")
}

func (s *ExpenseService) generation(uid string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[uid]
}

// Close releases the store and publisher when they hold resources.
func (s *ExpenseService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, ev *amqp.ChangeEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping change event", "kind", ev.Kind)
		return
	}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"kind", ev.Kind,
			"user_id", ev.UserID,
			"doc_id", ev.DocID,
			"error", err)
	}
}

func summaryKey(uid string, r core.DateRange) string {
	return uid + "|" + r.Start.Format(time.RFC3339Nano) + "|" + r.End.Format(time.RFC3339Nano)
}
