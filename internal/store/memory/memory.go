// Package memory is the in-process document store. Records live in maps keyed by
// user id; snapshots are fanned out to subscribers through live hubs.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	"expensewise/internal/live"
	"expensewise/internal/store"
)

type Store struct {
	mu         sync.Mutex
	expenses   map[string]map[string]core.Expense
	categories map[string][]core.Category
	profiles   map[string]core.UserProfile
	users      map[string]auth.User
	seed       []string

	expHub *live.Hub[[]core.Expense]
	catHub *live.Hub[[]core.Category]
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store. seedCategories are created for every new account.
func New(seedCategories ...string) *Store {
	return &Store{
		expenses:   make(map[string]map[string]core.Expense),
		categories: make(map[string][]core.Category),
		profiles:   make(map[string]core.UserProfile),
		users:      make(map[string]auth.User),
		seed:       dedupe(seedCategories),
		expHub:     live.NewHub[[]core.Expense](),
		catHub:     live.NewHub[[]core.Category](),
		now:        time.Now,
	}
}

// NewFromFiles seeds new accounts with the labels listed in base/seed_categories.txt.
// A missing file means no seed.
func NewFromFiles(base string) *Store {
	return New(readLines(filepath.Join(base, "seed_categories.txt"))...)
}

func (s *Store) AddExpense(_ context.Context, uid string, e core.NewExpense) (string, error) {
	if err := store.CheckUID(uid); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := core.Expense{
		ID:        uuid.New().String(),
		Amount:    e.Amount,
		Category:  e.Category,
		Date:      e.Date,
		UserID:    uid,
		CreatedAt: s.now().UTC(),
	}
	if s.expenses[uid] == nil {
		s.expenses[uid] = make(map[string]core.Expense)
	}
	s.expenses[uid][rec.ID] = rec
	s.publishExpensesLocked(uid)
	return rec.ID, nil
}

func (s *Store) DeleteExpense(_ context.Context, uid, id string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[uid][id]; !ok {
		return nil
	}
	delete(s.expenses[uid], id)
	s.publishExpensesLocked(uid)
	return nil
}

func (s *Store) GetExpense(_ context.Context, uid, id string) (core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[uid][id]
	if !ok {
		return core.Expense{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, uid string, r core.DateRange) ([]core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, e := range s.sortedLocked(uid) {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) AddCategory(_ context.Context, uid, name string) (bool, error) {
	if err := store.CheckUID(uid); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, core.ErrEmptyCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories[uid] {
		if c.Name == name {
			return false, nil
		}
	}
	s.categories[uid] = append(s.categories[uid], core.Category{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	})
	s.catHub.Publish(store.Path(uid, store.Categories), s.categoriesLocked(uid))
	return true, nil
}

func (s *Store) ListCategories(_ context.Context, uid string) ([]core.Category, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categoriesLocked(uid), nil
}

func (s *Store) GetUserProfile(_ context.Context, uid string) (*core.UserProfile, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) SaveUserProfile(_ context.Context, uid string, u core.ProfileUpdate) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if u.IsEmpty() {
		return core.ErrEmptyProfile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[uid] = u.Apply(s.profiles[uid])
	return nil
}

func (s *Store) SubscribeExpenses(ctx context.Context, uid string, onSnapshot func([]core.Expense), _ func(error)) (store.Unsubscribe, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	key := store.Path(uid, store.Expenses)
	if _, ok := s.expHub.Latest(key); !ok {
		s.expHub.Publish(key, s.sortedLocked(uid))
	}
	unsub := s.expHub.Subscribe(key, onSnapshot)
	s.mu.Unlock()
	return stopWith(ctx, unsub), nil
}

func (s *Store) SubscribeCategories(ctx context.Context, uid string, onSnapshot func([]core.Category), _ func(error)) (store.Unsubscribe, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	s.mu.Lock()
	key := store.Path(uid, store.Categories)
	if _, ok := s.catHub.Latest(key); !ok {
		s.catHub.Publish(key, s.categoriesLocked(uid))
	}
	unsub := s.catHub.Subscribe(key, onSnapshot)
	s.mu.Unlock()
	return stopWith(ctx, unsub), nil
}

// Refresh republishes the current state. Memory is never changed out of process,
// so this only matters for tests and symmetry with the durable backends.
func (s *Store) Refresh(_ context.Context, uid string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishExpensesLocked(uid)
	s.catHub.Publish(store.Path(uid, store.Categories), s.categoriesLocked(uid))
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			s.mu.Unlock()
			return auth.ErrEmailTaken
		}
	}
	s.users[u.ID] = u
	s.mu.Unlock()

	for _, name := range s.seed {
		if _, err := s.AddCategory(ctx, u.ID, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.expHub.Close()
	s.catHub.Close()
	return nil
}

func (s *Store) publishExpensesLocked(uid string) {
	s.expHub.Publish(store.Path(uid, store.Expenses), s.sortedLocked(uid))
}

// sortedLocked returns the user's expenses ordered by date desc, newest insert
// first among equal dates.
func (s *Store) sortedLocked(uid string) []core.Expense {
	out := make([]core.Expense, 0, len(s.expenses[uid]))
	for _, e := range s.expenses[uid] {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) categoriesLocked(uid string) []core.Category {
	return append([]core.Category{}, s.categories[uid]...)
}

func stopWith(ctx context.Context, unsub live.Unsubscribe) store.Unsubscribe {
	if ctx.Done() == nil {
		return unsub
	}
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			unsub()
		case <-stop:
		}
	}()
	return func() {
		once.Do(func() { close(stop) })
		unsub()
	}
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
