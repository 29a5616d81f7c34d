// Package sqlite stores the per-user collections in a single SQLite file.
// Rows carry user_id; the users/{uid}/... namespace is preserved for
// subscription keys.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	"expensewise/internal/live"
	"expensewise/internal/store"
)

type Store struct {
	db     *sql.DB
	path   string
	expHub *live.Hub[[]core.Expense]
	catHub *live.Hub[[]core.Category]
	now    func() time.Time
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.ExportTracker = (*Store)(nil)
)

// Open creates the database directory if needed, applies migrations and returns
// a ready store.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:     db,
		path:   dbPath,
		expHub: live.NewHub[[]core.Expense](),
		catHub: live.NewHub[[]core.Category](),
		now:    time.Now,
	}, nil
}

func (s *Store) Close() error {
	s.expHub.Close()
	s.catHub.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) AddExpense(ctx context.Context, uid string, e core.NewExpense) (string, error) {
	if err := store.CheckUID(uid); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, amount_cents, category, date_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, uid, e.Amount.Cents, e.Category, e.Date.UnixMilli(), s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite", "path", store.Path(uid, store.Expenses), "id", id, "amount_cents", e.Amount.Cents)
	s.publishExpenses(ctx, uid)
	return id, nil
}

func (s *Store) DeleteExpense(ctx context.Context, uid, id string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publishExpenses(ctx, uid)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, uid, id string) (core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return core.Expense{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount_cents, category, date_ms, created_at FROM expenses WHERE user_id = ? AND id = ?`,
		uid, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, uid string, r core.DateRange) ([]core.Expense, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount_cents, category, date_ms, created_at FROM expenses
		 WHERE user_id = ? AND date_ms >= ? AND date_ms <= ?
		 ORDER BY date_ms DESC, created_at DESC, id`,
		uid, r.Start.UnixMilli(), r.End.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AddCategory(ctx context.Context, uid, name string) (bool, error) {
	if err := store.CheckUID(uid); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, core.ErrEmptyCategory
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM categories WHERE user_id = ? AND name = ?`, uid, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check category: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), uid, name, s.now().UnixNano()); err != nil {
		return false, fmt.Errorf("insert category: %w", err)
	}
	s.publishCategories(ctx, uid)
	return true, nil
}

func (s *Store) ListCategories(ctx context.Context, uid string) ([]core.Category, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM categories WHERE user_id = ? ORDER BY created_at, rowid`, uid)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		var (
			c  core.Category
			ns int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &ns); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetUserProfile(ctx context.Context, uid string) (*core.UserProfile, error) {
	if err := store.CheckUID(uid); err != nil {
		return nil, err
	}
	var name, role, phone sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT full_name, role, phone_number FROM profiles WHERE user_id = ?`, uid).Scan(&name, &role, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &core.UserProfile{
		FullName:    name.String,
		Role:        core.Role(role.String),
		PhoneNumber: phone.String,
	}, nil
}

// SaveUserProfile merges u into the stored profile; NULL parameters keep the old column.
func (s *Store) SaveUserProfile(ctx context.Context, uid string, u core.ProfileUpdate) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if u.IsEmpty() {
		return core.ErrEmptyProfile
	}
	var role *string
	if u.Role != nil {
		r := string(*u.Role)
		role = &r
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, full_name, role, phone_number, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			full_name    = COALESCE(excluded.full_name, profiles.full_name),
			role         = COALESCE(excluded.role, profiles.role),
			phone_number = COALESCE(excluded.phone_number, profiles.phone_number),
			updated_at   = excluded.updated_at`,
		uid, nullable(u.FullName), nullable(role), nullable(u.PhoneNumber), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

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
	return s.expHub.Subscribe(key, onSnapshot), nil
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
	return s.catHub.Subscribe(key, onSnapshot), nil
}

// Refresh re-reads both collections, e.g. after another process wrote to the file.
func (s *Store) Refresh(ctx context.Context, uid string) error {
	if err := store.CheckUID(uid); err != nil {
		return err
	}
	if err := s.expHub.Reload(store.Path(uid, store.Expenses), s.expenseLoader(ctx, uid)); err != nil {
		return err
	}
	return s.catHub.Reload(store.Path(uid, store.Categories), s.categoryLoader(ctx, uid))
}

// PendingExports returns expenses not yet mirrored, oldest first.
func (s *Store) PendingExports(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount_cents, category, date_ms, created_at FROM expenses
		 WHERE exported_at IS NULL ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkExported(ctx context.Context, uid, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET exported_at = ? WHERE user_id = ? AND id = ?`,
		s.now().UnixMilli(), uid, id); err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.userWhere(ctx, "email = ?", email)
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (auth.User, error) {
	var (
		u  auth.User
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE `+cond, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("get account: %w", err)
	}
	u.CreatedAt = time.UnixMilli(ms).UTC()
	return u, nil
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

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(sc scanner) (core.Expense, error) {
	var (
		e               core.Expense
		cents, date, ca int64
	)
	if err := sc.Scan(&e.ID, &e.UserID, &cents, &e.Category, &date, &ca); err != nil {
		return core.Expense{}, err
	}
	e.Amount = core.Money{Cents: cents}
	e.Date = time.UnixMilli(date).UTC()
	e.CreatedAt = time.UnixMilli(ca).UTC()
	return e, nil
}

func nullable(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
