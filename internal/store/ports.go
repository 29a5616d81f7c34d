// Package store defines the per-user document store used by the application.
// Every record lives under users/{uid}/expenses, users/{uid}/categories or
// users/{uid}/profile; backends in the subpackages map these paths onto their
// own storage.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	"expensewise/internal/live"
)

// Collection names a per-user collection.
type Collection string

const (
	Expenses   Collection = "expenses"
	Categories Collection = "categories"
	Profile    Collection = "profile"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNoUser   = errors.New("missing user id")
)

// Path returns the namespace path users/{uid}/{collection}.
func Path(uid string, c Collection) string {
	return "users/" + uid + "/" + string(c)
}

// CheckUID rejects operations without an authenticated user.
func CheckUID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return ErrNoUser
	}
	return nil
}

// MonthWindow covers day 1 00:00:00 through the last day 23:59:59.
func MonthWindow(year, month int, loc *time.Location) core.DateRange {
	r := core.MonthRange(year, month, loc)
	r.End = r.End.Truncate(time.Second)
	return r
}

type Unsubscribe = live.Unsubscribe

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		AddExpense(ctx context.Context, uid string, e core.NewExpense) (id string, err error)
		DeleteExpense(ctx context.Context, uid, id string) error
	}

	ExpenseReader interface {
		GetExpense(ctx context.Context, uid, id string) (core.Expense, error)
		// ListExpenses returns expenses with Start <= Date <= End, newest first.
		ListExpenses(ctx context.Context, uid string, r core.DateRange) ([]core.Expense, error)
	}

	CategoryStore interface {
		// AddCategory inserts name unless a category with exactly that name exists.
		AddCategory(ctx context.Context, uid, name string) (created bool, err error)
		ListCategories(ctx context.Context, uid string) ([]core.Category, error)
	}

	ProfileStore interface {
		// GetUserProfile returns nil when the user has no profile yet.
		GetUserProfile(ctx context.Context, uid string) (*core.UserProfile, error)
		SaveUserProfile(ctx context.Context, uid string, u core.ProfileUpdate) error
	}

	// Subscriber streams whole snapshots. The first delivery is the current state.
	Subscriber interface {
		SubscribeExpenses(ctx context.Context, uid string, onSnapshot func([]core.Expense), onError func(error)) (Unsubscribe, error)
		SubscribeCategories(ctx context.Context, uid string, onSnapshot func([]core.Category), onError func(error)) (Unsubscribe, error)
		// Refresh re-reads the user's collections and republishes them to local subscribers.
		Refresh(ctx context.Context, uid string) error
	}

	// ExportTracker is implemented by durable backends that remember which
	// expenses were mirrored to the spreadsheet.
	ExportTracker interface {
		PendingExports(ctx context.Context, limit int) ([]core.Expense, error)
		MarkExported(ctx context.Context, uid, id string) error
	}

	Store interface {
		ExpenseWriter
		ExpenseReader
		CategoryStore
		ProfileStore
		Subscriber
		auth.Repository
		Ping(ctx context.Context) error
		Close() error
	}
)

// ListMonth returns the expenses of one calendar month, newest first.
func ListMonth(ctx context.Context, r ExpenseReader, uid string, year, month int, loc *time.Location) ([]core.Expense, error) {
	return r.ListExpenses(ctx, uid, MonthWindow(year, month, loc))
}

// AllTime is the widest window ListExpenses accepts.
func AllTime() core.DateRange {
	return core.DateRange{
		Start: time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
	}
}
