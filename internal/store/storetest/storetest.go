// Package storetest holds the behaviour every store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	"expensewise/internal/store"
)

// Factory returns a fresh, empty store. Cleanup is the caller's job via t.Cleanup.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("AddAndListByRange", func(t *testing.T) { testAddAndList(t, newStore(t)) })
	t.Run("ListMonthBounds", func(t *testing.T) { testListMonth(t, newStore(t)) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("GetExpenseNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("CategoriesDedupe", func(t *testing.T) { testCategories(t, newStore(t)) })
	t.Run("ProfileMerge", func(t *testing.T) { testProfile(t, newStore(t)) })
	t.Run("SubscribeSnapshots", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("UsersAreIsolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("RequiresUser", func(t *testing.T) { testRequiresUser(t, newStore(t)) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func add(t *testing.T, s store.Store, uid string, cents int64, cat string, date time.Time) string {
	t.Helper()
	id, err := s.AddExpense(context.Background(), uid, core.NewExpense{
		Amount:   core.Money{Cents: cents},
		Category: cat,
		Date:     date,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func testAddAndList(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "u1", 10000, "Food", day(2024, 1, 5))
	add(t, s, "u1", 5000, "Travel", day(2024, 1, 20))
	add(t, s, "u1", 3000, "Food", day(2024, 2, 1))

	all, err := s.ListExpenses(ctx, "u1", store.AllTime())
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Date.After(all[i-1].Date), "expected date desc order")
	}
	assert.Equal(t, "u1", all[0].UserID)
	assert.False(t, all[0].CreatedAt.IsZero())

	jan, err := s.ListExpenses(ctx, "u1", core.NewDateRange(day(2024, 1, 1), day(2024, 1, 31)))
	require.NoError(t, err)
	require.Len(t, jan, 2)
	assert.Equal(t, "Travel", jan[0].Category)
	assert.Equal(t, int64(5000), jan[0].Amount.Cents)
}

func testListMonth(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "u1", 100, "Food", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	add(t, s, "u1", 200, "Food", time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC))
	add(t, s, "u1", 300, "Food", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	add(t, s, "u1", 400, "Food", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC))

	got, err := store.ListMonth(ctx, s, "u1", 2024, 3, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(200), got[0].Amount.Cents)
	assert.Equal(t, int64(100), got[1].Amount.Cents)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := add(t, s, "u1", 100, "Food", day(2024, 1, 1))

	require.NoError(t, s.DeleteExpense(ctx, "u1", "does-not-exist"))
	all, err := s.ListExpenses(ctx, "u1", store.AllTime())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteExpense(ctx, "u1", id))
	require.NoError(t, s.DeleteExpense(ctx, "u1", id))
	all, err = s.ListExpenses(ctx, "u1", store.AllTime())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testGetNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := add(t, s, "u1", 250, "Rent", day(2024, 5, 1))

	got, err := s.GetExpense(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "Rent", got.Category)

	_, err = s.GetExpense(ctx, "u1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCategories(t *testing.T, s store.Store) {
	ctx := context.Background()
	created, err := s.AddCategory(ctx, "u1", "Gym")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.AddCategory(ctx, "u1", "Gym")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.AddCategory(ctx, "u1", "Books")
	require.NoError(t, err)

	cats, err := s.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Gym", cats[0].Name)
	assert.Equal(t, "Books", cats[1].Name)
}

func testProfile(t *testing.T, s store.Store) {
	ctx := context.Background()
	p, err := s.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	name := "Asha Rao"
	role := core.RoleTenant
	require.NoError(t, s.SaveUserProfile(ctx, "u1", core.ProfileUpdate{FullName: &name, Role: &role}))

	phone := "9876543210"
	require.NoError(t, s.SaveUserProfile(ctx, "u1", core.ProfileUpdate{PhoneNumber: &phone}))

	p, err = s.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, core.UserProfile{FullName: name, Role: core.RoleTenant, PhoneNumber: phone}, *p)
}

func testSubscribe(t *testing.T, s store.Store) {
	ctx := context.Background()
	add(t, s, "u1", 100, "Food", day(2024, 1, 1))

	var mu sync.Mutex
	var last []core.Expense
	unsub, err := s.SubscribeExpenses(ctx, "u1", func(snap []core.Expense) {
		mu.Lock()
		last = snap
		mu.Unlock()
	}, func(error) {})
	require.NoError(t, err)
	defer unsub()

	size := func() int {
		mu.Lock()
		defer mu.Unlock()
		if last == nil {
			return -1
		}
		return len(last)
	}
	require.Eventually(t, func() bool { return size() == 1 }, 5*time.Second, 10*time.Millisecond)

	id := add(t, s, "u1", 200, "Travel", day(2024, 1, 2))
	require.NoError(t, s.Refresh(ctx, "u1"))
	require.Eventually(t, func() bool { return size() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.DeleteExpense(ctx, "u1", id))
	require.NoError(t, s.Refresh(ctx, "u1"))
	require.Eventually(t, func() bool { return size() == 1 }, 5*time.Second, 10*time.Millisecond)

	var catMu sync.Mutex
	var cats []core.Category
	cunsub, err := s.SubscribeCategories(ctx, "u1", func(snap []core.Category) {
		catMu.Lock()
		cats = snap
		catMu.Unlock()
	}, func(error) {})
	require.NoError(t, err)
	defer cunsub()

	_, err = s.AddCategory(ctx, "u1", "Gym")
	require.NoError(t, err)
	require.NoError(t, s.Refresh(ctx, "u1"))
	require.Eventually(t, func() bool {
		catMu.Lock()
		defer catMu.Unlock()
		return len(cats) == 1 && cats[0].Name == "Gym"
	}, 5*time.Second, 10*time.Millisecond)
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := add(t, s, "u1", 100, "Food", day(2024, 1, 1))
	add(t, s, "u2", 999, "Food", day(2024, 1, 1))

	other, err := s.ListExpenses(ctx, "u2", store.AllTime())
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(999), other[0].Amount.Cents)

	_, err = s.GetExpense(ctx, "u2", id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRequiresUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.AddExpense(ctx, "", core.NewExpense{Amount: core.Money{Cents: 1}, Category: "Food", Date: day(2024, 1, 1)})
	assert.ErrorIs(t, err, store.ErrNoUser)
	_, err = s.ListExpenses(ctx, " ", store.AllTime())
	assert.ErrorIs(t, err, store.ErrNoUser)
	_, err = s.AddCategory(ctx, "", "Gym")
	assert.ErrorIs(t, err, store.ErrNoUser)
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := auth.User{ID: "acc-1", Email: "a@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, s.CreateUser(ctx, u))

	err := s.CreateUser(ctx, auth.User{ID: "acc-2", Email: "a@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	got, err := s.UserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
	assert.Equal(t, "h", got.PasswordHash)

	_, err = s.UserByID(ctx, "acc-1")
	require.NoError(t, err)
	_, err = s.UserByID(ctx, "nope")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-1"}, ids)
}
