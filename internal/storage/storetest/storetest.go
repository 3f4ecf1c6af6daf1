// Package storetest holds a conformance suite run against every
// storage.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
	"github.com/mmynk/opensplit/internal/storage"
)

// Run exercises store. The store must start empty.
func Run(t *testing.T, store storage.Store) {
	ctx := context.Background()

	t.Run("groups", func(t *testing.T) { testGroups(ctx, t, store) })
	t.Run("expenses", func(t *testing.T) { testExpenses(ctx, t, store) })
	t.Run("settlements", func(t *testing.T) { testSettlements(ctx, t, store) })
	t.Run("users", func(t *testing.T) { testUsers(ctx, t, store) })
}

func php(v int64) money.Money { return money.New(v, "PHP") }

func newGroup(ctx context.Context, t *testing.T, store storage.Store, creator string, others ...string) *models.Group {
	t.Helper()
	group := &models.Group{Name: "Boracay Trip", Description: "summer", CreatedBy: creator}
	group.EnsureCreatorAdmin(0)
	for _, id := range others {
		group.Members = append(group.Members, models.GroupMember{UserID: id, Role: models.RoleMember})
	}
	require.NoError(t, store.CreateGroup(ctx, group))
	return group
}

func testGroups(ctx context.Context, t *testing.T, store storage.Store) {
	group := newGroup(ctx, t, store, "alice", "bob")
	assert.NotEmpty(t, group.ID)
	assert.NotZero(t, group.CreatedAt)

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "Boracay Trip", got.Name)
	assert.Equal(t, "summer", got.Description)
	assert.Equal(t, "alice", got.CreatedBy)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.MemberIDs())
	assert.True(t, got.IsAdmin("alice"))
	assert.False(t, got.IsAdmin("bob"))

	_, err = store.GetGroup(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Membership
	require.NoError(t, store.AddMember(ctx, &models.GroupMember{GroupID: group.ID, UserID: "carol", Role: models.RoleMember}))
	err = store.AddMember(ctx, &models.GroupMember{GroupID: group.ID, UserID: "carol", Role: models.RoleMember})
	assert.ErrorIs(t, err, storage.ErrAlreadyMember)
	err = store.AddMember(ctx, &models.GroupMember{GroupID: "missing", UserID: "carol", Role: models.RoleMember})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	members, err := store.LoadMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	require.NoError(t, store.RemoveMember(ctx, group.ID, "carol"))
	assert.ErrorIs(t, store.RemoveMember(ctx, group.ID, "carol"), storage.ErrNotFound)

	// Listing
	other := newGroup(ctx, t, store, "bob")
	bobGroups, err := store.ListGroupsForUser(ctx, "bob")
	require.NoError(t, err)
	ids := make([]string, len(bobGroups))
	for i, g := range bobGroups {
		ids[i] = g.ID
	}
	assert.ElementsMatch(t, []string{group.ID, other.ID}, ids)

	aliceGroups, err := store.ListGroupsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceGroups, 1)
	assert.Len(t, aliceGroups[0].Members, 2)

	// Update
	group.Name = "Siargao Trip"
	group.Description = ""
	require.NoError(t, store.UpdateGroup(ctx, group))
	got, err = store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "Siargao Trip", got.Name)
	assert.Empty(t, got.Description)
	assert.ErrorIs(t, store.UpdateGroup(ctx, &models.Group{ID: "missing", Name: "x"}), storage.ErrNotFound)

	// Delete
	require.NoError(t, store.DeleteGroup(ctx, other.ID))
	_, err = store.GetGroup(ctx, other.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteGroup(ctx, other.ID), storage.ErrNotFound)
}

func testExpenses(ctx context.Context, t *testing.T, store storage.Store) {
	group := newGroup(ctx, t, store, "alice", "bob", "carol")
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	pct := int64(5000)
	equal := &models.Expense{
		GroupID:     group.ID,
		CreatedBy:   "alice",
		PayerID:     "bob",
		Description: "Dinner",
		Notes:       "at Manam",
		Total:       php(1000),
		Date:        date,
		SplitMode:   models.SplitPercentage,
		Splits: []models.ExpenseSplit{
			{UserID: "alice", Amount: php(500), Percentage: &pct},
			{UserID: "bob", Amount: php(500), Percentage: &pct},
		},
	}
	require.NoError(t, store.SaveExpense(ctx, equal))
	require.NotEmpty(t, equal.ID)
	assert.NotZero(t, equal.CreatedAt)

	got, err := store.GetExpense(ctx, equal.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, got.GroupID)
	assert.Equal(t, "bob", got.Payer())
	assert.Equal(t, "at Manam", got.Notes)
	assert.Equal(t, php(1000), got.Total)
	assert.True(t, date.Equal(got.Date), "date %v", got.Date)
	assert.Equal(t, models.SplitPercentage, got.SplitMode)
	require.Len(t, got.Splits, 2)
	assert.Equal(t, "alice", got.Splits[0].UserID)
	require.NotNil(t, got.Splits[0].Percentage)
	assert.Equal(t, int64(5000), *got.Splits[0].Percentage)
	assert.Equal(t, php(500), got.Splits[1].Amount)

	items := &models.Expense{
		GroupID:     group.ID,
		CreatedBy:   "carol",
		Description: "Groceries",
		Total:       php(330),
		Date:        date.AddDate(0, 0, 1),
		SplitMode:   models.SplitItem,
		Items: []models.ExpenseItem{
			{Name: "Sisig", Quantity: 1, UnitPrice: php(200), Total: php(200), AssignedTo: []string{"alice", "carol"}},
			{Name: "Beer", Quantity: 2, UnitPrice: php(50), Total: php(100), AssignedTo: []string{"carol"}},
		},
		Splits: []models.ExpenseSplit{
			{UserID: "alice", Amount: php(110)},
			{UserID: "carol", Amount: php(220)},
		},
	}
	require.NoError(t, store.SaveExpense(ctx, items))
	require.NotEmpty(t, items.Items[0].ID)

	got, err = store.GetExpense(ctx, items.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Sisig", got.Items[0].Name)
	assert.Equal(t, []string{"alice", "carol"}, got.Items[0].AssignedTo)
	assert.Equal(t, int64(2), got.Items[1].Quantity)
	assert.Equal(t, php(50), got.Items[1].UnitPrice)
	assert.Equal(t, []string{items.Items[0].ID}, got.Splits[0].ItemIDs)
	assert.Equal(t, []string{items.Items[0].ID, items.Items[1].ID}, got.Splits[1].ItemIDs)

	// Replacing swaps the split set as a whole.
	items.Description = "Groceries (fixed)"
	items.SplitMode = models.SplitEqual
	items.Items = nil
	items.Splits = []models.ExpenseSplit{
		{UserID: "alice", Amount: php(110)},
		{UserID: "bob", Amount: php(110)},
		{UserID: "carol", Amount: php(110)},
	}
	createdAt := items.CreatedAt
	require.NoError(t, store.SaveExpense(ctx, items))
	got, err = store.GetExpense(ctx, items.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries (fixed)", got.Description)
	assert.Empty(t, got.Items)
	assert.Len(t, got.Splits, 3)
	assert.Equal(t, createdAt, got.CreatedAt)

	missing := *items
	missing.ID = "missing"
	assert.ErrorIs(t, store.SaveExpense(ctx, &missing), storage.ErrNotFound)

	list, err := store.LoadExpenses(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, items.ID, list[0].ID, "most recent date first")

	n, err := store.CountExpenses(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.DeleteExpense(ctx, equal.ID))
	_, err = store.GetExpense(ctx, equal.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteExpense(ctx, equal.ID), storage.ErrNotFound)

	n, err = store.CountExpenses(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSettlements(ctx context.Context, t *testing.T, store storage.Store) {
	group := newGroup(ctx, t, store, "alice", "bob")

	first := &models.Settlement{
		GroupID:    group.ID,
		FromUserID: "bob",
		ToUserID:   "alice",
		Amount:     php(2500),
		CreatedBy:  "bob",
		CreatedAt:  100,
		Note:       "GCash",
	}
	require.NoError(t, store.CreateSettlement(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &models.Settlement{
		GroupID:    group.ID,
		FromUserID: "alice",
		ToUserID:   "bob",
		Amount:     php(100),
		CreatedBy:  "alice",
		CreatedAt:  200,
	}
	require.NoError(t, store.CreateSettlement(ctx, second))

	got, err := store.GetSettlement(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, php(2500), got.Amount)
	assert.Equal(t, "GCash", got.Note)

	list, err := store.ListSettlementsByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Empty(t, list[0].Note)

	require.NoError(t, store.DeleteSettlement(ctx, first.ID))
	_, err = store.GetSettlement(ctx, first.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteSettlement(ctx, first.ID), storage.ErrNotFound)

	// Settlements go with their group.
	require.NoError(t, store.DeleteGroup(ctx, group.ID))
	_, err = store.GetSettlement(ctx, second.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUsers(ctx context.Context, t *testing.T, store storage.Store) {
	_, err := store.GetUser(ctx, "dana")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	user := &models.User{
		ID:            "dana",
		Email:         "dana@example.com",
		FullName:      "Dana Cruz",
		GCashNumber:   "09171234567",
		InstapayQRURL: "https://cdn.example.com/instapay-qr/dana.png",
	}
	require.NoError(t, store.UpsertUser(ctx, user))
	created := user.CreatedAt

	got, err := store.GetUser(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, "Dana Cruz", got.FullName)
	assert.Equal(t, "09171234567", got.GCashNumber)
	assert.Equal(t, "https://cdn.example.com/instapay-qr/dana.png", got.InstapayQRURL)

	update := &models.User{ID: "dana", Email: "dana@example.com", FullName: "Dana C.", BankAccountName: "Dana Cruz"}
	require.NoError(t, store.UpsertUser(ctx, update))

	got, err = store.GetUser(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, "Dana C.", got.FullName)
	assert.Equal(t, "Dana Cruz", got.BankAccountName)
	assert.Empty(t, got.GCashNumber)
	assert.Equal(t, created, got.CreatedAt)
}
