package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
	"github.com/mmynk/opensplit/internal/storage/storetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// Create temp directory for test database
	tempDir, err := os.MkdirTemp("", "opensplit-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "nested", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, newTestStore(t))
}

func TestNew_ReopensExistingDatabase(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")
	ctx := context.Background()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	group := &models.Group{Name: "Roommates", CreatedBy: "alice"}
	group.EnsureCreatorAdmin(0)
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	store.Close()

	// Migrations are idempotent and data survives.
	store, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store.Close()

	got, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got.Name != "Roommates" {
		t.Errorf("Expected name Roommates, got %s", got.Name)
	}
}

func TestDeleteGroup_RefusedWithExpenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := &models.Group{Name: "Roommates", CreatedBy: "alice"}
	group.EnsureCreatorAdmin(0)
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	expense := &models.Expense{
		GroupID:     group.ID,
		CreatedBy:   "alice",
		Description: "Rent",
		Total:       money.New(1500000, "PHP"),
		SplitMode:   models.SplitEqual,
		Splits:      []models.ExpenseSplit{{UserID: "alice", Amount: money.New(1500000, "PHP")}},
	}
	if err := store.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("SaveExpense failed: %v", err)
	}
	if expense.Date.IsZero() {
		t.Error("Expected Date to default to today")
	}

	// The foreign key keeps expenses from being orphaned.
	if err := store.DeleteGroup(ctx, group.ID); err == nil {
		t.Fatal("Expected DeleteGroup to fail while expenses exist")
	}

	if err := store.DeleteExpense(ctx, expense.ID); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if err := store.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
}

func TestSaveExpense_RollsBackOnFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	expense := &models.Expense{
		CreatedBy:   "alice",
		Description: "Lunch",
		Total:       money.New(300, "PHP"),
		SplitMode:   models.SplitEqual,
		Splits: []models.ExpenseSplit{
			{UserID: "alice", Amount: money.New(150, "PHP")},
			{UserID: "bob", Amount: money.New(150, "PHP")},
		},
	}
	if err := store.SaveExpense(ctx, expense); err != nil {
		t.Fatalf("SaveExpense failed: %v", err)
	}

	// A duplicate participant violates the split primary key.
	expense.Splits = []models.ExpenseSplit{
		{UserID: "alice", Amount: money.New(100, "PHP")},
		{UserID: "alice", Amount: money.New(200, "PHP")},
	}
	if err := store.SaveExpense(ctx, expense); err == nil {
		t.Fatal("Expected SaveExpense to fail")
	}

	got, err := store.GetExpense(ctx, expense.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if len(got.Splits) != 2 || got.Splits[1].UserID != "bob" {
		t.Errorf("Expected original splits to survive, got %+v", got.Splits)
	}
}
