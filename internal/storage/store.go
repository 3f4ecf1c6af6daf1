// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/opensplit/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMember is returned by AddMember for an existing membership.
	ErrAlreadyMember = errors.New("user is already a member of this group")
)

// GroupStore persists groups and their memberships.
type GroupStore interface {
	// CreateGroup persists a new group together with its members.
	// The group.ID and timestamps are populated by the store when empty.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group and its members by ID.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupsForUser returns every group userID belongs to, newest first.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// UpdateGroup updates the name and description of an existing group.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// DeleteGroup removes a group, its members and its settlements.
	DeleteGroup(ctx context.Context, groupID string) error

	// LoadMembers returns the memberships of a group in join order.
	LoadMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)

	// AddMember adds a membership. Returns ErrAlreadyMember for duplicates.
	AddMember(ctx context.Context, member *models.GroupMember) error

	// RemoveMember deletes a membership.
	RemoveMember(ctx context.Context, groupID, userID string) error
}

// ExpenseStore persists expenses with their line items and splits.
type ExpenseStore interface {
	// SaveExpense inserts the expense when expense.ID is empty and replaces
	// it otherwise. Items and splits are replaced as a whole, atomically.
	SaveExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense with its items and splits.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// LoadExpenses returns every expense of a group, most recent date first.
	LoadExpenses(ctx context.Context, groupID string) ([]*models.Expense, error)

	// DeleteExpense removes an expense with its items and splits.
	DeleteExpense(ctx context.Context, expenseID string) error

	// CountExpenses returns the number of expenses recorded in a group.
	CountExpenses(ctx context.Context, groupID string) (int, error)
}

// SettlementStore persists recorded payments between members.
type SettlementStore interface {
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)
	ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error)
	DeleteSettlement(ctx context.Context, settlementID string) error
}

// UserStore persists member profiles.
type UserStore interface {
	// GetUser returns the profile for id, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*models.User, error)

	// UpsertUser creates or replaces a profile.
	UpsertUser(ctx context.Context, user *models.User) error
}

// Store defines the interface for all storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	GroupStore
	ExpenseStore
	SettlementStore
	UserStore

	// Close releases any resources held by the store.
	Close() error
}
