package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/opensplit/internal/money"
)

// SplitMode is the method used to divide an expense among participants.
type SplitMode string

const (
	SplitEqual      SplitMode = "equal"
	SplitPercentage SplitMode = "percentage"
	SplitAmount     SplitMode = "amount"
	SplitItem       SplitMode = "item"
)

// DateLayout is the calendar-date format used for Expense.Date on the wire and in storage.
const DateLayout = "2006-01-02"

var (
	ErrEmptyDescription = errors.New("description is required")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrInvalidTotal     = errors.New("total amount must be positive")
	ErrMissingCreator   = errors.New("created_by is required")
	ErrInvalidSplitMode = errors.New("split mode must be equal, percentage, amount or item")
	ErrNoSplits         = errors.New("expense has no splits")
	ErrSplitMismatch    = errors.New("splits do not sum to the expense total")
	ErrDuplicateSplit   = errors.New("a user appears in more than one split")
	ErrSplitFields      = errors.New("split carries fields that do not belong to its split mode")
	ErrItemsNotAllowed  = errors.New("line items are only allowed for item splits")
	ErrInvalidItem      = errors.New("line item needs a non-negative total and at least one assignee")
)

// Valid reports whether m is a known split mode.
func (m SplitMode) Valid() bool {
	switch m {
	case SplitEqual, SplitPercentage, SplitAmount, SplitItem:
		return true
	}
	return false
}

// Expense is one purchase, paid by a single member and divided among
// participants according to SplitMode.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the owning group. Empty for personal expenses.
	GroupID string

	// CreatedBy is the user who entered the expense.
	CreatedBy string

	// PayerID is the member who fronted the money. Empty means CreatedBy paid.
	PayerID string

	// Description is a short label ("Dinner at Manam").
	Description string

	// Notes is optional free text.
	Notes string

	// Total is the full amount paid, tax and service included.
	Total money.Money

	// Date is the calendar day of the purchase (UTC midnight).
	Date time.Time

	// ReceiptURL points at the uploaded receipt image, if any.
	ReceiptURL string

	// OCRText is the raw text extracted from the receipt, if any.
	OCRText string

	// SplitMode selects how Splits were computed.
	SplitMode SplitMode

	// Items are the receipt lines. Only present when SplitMode is SplitItem.
	Items []ExpenseItem

	// Splits is every participant's share. Replaced as a whole on recompute.
	Splits []ExpenseSplit

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// ExpenseItem is a single receipt line used by item splits.
type ExpenseItem struct {
	// ID is the unique identifier for the item (UUID format).
	ID string

	// Name is the line description ("Sisig", "Iced tea").
	Name string

	// Quantity is the number of units on the line.
	Quantity int64

	// UnitPrice is the price of one unit.
	UnitPrice money.Money

	// Total is the line amount. The item split divides this value.
	Total money.Money

	// AssignedTo lists the user IDs sharing this item equally.
	AssignedTo []string
}

// ExpenseSplit is one member's share of one expense.
type ExpenseSplit struct {
	// UserID is the participant.
	UserID string

	// Amount is what this participant owes for the expense.
	Amount money.Money

	// Percentage is the requested share in basis points (3333 = 33.33%).
	// Only set for percentage splits.
	Percentage *int64

	// ItemIDs are the items this share derives from. Only set for item splits.
	ItemIDs []string
}

// Payer returns the member who paid, defaulting to the creator.
func (e *Expense) Payer() string {
	if e.PayerID != "" {
		return e.PayerID
	}
	return e.CreatedBy
}

// Participants returns the user IDs of all splits in order.
func (e *Expense) Participants() []string {
	ids := make([]string, len(e.Splits))
	for i, s := range e.Splits {
		ids[i] = s.UserID
	}
	return ids
}

// Involves reports whether userID paid for or shares in the expense.
func (e *Expense) Involves(userID string) bool {
	if e.Payer() == userID || e.CreatedBy == userID {
		return true
	}
	for _, s := range e.Splits {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Validate checks the expense invariants: a positive total, splits that sum
// to it exactly, and split fields consistent with the split mode. Line
// items must be non-negative and shared by participants of the expense.
func (e *Expense) Validate() error {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if len(desc) > 200 {
		return ErrDescriptionLong
	}
	if e.CreatedBy == "" {
		return ErrMissingCreator
	}
	if !e.Total.IsPositive() {
		return ErrInvalidTotal
	}
	if !e.SplitMode.Valid() {
		return ErrInvalidSplitMode
	}
	if len(e.Items) > 0 && e.SplitMode != SplitItem {
		return ErrItemsNotAllowed
	}
	if len(e.Splits) == 0 {
		return ErrNoSplits
	}

	seen := make(map[string]bool, len(e.Splits))
	sum := money.Zero(e.Total.Currency)
	for _, s := range e.Splits {
		if seen[s.UserID] {
			return fmt.Errorf("%w: %s", ErrDuplicateSplit, s.UserID)
		}
		seen[s.UserID] = true

		if (s.Percentage != nil) != (e.SplitMode == SplitPercentage) {
			return ErrSplitFields
		}
		if len(s.ItemIDs) > 0 && e.SplitMode != SplitItem {
			return ErrSplitFields
		}

		var err error
		if sum, err = sum.Add(s.Amount); err != nil {
			return err
		}
	}
	if sum.Amount != e.Total.Amount {
		return fmt.Errorf("%w: %s != %s", ErrSplitMismatch, sum, e.Total)
	}

	for _, item := range e.Items {
		if item.Total.IsNegative() || item.UnitPrice.IsNegative() || len(item.AssignedTo) == 0 {
			return fmt.Errorf("%w: %q", ErrInvalidItem, item.Name)
		}
		for _, userID := range item.AssignedTo {
			if !seen[userID] {
				return fmt.Errorf("%w: %q assigned to non-participant %s", ErrInvalidItem, item.Name, userID)
			}
		}
	}
	return nil
}

// LinkSplitItems sets each split's ItemIDs to the items assigned to that
// participant, in item order.
func LinkSplitItems(e *Expense) {
	byUser := make(map[string][]string)
	for _, item := range e.Items {
		for _, userID := range item.AssignedTo {
			byUser[userID] = append(byUser[userID], item.ID)
		}
	}
	for i := range e.Splits {
		e.Splits[i].ItemIDs = byUser[e.Splits[i].UserID]
	}
}
