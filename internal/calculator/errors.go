package calculator

import (
	"fmt"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

// ValidationError reports malformed or inconsistent split input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid split: " + e.Reason
	}
	return fmt.Sprintf("invalid split: %s: %s", e.Field, e.Reason)
}

// EmptyParticipantsError reports that no participants resolved for a split.
type EmptyParticipantsError struct {
	Mode models.SplitMode
}

func (e *EmptyParticipantsError) Error() string {
	return fmt.Sprintf("%s split has no participants", e.Mode)
}

// UnassignedItemError reports an item nobody was assigned to under an item split.
type UnassignedItemError struct {
	ItemID   string
	ItemName string
}

func (e *UnassignedItemError) Error() string {
	if e.ItemName != "" {
		return fmt.Sprintf("item %q is not assigned to anyone", e.ItemName)
	}
	return fmt.Sprintf("item %s is not assigned to anyone", e.ItemID)
}

// UnbalancedInputError reports net balances that do not sum to zero.
type UnbalancedInputError struct {
	Sum money.Money
}

func (e *UnbalancedInputError) Error() string {
	return fmt.Sprintf("balances do not sum to zero (sum %s)", e.Sum)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
