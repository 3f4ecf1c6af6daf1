package models

import (
	"errors"
	"testing"
	"time"

	"github.com/mmynk/opensplit/internal/money"
)

func php(v int64) money.Money { return money.New(v, "PHP") }

func validExpense() *Expense {
	return &Expense{
		CreatedBy:   "alice",
		Description: "Dinner",
		Total:       php(1000),
		Date:        time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		SplitMode:   SplitEqual,
		Splits: []ExpenseSplit{
			{UserID: "alice", Amount: php(334)},
			{UserID: "bob", Amount: php(333)},
			{UserID: "carol", Amount: php(333)},
		},
	}
}

func TestExpenseValidate(t *testing.T) {
	bp := int64(5000)

	tests := []struct {
		name    string
		mutate  func(e *Expense)
		wantErr error
	}{
		{"valid", func(e *Expense) {}, nil},
		{"empty description", func(e *Expense) { e.Description = "  " }, ErrEmptyDescription},
		{"missing creator", func(e *Expense) { e.CreatedBy = "" }, ErrMissingCreator},
		{"zero total", func(e *Expense) { e.Total = php(0) }, ErrInvalidTotal},
		{"unknown mode", func(e *Expense) { e.SplitMode = "shares" }, ErrInvalidSplitMode},
		{"no splits", func(e *Expense) { e.Splits = nil }, ErrNoSplits},
		{"sum mismatch", func(e *Expense) { e.Splits[0].Amount = php(333) }, ErrSplitMismatch},
		{"duplicate user", func(e *Expense) { e.Splits[2].UserID = "bob" }, ErrDuplicateSplit},
		{"percentage on equal split", func(e *Expense) { e.Splits[0].Percentage = &bp }, ErrSplitFields},
		{"items on equal split", func(e *Expense) { e.Splits[0].ItemIDs = []string{"i1"} }, ErrSplitFields},
		{"line items on equal split", func(e *Expense) {
			e.Items = []ExpenseItem{{ID: "i1", Name: "Sisig", Total: php(1000)}}
		}, ErrItemsNotAllowed},
		{"percentage split missing percentages", func(e *Expense) { e.SplitMode = SplitPercentage }, ErrSplitFields},
		{"item split", func(e *Expense) {
			e.SplitMode = SplitItem
			e.Items = []ExpenseItem{{ID: "i1", Name: "Lechon", Quantity: 1, UnitPrice: php(1000), Total: php(1000), AssignedTo: []string{"alice", "bob", "carol"}}}
		}, nil},
		{"unassigned item", func(e *Expense) {
			e.SplitMode = SplitItem
			e.Items = []ExpenseItem{{ID: "i1", Name: "Lechon", Total: php(1000)}}
		}, ErrInvalidItem},
		{"negative item", func(e *Expense) {
			e.SplitMode = SplitItem
			e.Items = []ExpenseItem{{ID: "i1", Name: "Discount", Total: php(-100), AssignedTo: []string{"alice"}}}
		}, ErrInvalidItem},
		{"item assigned to outsider", func(e *Expense) {
			e.SplitMode = SplitItem
			e.Items = []ExpenseItem{{ID: "i1", Name: "Lechon", Total: php(1000), AssignedTo: []string{"dave"}}}
		}, ErrInvalidItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExpense()
			tt.mutate(e)
			err := e.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpensePayer(t *testing.T) {
	e := validExpense()
	if got := e.Payer(); got != "alice" {
		t.Errorf("Payer() = %q, want creator", got)
	}
	e.PayerID = "bob"
	if got := e.Payer(); got != "bob" {
		t.Errorf("Payer() = %q, want bob", got)
	}
	if !e.Involves("carol") || e.Involves("dave") {
		t.Error("Involves() mismatch")
	}
}

func TestGroupRoles(t *testing.T) {
	g := &Group{
		ID:        "g1",
		Name:      "Roommates",
		CreatedBy: "alice",
		Members: []GroupMember{
			{GroupID: "g1", UserID: "alice", Role: RoleMember},
			{GroupID: "g1", UserID: "bob", Role: RoleMember},
		},
	}
	g.EnsureCreatorAdmin(1)

	if m, _ := g.Member("alice"); m.Role != RoleAdmin {
		t.Errorf("creator role = %s, want admin", m.Role)
	}
	if len(g.Members) != 2 {
		t.Errorf("expected creator membership not to be duplicated, got %d members", len(g.Members))
	}
	if g.IsAdmin("bob") {
		t.Error("bob should not be admin")
	}
	if !g.IsMember("bob") || g.IsMember("carol") {
		t.Error("IsMember() mismatch")
	}

	solo := &Group{ID: "g2", Name: "Solo", CreatedBy: "dave"}
	solo.EnsureCreatorAdmin(1)
	if len(solo.Members) != 1 || !solo.IsAdmin("dave") {
		t.Errorf("expected creator to be added as admin, got %+v", solo.Members)
	}
}

func TestGroupValidate(t *testing.T) {
	if err := (&Group{Name: ""}).Validate(); !errors.Is(err, ErrEmptyGroupName) {
		t.Errorf("expected ErrEmptyGroupName, got %v", err)
	}
	bad := &Group{Name: "x", Members: []GroupMember{{UserID: "a", Role: "owner"}}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUserValidate(t *testing.T) {
	tests := []struct {
		name string
		user User
		want error
	}{
		{"empty profile", User{ID: "u1"}, nil},
		{"valid contact", User{Email: "a@b.co", ContactNumber: "+63 917 123 4567", GCashNumber: "09171234567"}, nil},
		{"bad email", User{Email: "not-an-email"}, ErrInvalidEmail},
		{"bad phone", User{ContactNumber: "12345"}, ErrInvalidPhone},
		{"bad gcash", User{GCashNumber: "+1 555 123 4567"}, ErrInvalidPhone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.user.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
