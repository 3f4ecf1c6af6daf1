package api

// Expense is one purchase divided among participants.
type Expense struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id,omitempty"`
	CreatedBy   string `json:"created_by"`
	PayerID     string `json:"payer_id"`
	Description string `json:"description"`
	Notes       string `json:"notes,omitempty"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
	Date        string `json:"date"`
	ReceiptURL  string `json:"receipt_url,omitempty"`
	OCRText     string `json:"ocr_text,omitempty"`
	SplitMode   string `json:"split_mode"`

	Items  []*ExpenseItem  `json:"items,omitempty"`
	Splits []*ExpenseSplit `json:"splits"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// ExpenseItem is a receipt line. Quantity defaults to 1 and Total to
// UnitPrice times Quantity when left zero.
type ExpenseItem struct {
	ID         string   `json:"id,omitempty"`
	Name       string   `json:"name"`
	Quantity   int64    `json:"quantity,omitempty"`
	UnitPrice  int64    `json:"unit_price,omitempty"`
	Total      int64    `json:"total"`
	AssignedTo []string `json:"assigned_to,omitempty"`
}

// ExpenseSplit is one participant's share.
type ExpenseSplit struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	// Percentage is in basis points (3333 = 33.33%), percentage splits only.
	Percentage *int64   `json:"percentage,omitempty"`
	ItemIDs    []string `json:"item_ids,omitempty"`
}

// PercentShare requests a percentage of the total. Percent is a decimal
// string with at most two places ("33.33").
type PercentShare struct {
	UserID  string `json:"user_id"`
	Percent string `json:"percent"`
}

// AmountShare requests a fixed amount.
type AmountShare struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// SplitInput describes how to divide a total. Only the fields of the
// selected mode may be set:
//
//   - equal: ParticipantIDs
//   - percentage: Percentages
//   - amount: Amounts
//   - item: Items, optionally ParticipantIDs to include members without items
type SplitInput struct {
	SplitMode      string          `json:"split_mode"`
	ParticipantIDs []string        `json:"participant_ids,omitempty"`
	Percentages    []*PercentShare `json:"percentages,omitempty"`
	Amounts        []*AmountShare  `json:"amounts,omitempty"`
	Items          []*ExpenseItem  `json:"items,omitempty"`
}

type CalculateSplitRequest struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency,omitempty"`
	SplitInput
}

type CalculateSplitResponse struct {
	Currency string          `json:"currency"`
	Splits   []*ExpenseSplit `json:"splits"`
	// ItemsSubtotal and Adjustment are set for item splits: Adjustment is
	// the tax, service charge or discount spread over the items.
	ItemsSubtotal int64 `json:"items_subtotal,omitempty"`
	Adjustment    int64 `json:"adjustment,omitempty"`
}

// ExpenseInput holds the fields shared by create and update.
type ExpenseInput struct {
	// PayerID defaults to the creator.
	PayerID     string `json:"payer_id,omitempty"`
	Description string `json:"description"`
	Notes       string `json:"notes,omitempty"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency,omitempty"`
	// Date defaults to today.
	Date       string `json:"date,omitempty"`
	ReceiptURL string `json:"receipt_url,omitempty"`
	OCRText    string `json:"ocr_text,omitempty"`
	SplitInput
}

type CreateExpenseRequest struct {
	// GroupID is empty for personal expenses.
	GroupID string `json:"group_id,omitempty"`
	ExpenseInput
}

type CreateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type GetExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type UpdateExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
	ExpenseInput
}

type UpdateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

type ScanReceiptRequest struct {
	Filename string `json:"filename"`
	// Image is the raw photo, base64 in JSON.
	Image []byte `json:"image"`
}

type ScanReceiptResponse struct {
	MerchantName string         `json:"merchant_name,omitempty"`
	Currency     string         `json:"currency"`
	Items        []*ExpenseItem `json:"items"`
	Subtotal     int64          `json:"subtotal,omitempty"`
	Tax          int64          `json:"tax,omitempty"`
	Total        int64          `json:"total"`
	Date         string         `json:"date,omitempty"`
	OCRText      string         `json:"ocr_text,omitempty"`
}
