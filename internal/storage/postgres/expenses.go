package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

type expenseRow struct {
	ID          string         `db:"id"`
	GroupID     sql.NullString `db:"group_id"`
	CreatedBy   string         `db:"created_by"`
	PayerID     string         `db:"payer_id"`
	Description string         `db:"description"`
	Notes       string         `db:"notes"`
	TotalAmount int64          `db:"total_amount"`
	Currency    string         `db:"currency"`
	ExpenseDate time.Time      `db:"expense_date"`
	ReceiptURL  string         `db:"receipt_url"`
	OCRText     string         `db:"ocr_text"`
	SplitMode   string         `db:"split_mode"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
}

type itemRow struct {
	ID        string `db:"id"`
	ExpenseID string `db:"expense_id"`
	Position  int    `db:"position"`
	Name      string `db:"name"`
	Quantity  int64  `db:"quantity"`
	UnitPrice int64  `db:"unit_price"`
	Total     int64  `db:"total"`
}

type assignmentRow struct {
	ItemID   string `db:"item_id"`
	UserID   string `db:"user_id"`
	Position int    `db:"position"`
}

type splitRow struct {
	ExpenseID    string        `db:"expense_id"`
	UserID       string        `db:"user_id"`
	Position     int           `db:"position"`
	Amount       int64         `db:"amount"`
	PercentageBP sql.NullInt64 `db:"percentage_bp"`
}

func (r expenseRow) model() *models.Expense {
	return &models.Expense{
		ID:          r.ID,
		GroupID:     r.GroupID.String,
		CreatedBy:   r.CreatedBy,
		PayerID:     r.PayerID,
		Description: r.Description,
		Notes:       r.Notes,
		Total:       money.New(r.TotalAmount, r.Currency),
		Date:        time.Date(r.ExpenseDate.Year(), r.ExpenseDate.Month(), r.ExpenseDate.Day(), 0, 0, 0, 0, time.UTC),
		ReceiptURL:  r.ReceiptURL,
		OCRText:     r.OCRText,
		SplitMode:   models.SplitMode(r.SplitMode),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// SaveExpense inserts or replaces an expense together with its items and
// splits in one transaction.
func (s *PostgresStore) SaveExpense(ctx context.Context, expense *models.Expense) error {
	now := time.Now().Unix()
	insert := expense.ID == ""
	if insert {
		expense.ID = uuid.New().String()
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}
	date := expense.Date.Format(models.DateLayout)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if insert {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (id, group_id, created_by, payer_id, description, notes, total_amount, currency,
			                       expense_date, receipt_url, ocr_text, split_mode, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			expense.ID, nullString(expense.GroupID), expense.CreatedBy, expense.PayerID,
			expense.Description, expense.Notes, expense.Total.Amount, expense.Total.Currency,
			date, expense.ReceiptURL, expense.OCRText, string(expense.SplitMode),
			expense.CreatedAt, expense.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
	} else {
		// RETURNING doubles as the existence check.
		err = tx.GetContext(ctx, &expense.CreatedAt,
			`UPDATE expenses SET payer_id = $1, description = $2, notes = $3, total_amount = $4, currency = $5,
			        expense_date = $6, receipt_url = $7, ocr_text = $8, split_mode = $9, updated_at = $10
			 WHERE id = $11
			 RETURNING created_at`,
			expense.PayerID, expense.Description, expense.Notes, expense.Total.Amount, expense.Total.Currency,
			date, expense.ReceiptURL, expense.OCRText, string(expense.SplitMode), expense.UpdatedAt, expense.ID,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("expense", expense.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM expense_items WHERE expense_id = $1`, expense.ID); err != nil {
			return fmt.Errorf("failed to clear items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = $1`, expense.ID); err != nil {
			return fmt.Errorf("failed to clear splits: %w", err)
		}
	}

	for i := range expense.Items {
		item := &expense.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO expense_items (id, expense_id, position, name, quantity, unit_price, total)
			 VALUES (:id, :expense_id, :position, :name, :quantity, :unit_price, :total)`,
			itemRow{
				ID:        item.ID,
				ExpenseID: expense.ID,
				Position:  i,
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.Amount,
				Total:     item.Total.Amount,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		for j, userID := range item.AssignedTo {
			_, err = tx.NamedExecContext(ctx,
				`INSERT INTO item_assignments (item_id, user_id, position) VALUES (:item_id, :user_id, :position)`,
				assignmentRow{ItemID: item.ID, UserID: userID, Position: j},
			)
			if err != nil {
				return fmt.Errorf("failed to insert item assignment: %w", err)
			}
		}
	}

	for i, split := range expense.Splits {
		row := splitRow{ExpenseID: expense.ID, UserID: split.UserID, Position: i, Amount: split.Amount.Amount}
		if split.Percentage != nil {
			row.PercentageBP = sql.NullInt64{Int64: *split.Percentage, Valid: true}
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, position, amount, percentage_bp)
			 VALUES (:expense_id, :user_id, :position, :amount, :percentage_bp)`,
			row,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense with its items and splits.
func (s *PostgresStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	var row expenseRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM expenses WHERE id = $1`, expenseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expenses := []*models.Expense{row.model()}
	if err := s.loadDetails(ctx, expenses); err != nil {
		return nil, err
	}
	return expenses[0], nil
}

// LoadExpenses retrieves a group's expenses, most recent first.
func (s *PostgresStore) LoadExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	var rows []expenseRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM expenses WHERE group_id = $1 ORDER BY expense_date DESC, created_at DESC, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	expenses := make([]*models.Expense, len(rows))
	for i, r := range rows {
		expenses[i] = r.model()
	}
	if err := s.loadDetails(ctx, expenses); err != nil {
		return nil, err
	}
	return expenses, nil
}

// DeleteExpense removes an expense; items and splits cascade.
func (s *PostgresStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return expectAffected(res, "expense", expenseID)
}

// CountExpenses returns how many expenses a group has.
func (s *PostgresStore) CountExpenses(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM expenses WHERE group_id = $1`, groupID); err != nil {
		return 0, fmt.Errorf("failed to count expenses: %w", err)
	}
	return n, nil
}

// loadDetails fetches items, assignments and splits for all expenses in
// three queries.
func (s *PostgresStore) loadDetails(ctx context.Context, expenses []*models.Expense) error {
	byID := make(map[string]*models.Expense, len(expenses))
	ids := make([]string, len(expenses))
	for i, e := range expenses {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	var items []itemRow
	if err := s.selectIn(ctx, &items,
		`SELECT * FROM expense_items WHERE expense_id IN (?) ORDER BY expense_id, position`, ids); err != nil {
		return fmt.Errorf("failed to get items: %w", err)
	}
	itemIDs := make([]string, len(items))
	for i, r := range items {
		e := byID[r.ExpenseID]
		e.Items = append(e.Items, models.ExpenseItem{
			ID:        r.ID,
			Name:      r.Name,
			Quantity:  r.Quantity,
			UnitPrice: money.New(r.UnitPrice, e.Total.Currency),
			Total:     money.New(r.Total, e.Total.Currency),
		})
		itemIDs[i] = r.ID
	}

	if len(itemIDs) > 0 {
		var assignments []assignmentRow
		if err := s.selectIn(ctx, &assignments,
			`SELECT * FROM item_assignments WHERE item_id IN (?) ORDER BY item_id, position`, itemIDs); err != nil {
			return fmt.Errorf("failed to get item assignments: %w", err)
		}
		assigned := make(map[string][]string)
		for _, a := range assignments {
			assigned[a.ItemID] = append(assigned[a.ItemID], a.UserID)
		}
		for _, e := range expenses {
			for i := range e.Items {
				e.Items[i].AssignedTo = assigned[e.Items[i].ID]
			}
		}
	}

	var splits []splitRow
	if err := s.selectIn(ctx, &splits,
		`SELECT * FROM expense_splits WHERE expense_id IN (?) ORDER BY expense_id, position`, ids); err != nil {
		return fmt.Errorf("failed to get splits: %w", err)
	}
	for _, r := range splits {
		e := byID[r.ExpenseID]
		split := models.ExpenseSplit{UserID: r.UserID, Amount: money.New(r.Amount, e.Total.Currency)}
		if r.PercentageBP.Valid {
			bp := r.PercentageBP.Int64
			split.Percentage = &bp
		}
		e.Splits = append(e.Splits, split)
	}

	for _, e := range expenses {
		if e.SplitMode == models.SplitItem {
			models.LinkSplitItems(e)
		}
	}
	return nil
}

func (s *PostgresStore) selectIn(ctx context.Context, dest any, query string, args ...any) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
}
