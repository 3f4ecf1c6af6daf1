package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/money"
)

const expenseColumns = `id, group_id, created_by, payer_id, description, notes, total_amount, currency,
	expense_date, receipt_url, ocr_text, split_mode, created_at, updated_at`

// SaveExpense inserts a new expense or replaces an existing one. The expense
// row, its items and its splits are written in a single transaction so
// readers never observe a partial split set.
func (s *SQLiteStore) SaveExpense(ctx context.Context, expense *models.Expense) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if insert {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (`+expenseColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			expense.ID, nullString(expense.GroupID), expense.CreatedBy, expense.PayerID,
			expense.Description, expense.Notes, expense.Total.Amount, expense.Total.Currency,
			expense.Date.Format(models.DateLayout), expense.ReceiptURL, expense.OCRText,
			string(expense.SplitMode), expense.CreatedAt, expense.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET payer_id = ?, description = ?, notes = ?, total_amount = ?, currency = ?,
			 expense_date = ?, receipt_url = ?, ocr_text = ?, split_mode = ?, updated_at = ?
			 WHERE id = ?`,
			expense.PayerID, expense.Description, expense.Notes, expense.Total.Amount, expense.Total.Currency,
			expense.Date.Format(models.DateLayout), expense.ReceiptURL, expense.OCRText,
			string(expense.SplitMode), expense.UpdatedAt, expense.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if err := expectAffected(res, "expense", expense.ID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, "SELECT created_at FROM expenses WHERE id = ?", expense.ID).Scan(&expense.CreatedAt); err != nil {
			return fmt.Errorf("failed to read expense: %w", err)
		}

		// Items cascade to their assignments.
		if _, err := tx.ExecContext(ctx, "DELETE FROM expense_items WHERE expense_id = ?", expense.ID); err != nil {
			return fmt.Errorf("failed to clear items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
			return fmt.Errorf("failed to clear splits: %w", err)
		}
	}

	for i := range expense.Items {
		item := &expense.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_items (id, expense_id, position, name, quantity, unit_price, total) VALUES (?, ?, ?, ?, ?, ?, ?)",
			item.ID, expense.ID, i, item.Name, item.Quantity, item.UnitPrice.Amount, item.Total.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		for j, userID := range item.AssignedTo {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO item_assignments (item_id, user_id, position) VALUES (?, ?, ?)",
				item.ID, userID, j,
			)
			if err != nil {
				return fmt.Errorf("failed to insert item assignment: %w", err)
			}
		}
	}

	for i, split := range expense.Splits {
		var pct any
		if split.Percentage != nil {
			pct = *split.Percentage
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, user_id, position, amount, percentage_bp) VALUES (?, ?, ?, ?, ?)",
			expense.ID, split.UserID, i, split.Amount.Amount, pct,
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

// GetExpense retrieves an expense by ID, including items and splits.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := scanExpense(s.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	if err := s.loadExpenseDetails(ctx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// LoadExpenses retrieves all expenses of a group, most recent first.
func (s *SQLiteStore) LoadExpenses(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? ORDER BY expense_date DESC, created_at DESC, id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	rows.Close()

	for _, expense := range expenses {
		if err := s.loadExpenseDetails(ctx, expense); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// DeleteExpense removes an expense. Items and splits cascade.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return expectAffected(res, "expense", expenseID)
}

// CountExpenses returns how many expenses a group has.
func (s *SQLiteStore) CountExpenses(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses WHERE group_id = ?", groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count expenses: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		e        models.Expense
		groupID  sql.NullString
		amount   int64
		currency string
		date     string
		mode     string
	)
	err := row.Scan(&e.ID, &groupID, &e.CreatedBy, &e.PayerID, &e.Description, &e.Notes,
		&amount, &currency, &date, &e.ReceiptURL, &e.OCRText, &mode, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.GroupID = groupID.String
	e.Total = money.New(amount, currency)
	e.SplitMode = models.SplitMode(mode)
	if e.Date, err = time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid expense date %q: %w", date, err)
	}
	return &e, nil
}

// loadExpenseDetails fills in items and splits. For item splits, each
// split's ItemIDs are rebuilt from the item assignments.
func (s *SQLiteStore) loadExpenseDetails(ctx context.Context, e *models.Expense) error {
	currency := e.Total.Currency

	itemRows, err := s.db.QueryContext(ctx,
		"SELECT id, name, quantity, unit_price, total FROM expense_items WHERE expense_id = ? ORDER BY position",
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get items: %w", err)
	}
	for itemRows.Next() {
		var (
			item             models.ExpenseItem
			unitPrice, total int64
		)
		if err := itemRows.Scan(&item.ID, &item.Name, &item.Quantity, &unitPrice, &total); err != nil {
			itemRows.Close()
			return fmt.Errorf("failed to scan item: %w", err)
		}
		item.UnitPrice = money.New(unitPrice, currency)
		item.Total = money.New(total, currency)
		e.Items = append(e.Items, item)
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate items: %w", err)
	}

	for i := range e.Items {
		item := &e.Items[i]
		assignRows, err := s.db.QueryContext(ctx,
			"SELECT user_id FROM item_assignments WHERE item_id = ? ORDER BY position",
			item.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to get item assignments: %w", err)
		}
		for assignRows.Next() {
			var userID string
			if err := assignRows.Scan(&userID); err != nil {
				assignRows.Close()
				return fmt.Errorf("failed to scan assignment: %w", err)
			}
			item.AssignedTo = append(item.AssignedTo, userID)
		}
		assignRows.Close()
		if err := assignRows.Err(); err != nil {
			return fmt.Errorf("failed to iterate assignments: %w", err)
		}
	}

	splitRows, err := s.db.QueryContext(ctx,
		"SELECT user_id, amount, percentage_bp FROM expense_splits WHERE expense_id = ? ORDER BY position",
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get splits: %w", err)
	}
	defer splitRows.Close()
	for splitRows.Next() {
		var (
			split  models.ExpenseSplit
			amount int64
			pct    sql.NullInt64
		)
		if err := splitRows.Scan(&split.UserID, &amount, &pct); err != nil {
			return fmt.Errorf("failed to scan split: %w", err)
		}
		split.Amount = money.New(amount, currency)
		if pct.Valid {
			bp := pct.Int64
			split.Percentage = &bp
		}
		e.Splits = append(e.Splits, split)
	}
	if err := splitRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate splits: %w", err)
	}

	if e.SplitMode == models.SplitItem {
		models.LinkSplitItems(e)
	}
	return nil
}
