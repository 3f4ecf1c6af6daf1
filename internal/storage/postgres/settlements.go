package postgres

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

type settlementRow struct {
	ID         string         `db:"id"`
	GroupID    string         `db:"group_id"`
	FromUserID string         `db:"from_user_id"`
	ToUserID   string         `db:"to_user_id"`
	Amount     int64          `db:"amount"`
	Currency   string         `db:"currency"`
	CreatedAt  int64          `db:"created_at"`
	CreatedBy  string         `db:"created_by"`
	Note       sql.NullString `db:"note"`
}

func (r settlementRow) model() *models.Settlement {
	return &models.Settlement{
		ID:         r.ID,
		GroupID:    r.GroupID,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		Amount:     money.New(r.Amount, r.Currency),
		CreatedAt:  r.CreatedAt,
		CreatedBy:  r.CreatedBy,
		Note:       r.Note.String,
	}
}

// CreateSettlement persists a new settlement.
func (s *PostgresStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, currency, created_at, created_by, note)
		 VALUES (:id, :group_id, :from_user_id, :to_user_id, :amount, :currency, :created_at, :created_by, :note)`,
		settlementRow{
			ID:         settlement.ID,
			GroupID:    settlement.GroupID,
			FromUserID: settlement.FromUserID,
			ToUserID:   settlement.ToUserID,
			Amount:     settlement.Amount.Amount,
			Currency:   settlement.Amount.Currency,
			CreatedAt:  settlement.CreatedAt,
			CreatedBy:  settlement.CreatedBy,
			Note:       nullString(settlement.Note),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// GetSettlement retrieves a settlement by ID.
func (s *PostgresStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	var row settlementRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM settlements WHERE id = $1`, settlementID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("settlement", settlementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return row.model(), nil
}

// ListSettlementsByGroup retrieves a group's settlements, newest first.
func (s *PostgresStore) ListSettlementsByGroup(ctx context.Context, groupID string) ([]*models.Settlement, error) {
	var rows []settlementRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM settlements WHERE group_id = $1 ORDER BY created_at DESC, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by group: %w", err)
	}
	var settlements []*models.Settlement
	for _, r := range rows {
		settlements = append(settlements, r.model())
	}
	return settlements, nil
}

// DeleteSettlement removes a settlement by ID.
func (s *PostgresStore) DeleteSettlement(ctx context.Context, settlementID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM settlements WHERE id = $1`, settlementID)
	if err != nil {
		return fmt.Errorf("failed to delete settlement: %w", err)
	}
	return expectAffected(res, "settlement", settlementID)
}
