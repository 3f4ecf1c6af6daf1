package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/opensplit/internal/models"
)

// GetUser retrieves a user profile by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, full_name, contact_number, bank_account_name, bank_account_number,
		       gcash_number, instapay_qr_url, profile_image_url, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.ContactNumber,
		&user.BankAccountName,
		&user.BankAccountNumber,
		&user.GCashNumber,
		&user.InstapayQRURL,
		&user.ProfileImageURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// UpsertUser inserts a profile or replaces the existing one. CreatedAt of
// an existing row is preserved.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().Unix()
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, full_name, contact_number, bank_account_name, bank_account_number,
		                   gcash_number, instapay_qr_url, profile_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			contact_number = excluded.contact_number,
			bank_account_name = excluded.bank_account_name,
			bank_account_number = excluded.bank_account_number,
			gcash_number = excluded.gcash_number,
			instapay_qr_url = excluded.instapay_qr_url,
			profile_image_url = excluded.profile_image_url,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.ContactNumber,
		user.BankAccountName,
		user.BankAccountNumber,
		user.GCashNumber,
		user.InstapayQRURL,
		user.ProfileImageURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}
