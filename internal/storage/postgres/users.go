package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/opensplit/internal/models"
)

type userRow struct {
	ID                string `db:"id"`
	Email             string `db:"email"`
	FullName          string `db:"full_name"`
	ContactNumber     string `db:"contact_number"`
	BankAccountName   string `db:"bank_account_name"`
	BankAccountNumber string `db:"bank_account_number"`
	GCashNumber       string `db:"gcash_number"`
	InstapayQRURL     string `db:"instapay_qr_url"`
	ProfileImageURL   string `db:"profile_image_url"`
	CreatedAt         int64  `db:"created_at"`
	UpdatedAt         int64  `db:"updated_at"`
}

// GetUser retrieves a user profile by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &models.User{
		ID:                row.ID,
		Email:             row.Email,
		FullName:          row.FullName,
		ContactNumber:     row.ContactNumber,
		BankAccountName:   row.BankAccountName,
		BankAccountNumber: row.BankAccountNumber,
		GCashNumber:       row.GCashNumber,
		InstapayQRURL:     row.InstapayQRURL,
		ProfileImageURL:   row.ProfileImageURL,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

// UpsertUser inserts or replaces a profile, keeping the original created_at.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().Unix()
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO users (id, email, full_name, contact_number, bank_account_name, bank_account_number,
		                    gcash_number, instapay_qr_url, profile_image_url, created_at, updated_at)
		 VALUES (:id, :email, :full_name, :contact_number, :bank_account_name, :bank_account_number,
		         :gcash_number, :instapay_qr_url, :profile_image_url, :created_at, :updated_at)
		 ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			contact_number = EXCLUDED.contact_number,
			bank_account_name = EXCLUDED.bank_account_name,
			bank_account_number = EXCLUDED.bank_account_number,
			gcash_number = EXCLUDED.gcash_number,
			instapay_qr_url = EXCLUDED.instapay_qr_url,
			profile_image_url = EXCLUDED.profile_image_url,
			updated_at = EXCLUDED.updated_at`,
		userRow{
			ID:                user.ID,
			Email:             user.Email,
			FullName:          user.FullName,
			ContactNumber:     user.ContactNumber,
			BankAccountName:   user.BankAccountName,
			BankAccountNumber: user.BankAccountNumber,
			GCashNumber:       user.GCashNumber,
			InstapayQRURL:     user.InstapayQRURL,
			ProfileImageURL:   user.ProfileImageURL,
			CreatedAt:         user.CreatedAt,
			UpdatedAt:         user.UpdatedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
