package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nnecfa/payments/internal/models"
)

// AccountStore is the narrow view of the user profile collaborator.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SetPaymentVerified(ctx context.Context, id string, at time.Time, by string) error
}

type PostgresAccountStore struct {
	db *sql.DB
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

func (s *PostgresAccountStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	var verifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(full_name, ''), COALESCE(phone_number, ''), payment_verified,
			verified_at, COALESCE(verified_by, ''), updated_at
		FROM profiles
		WHERE id = $1`, id).Scan(&account.ID, &account.FullName, &account.PhoneNumber,
		&account.PaymentVerified, &verifiedAt, &account.VerifiedBy, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if verifiedAt.Valid {
		account.VerifiedAt = &verifiedAt.Time
	}
	return &account, nil
}

// SetPaymentVerified flips the account flag. The first verification time is
// kept when the flag is re-applied.
func (s *PostgresAccountStore) SetPaymentVerified(ctx context.Context, id string, at time.Time, by string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET payment_verified = true, verified_at = COALESCE(verified_at, $1), verified_by = $2, updated_at = $1
		WHERE id = $3`, at, by, id)
	if err != nil {
		return fmt.Errorf("failed to set payment verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}
