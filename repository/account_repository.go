package repository

import (
	"context"
	"fmt"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements payout account data access
type AccountRepository struct {
	q Queryable
}

// NewAccountRepository creates a new account repository over the pool
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepository creates a new account repository with a transaction
func newAccountRepository(tx Queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

// GetByOwner retrieves an account by owner
func (r *AccountRepository) GetByOwner(ctx context.Context, owner string) (*entities.Account, error) {
	return r.get(ctx, owner, false)
}

// GetByOwnerForUpdate retrieves an account by owner with row lock for update
func (r *AccountRepository) GetByOwnerForUpdate(ctx context.Context, owner string) (*entities.Account, error) {
	return r.get(ctx, owner, true)
}

func (r *AccountRepository) get(ctx context.Context, owner string, forUpdate bool) (*entities.Account, error) {
	query := `
		SELECT owner, balance, frozen, created_at, updated_at
		FROM accounts
		WHERE owner = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var account entities.Account
	err := r.q.QueryRow(ctx, query, owner).Scan(
		&account.Owner,
		&account.Balance,
		&account.Frozen,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", owner, err)
	}

	return &account, nil
}

// Open creates the account if it does not exist and returns it
func (r *AccountRepository) Open(ctx context.Context, owner string) (*entities.Account, error) {
	query := `
		INSERT INTO accounts (owner, balance)
		VALUES ($1, 0)
		ON CONFLICT (owner) DO UPDATE SET owner = EXCLUDED.owner
		RETURNING owner, balance, frozen, created_at, updated_at
	`

	var account entities.Account
	err := r.q.QueryRow(ctx, query, owner).Scan(
		&account.Owner,
		&account.Balance,
		&account.Frozen,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open account %s: %w", owner, err)
	}

	return &account, nil
}

// UpdateBalance sets the account balance
func (r *AccountRepository) UpdateBalance(ctx context.Context, owner string, newBalance int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE owner = $1`, owner, newBalance)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s: %w", owner, err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrAccountNotFound
	}
	return nil
}

// SetFrozen freezes or unfreezes an account
func (r *AccountRepository) SetFrozen(ctx context.Context, owner string, frozen bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE accounts SET frozen = $2, updated_at = NOW() WHERE owner = $1`, owner, frozen)
	if err != nil {
		return fmt.Errorf("failed to set frozen=%t for %s: %w", frozen, owner, err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrAccountNotFound
	}
	return nil
}
