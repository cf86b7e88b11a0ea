package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"blocklotto/database"
	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
)

// AccountEntryRepository implements the account credit history
type AccountEntryRepository struct {
	q Queryable
}

// NewAccountEntryRepository creates a new account entry repository over the pool
func NewAccountEntryRepository(db *database.DB) *AccountEntryRepository {
	return &AccountEntryRepository{q: db.Pool}
}

// newAccountEntryRepository creates a new account entry repository with a transaction
func newAccountEntryRepository(tx Queryable) *AccountEntryRepository {
	return &AccountEntryRepository{q: tx}
}

// Record creates a new account entry
func (r *AccountEntryRepository) Record(ctx context.Context, entry *entities.AccountEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}

	query := `
		INSERT INTO account_entries
		(owner, lottery_id, balance_before, balance_after, change_amount, entry_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.Owner,
		entry.LotteryID,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.ChangeAmount,
		string(entry.EntryType),
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record account entry for %s: %w", entry.Owner, err)
	}

	return nil
}

// GetByOwner returns the newest entries for an owner
func (r *AccountEntryRepository) GetByOwner(ctx context.Context, owner string, limit int) ([]*entities.AccountEntry, error) {
	query := `
		SELECT id, owner, lottery_id, balance_before, balance_after, change_amount,
		       entry_type, metadata, created_at
		FROM account_entries
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get account entries for %s: %w", owner, err)
	}
	return scanAccountEntries(rows)
}

// GetByLottery returns every entry paid out of a lottery, oldest first
func (r *AccountEntryRepository) GetByLottery(ctx context.Context, lotteryID int64) ([]*entities.AccountEntry, error) {
	query := `
		SELECT id, owner, lottery_id, balance_before, balance_after, change_amount,
		       entry_type, metadata, created_at
		FROM account_entries
		WHERE lottery_id = $1
		ORDER BY id ASC
	`

	rows, err := r.q.Query(ctx, query, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account entries for lottery %d: %w", lotteryID, err)
	}
	return scanAccountEntries(rows)
}

func scanAccountEntries(rows pgx.Rows) ([]*entities.AccountEntry, error) {
	defer rows.Close()

	var entries []*entities.AccountEntry
	for rows.Next() {
		var entry entities.AccountEntry
		var entryType string
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.Owner,
			&entry.LotteryID,
			&entry.BalanceBefore,
			&entry.BalanceAfter,
			&entry.ChangeAmount,
			&entryType,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account entry: %w", err)
		}
		entry.EntryType = entities.EntryType(entryType)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account entries: %w", err)
	}

	return entries, nil
}
