package repository

import (
	"context"
	"fmt"
	"math"

	"blocklotto/domain/entities"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// AccountTransferer credits payout accounts out of lottery escrow. Each
// transfer runs under a savepoint so a failed credit leaves no partial writes
// while the surrounding transaction can still record the failure.
type AccountTransferer struct {
	q Queryable
}

// newAccountTransferer creates a transferer bound to a transaction
func newAccountTransferer(tx Queryable) *AccountTransferer {
	return &AccountTransferer{q: tx}
}

// Transfer credits req.Amount to req.Recipient and records an account entry
func (t *AccountTransferer) Transfer(ctx context.Context, req entities.TransferRequest) (err error) {
	if req.Amount < 0 {
		return fmt.Errorf("transfer amount must not be negative, got %d", req.Amount)
	}

	sp, err := t.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open transfer savepoint: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := sp.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.WithError(rbErr).Warn("Failed to roll back transfer savepoint")
			}
		}
	}()

	accounts := newAccountRepository(sp)
	entries := newAccountEntryRepository(sp)

	account, err := accounts.GetByOwnerForUpdate(ctx, req.Recipient)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: %s", entities.ErrAccountNotFound, req.Recipient)
	}
	if err = account.CanReceive(); err != nil {
		return fmt.Errorf("%w: %s", err, req.Recipient)
	}
	if req.Amount > math.MaxInt64-account.Balance {
		return fmt.Errorf("crediting %d would overflow balance of %s", req.Amount, req.Recipient)
	}

	newBalance := account.Balance + req.Amount
	if err = accounts.UpdateBalance(ctx, req.Recipient, newBalance); err != nil {
		return err
	}

	entry := &entities.AccountEntry{
		Owner:         req.Recipient,
		LotteryID:     req.LotteryID,
		BalanceBefore: account.Balance,
		BalanceAfter:  newBalance,
		ChangeAmount:  req.Amount,
		EntryType:     req.EntryType,
		Metadata:      req.Metadata,
	}
	if err = entries.Record(ctx, entry); err != nil {
		return err
	}

	if err = sp.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release transfer savepoint: %w", err)
	}

	log.WithFields(log.Fields{
		"recipient":  req.Recipient,
		"amount":     req.Amount,
		"lottery_id": req.LotteryID,
		"entry_type": req.EntryType,
	}).Debug("Credited payout account")

	return nil
}
