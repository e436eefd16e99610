package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/ridesplit/internal/fare"
	"github.com/iliyamo/ridesplit/internal/metrics"
	"github.com/iliyamo/ridesplit/internal/repository"
)

// Wallet moves money in and out of a user's balance.
type Wallet struct {
	base
}

// Deposit credits amount, which must be between 1 and fare.MaxDeposit.
func (w *Wallet) Deposit(ctx context.Context, userID string, amount int) (int, error) {
	if amount < 1 || amount > fare.MaxDeposit {
		return 0, fmt.Errorf("%w: deposit must be between 1 and %d", ErrInvalidAmount, fare.MaxDeposit)
	}
	var balance int
	err := w.tx(ctx, "deposit", func(tx *sql.Tx) error {
		var err error
		balance, err = w.store.Users.CreditTx(ctx, tx, userID, amount)
		return notFound(err, "user", userID)
	})
	metrics.RoomOp("deposit", kindOf(err))
	if err != nil {
		return 0, err
	}
	w.log.Info("deposit", "user_id", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// Withdraw debits amount. The balance never goes below zero.
func (w *Wallet) Withdraw(ctx context.Context, userID string, amount int) (int, error) {
	if amount < 1 {
		return 0, fmt.Errorf("%w: withdrawal must be at least 1", ErrInvalidAmount)
	}
	var balance int
	err := w.tx(ctx, "withdraw", func(tx *sql.Tx) error {
		var err error
		balance, err = w.store.Users.DebitTx(ctx, tx, userID, amount)
		if errors.Is(err, repository.ErrInsufficientFunds) {
			u, gerr := w.store.Users.GetTx(ctx, tx, userID)
			if gerr != nil {
				return gerr
			}
			return &InsufficientBalanceError{UserID: userID, Balance: u.Balance, Required: amount, Shortfall: amount - u.Balance}
		}
		return notFound(err, "user", userID)
	})
	metrics.RoomOp("withdraw", kindOf(err))
	if err != nil {
		return 0, err
	}
	w.log.Info("withdraw", "user_id", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// Balance returns the stored balance.
func (w *Wallet) Balance(ctx context.Context, userID string) (int, error) {
	u, err := w.store.Users.Get(ctx, userID)
	if err != nil {
		return 0, classify("balance", notFound(err, "user", userID))
	}
	return u.Balance, nil
}
