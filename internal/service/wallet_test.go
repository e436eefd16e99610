package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/ridesplit/internal/fare"
)

func TestWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "jihoon", 9000)

	tests := []struct {
		name    string
		op      func() (int, error)
		want    int
		wantErr error
	}{
		{"zero deposit", func() (int, error) { return h.svc.Wallet.Deposit(ctx, "jihoon", 0) }, 0, ErrInvalidAmount},
		{"deposit above limit", func() (int, error) { return h.svc.Wallet.Deposit(ctx, "jihoon", fare.MaxDeposit+1) }, 0, ErrInvalidAmount},
		{"deposit", func() (int, error) { return h.svc.Wallet.Deposit(ctx, "jihoon", 1000) }, 10000, nil},
		{"deposit limit", func() (int, error) { return h.svc.Wallet.Deposit(ctx, "jihoon", fare.MaxDeposit) }, 1010000, nil},
		{"zero withdrawal", func() (int, error) { return h.svc.Wallet.Withdraw(ctx, "jihoon", 0) }, 0, ErrInvalidAmount},
		{"overdraw", func() (int, error) { return h.svc.Wallet.Withdraw(ctx, "jihoon", 1010001) }, 0, ErrInsufficientBalance},
		{"withdraw all", func() (int, error) { return h.svc.Wallet.Withdraw(ctx, "jihoon", 1010000) }, 0, nil},
		{"unknown user", func() (int, error) { return h.svc.Wallet.Deposit(ctx, "ghost", 10) }, 0, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("balance = %d, want %d", got, tt.want)
			}
		})
	}
	if b := h.balance(t, "jihoon"); b != 0 {
		t.Errorf("final balance = %d", b)
	}
}

func TestWithdrawShortfall(t *testing.T) {
	h := newHarness(t)
	h.user(t, "yujin", 500)
	_, err := h.svc.Wallet.Withdraw(context.Background(), "yujin", 800)
	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) || ib.Balance != 500 || ib.Shortfall != 300 {
		t.Fatalf("err = %v", err)
	}
}
