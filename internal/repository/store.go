package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the repositories over one database handle.
type Store struct {
	DB          *sql.DB
	Users       *UserRepo
	Rooms       *RoomRepo
	Members     *MemberRepo
	Settlements *SettlementRepo
	Tokens      *TokenRepo
}

// NewStore wires every repository to db. now stamps created/updated
// columns; pass nil for time.Now.
func NewStore(db *sql.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		DB:          db,
		Users:       &UserRepo{db: db, now: now},
		Rooms:       &RoomRepo{db: db, now: now},
		Members:     &MemberRepo{db: db, now: now},
		Settlements: &SettlementRepo{db: db},
		Tokens:      &TokenRepo{db: db, now: now},
	}
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
// Any error, including a failed commit, rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Reset deletes every row from every table.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"settlement_debits", "settlements", "room_members", "rooms", "refresh_tokens", "users"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(s int64) time.Time { return time.Unix(s, 0).UTC() }
