package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ridesplit/internal/model"
)

type SettlementRepo struct {
	db *sql.DB
}

// CreateTx stores the settlement header and its debits.
func (r *SettlementRepo) CreateTx(ctx context.Context, tx *sql.Tx, s model.Settlement) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settlements (room_id, estimated_cost, actual_total, cost_per_person, variance_bp, settled_at)
		 VALUES (?,?,?,?,?,?)`,
		s.RoomID, s.EstimatedCost, s.ActualTotal, s.CostPerPerson, s.VarianceBP, unix(s.SettledAt))
	if isDuplicateKey(err) {
		return ErrSettlementExists
	}
	if err != nil {
		return err
	}
	for _, d := range s.Debits {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO settlement_debits (room_id, user_id, amount, balance_after) VALUES (?,?,?,?)",
			s.RoomID, d.UserID, d.Amount, d.BalanceAfter); err != nil {
			return err
		}
	}
	return nil
}

func (r *SettlementRepo) Get(ctx context.Context, roomID string) (model.Settlement, error) {
	return getSettlement(ctx, r.db, roomID)
}

func (r *SettlementRepo) GetTx(ctx context.Context, tx *sql.Tx, roomID string) (model.Settlement, error) {
	return getSettlement(ctx, tx, roomID)
}

func getSettlement(ctx context.Context, q querier, roomID string) (model.Settlement, error) {
	var s model.Settlement
	var settled int64
	err := q.QueryRowContext(ctx,
		`SELECT room_id, estimated_cost, actual_total, cost_per_person, variance_bp, settled_at
		 FROM settlements WHERE room_id=?`, roomID).
		Scan(&s.RoomID, &s.EstimatedCost, &s.ActualTotal, &s.CostPerPerson, &s.VarianceBP, &settled)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settlement{}, ErrSettlementNotFound
	}
	if err != nil {
		return model.Settlement{}, err
	}
	s.SettledAt = fromUnix(settled)

	rows, err := q.QueryContext(ctx,
		"SELECT user_id, amount, balance_after FROM settlement_debits WHERE room_id=? ORDER BY user_id", roomID)
	if err != nil {
		return model.Settlement{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d model.SettlementDebit
		if err := rows.Scan(&d.UserID, &d.Amount, &d.BalanceAfter); err != nil {
			return model.Settlement{}, err
		}
		s.Debits = append(s.Debits, d)
	}
	return s, rows.Err()
}
