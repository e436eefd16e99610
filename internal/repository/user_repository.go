package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/utils"
)

type UserRepo struct {
	db  *sql.DB
	now func() time.Time
}

const userColumns = `user_id, password_hash, name, university, balance, current_latitude, current_longitude,
	location_known, is_location_active, role, created_at`

// Create hashes password and inserts u. u.ID is trimmed; an existing ID
// yields ErrUserExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	u.ID = strings.TrimSpace(u.ID)
	u.PasswordHash = hash
	if u.Role == "" {
		u.Role = model.RoleStudent
	}
	u.CreatedAt = r.now().UTC().Truncate(time.Second)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (user_id, password_hash, name, university, balance, role, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.PasswordHash, u.Name, u.University, u.Balance, u.Role, unix(u.CreatedAt))
	if isDuplicateKey(err) {
		return ErrUserExists
	}
	return err
}

func (r *UserRepo) Get(ctx context.Context, id string) (model.User, error) {
	return getUser(ctx, r.db, id)
}

func (r *UserRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (model.User, error) {
	return getUser(ctx, tx, id)
}

func getUser(ctx context.Context, q querier, id string) (model.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_id=?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	var created int64
	err := s.Scan(&u.ID, &u.PasswordHash, &u.Name, &u.University, &u.Balance, &u.Latitude, &u.Longitude,
		&u.LocationKnown, &u.IsLocationActive, &u.Role, &created)
	u.CreatedAt = fromUnix(created)
	return u, err
}

// CountByRole returns the number of users holding role.
func (r *UserRepo) CountByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role=?", role).Scan(&n)
	return n, err
}

// ListIDsByRole returns the IDs of every user holding role, ordered.
func (r *UserRepo) ListIDsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM users WHERE role=? ORDER BY user_id", role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetRoomTrackingTx switches location tracking on or off for every member
// of roomID. Switching off spares members still gathering in another room.
func (r *UserRepo) SetRoomTrackingTx(ctx context.Context, tx *sql.Tx, roomID string, active bool) (int64, error) {
	query := `UPDATE users SET is_location_active=?
		 WHERE user_id IN (SELECT user_id FROM room_members WHERE room_id=?)`
	args := []any{active, roomID}
	if !active {
		query += ` AND NOT EXISTS (SELECT 1 FROM room_members o JOIN rooms g ON g.room_id = o.room_id
			WHERE o.user_id = users.user_id AND o.room_id <> ? AND g.phase = ?)`
		args = append(args, roomID, string(model.PhaseGathering))
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseTrackingTx switches tracking off for a user leaving roomID unless
// they are gathering in another room.
func (r *UserRepo) ReleaseTrackingTx(ctx context.Context, tx *sql.Tx, id, roomID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET is_location_active=0
		WHERE user_id=? AND NOT EXISTS (SELECT 1 FROM room_members o JOIN rooms g ON g.room_id = o.room_id
			WHERE o.user_id = users.user_id AND o.room_id <> ? AND g.phase = ?)`,
		id, roomID, string(model.PhaseGathering))
	return err
}

// UpdateLocation stores a position only while tracking is active for the
// user. tracked is false when the write was skipped.
func (r *UserRepo) UpdateLocation(ctx context.Context, id string, lat, lon float64) (tracked bool, err error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET current_latitude=?, current_longitude=?, location_known=1
		 WHERE user_id=? AND is_location_active=1`,
		lat, lon, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// CreditTx adds amount to the balance and returns the new balance.
func (r *UserRepo) CreditTx(ctx context.Context, tx *sql.Tx, id string, amount int) (int, error) {
	res, err := tx.ExecContext(ctx, "UPDATE users SET balance=balance+? WHERE user_id=?", amount, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrUserNotFound
	}
	return balanceOf(ctx, tx, id)
}

// DebitTx subtracts amount only if the balance covers it, so the balance
// never goes negative. It returns ErrInsufficientFunds otherwise.
func (r *UserRepo) DebitTx(ctx context.Context, tx *sql.Tx, id string, amount int) (int, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET balance=balance-? WHERE user_id=? AND balance>=?", amount, id, amount)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if _, err := getUser(ctx, tx, id); err != nil {
			return 0, err
		}
		return 0, ErrInsufficientFunds
	}
	return balanceOf(ctx, tx, id)
}

func balanceOf(ctx context.Context, q querier, id string) (int, error) {
	var b int
	err := q.QueryRowContext(ctx, "SELECT balance FROM users WHERE user_id=?", id).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return b, err
}
