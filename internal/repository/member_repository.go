package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ridesplit/internal/model"
)

type MemberRepo struct {
	db  *sql.DB
	now func() time.Time
}

// AddTx inserts a member row. A second insert for the same pair returns
// ErrDuplicateMember.
func (r *MemberRepo) AddTx(ctx context.Context, tx *sql.Tx, roomID, userID string, ready bool) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO room_members (room_id, user_id, is_ready, joined_at) VALUES (?,?,?,?)",
		roomID, userID, ready, unix(r.now()))
	if isDuplicateKey(err) {
		return ErrDuplicateMember
	}
	return err
}

// RemoveTx deletes the member row or returns ErrMemberNotFound.
func (r *MemberRepo) RemoveTx(ctx context.Context, tx *sql.Tx, roomID, userID string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id=? AND user_id=?", roomID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepo) IsMemberTx(ctx context.Context, tx *sql.Tx, roomID, userID string) (bool, error) {
	return isMember(ctx, tx, roomID, userID)
}

func (r *MemberRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return isMember(ctx, r.db, roomID, userID)
}

func isMember(ctx context.Context, q querier, roomID, userID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM room_members WHERE room_id=? AND user_id=?", roomID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *MemberRepo) List(ctx context.Context, roomID string) ([]model.RoomMember, error) {
	return listMembers(ctx, r.db, roomID)
}

func (r *MemberRepo) ListTx(ctx context.Context, tx *sql.Tx, roomID string) ([]model.RoomMember, error) {
	return listMembers(ctx, tx, roomID)
}

func listMembers(ctx context.Context, q querier, roomID string) ([]model.RoomMember, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT room_id, user_id, is_ready, joined_at FROM room_members WHERE room_id=? ORDER BY joined_at, user_id", roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RoomMember
	for rows.Next() {
		var m model.RoomMember
		var joined int64
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.IsReady, &joined); err != nil {
			return nil, err
		}
		m.JoinedAt = fromUnix(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListDetailed joins each member with the user fields the gathering and
// room detail views need.
func (r *MemberRepo) ListDetailed(ctx context.Context, roomID string) ([]model.MemberDetail, error) {
	return listDetailed(ctx, r.db, roomID)
}

func (r *MemberRepo) ListDetailedTx(ctx context.Context, tx *sql.Tx, roomID string) ([]model.MemberDetail, error) {
	return listDetailed(ctx, tx, roomID)
}

func listDetailed(ctx context.Context, q querier, roomID string) ([]model.MemberDetail, error) {
	rows, err := q.QueryContext(ctx, `SELECT m.room_id, m.user_id, m.is_ready, m.joined_at,
			u.name, u.current_latitude, u.current_longitude, u.location_known, u.is_location_active
		FROM room_members m JOIN users u ON u.user_id = m.user_id
		WHERE m.room_id=? ORDER BY m.joined_at, m.user_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.MemberDetail
	for rows.Next() {
		var d model.MemberDetail
		var joined int64
		if err := rows.Scan(&d.RoomID, &d.UserID, &d.IsReady, &joined,
			&d.Name, &d.Location.Lat, &d.Location.Lon, &d.LocationKnown, &d.Tracking); err != nil {
			return nil, err
		}
		d.JoinedAt = fromUnix(joined)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ToggleReadyTx flips is_ready in place and returns the new value.
func (r *MemberRepo) ToggleReadyTx(ctx context.Context, tx *sql.Tx, roomID, userID string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE room_members SET is_ready = 1 - is_ready WHERE room_id=? AND user_id=?", roomID, userID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrMemberNotFound
	}
	var ready bool
	err = tx.QueryRowContext(ctx, "SELECT is_ready FROM room_members WHERE room_id=? AND user_id=?", roomID, userID).Scan(&ready)
	return ready, err
}

// SetReadyTx forces is_ready to ready.
func (r *MemberRepo) SetReadyTx(ctx context.Context, tx *sql.Tx, roomID, userID string, ready bool) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE room_members SET is_ready=? WHERE room_id=? AND user_id=?", ready, roomID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 affected rows when the value is unchanged
		ok, err := isMember(ctx, tx, roomID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMemberNotFound
		}
	}
	return nil
}
