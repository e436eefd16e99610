package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ridesplit/internal/model"
)

type RoomRepo struct {
	db  *sql.DB
	now func() time.Time
}

const roomColumns = `room_id, owner_id, start_location, start_latitude, start_longitude,
	end_location, end_latitude, end_longitude, current_members, max_members,
	estimated_cost, cost_per_person, status, phase, version, created_at, updated_at`

// CreateTx inserts room as given. Timestamps and version are set here.
func (r *RoomRepo) CreateTx(ctx context.Context, tx *sql.Tx, room *model.Room) error {
	now := r.now().UTC().Truncate(time.Second)
	room.CreatedAt, room.UpdatedAt, room.Version = now, now, 1
	if room.Status == "" {
		room.Status = model.StatusRecruiting
	}
	if room.Phase == "" {
		room.Phase = model.PhaseCreated
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO rooms (`+roomColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		room.ID, room.OwnerID, room.StartLocation, room.StartLat, room.StartLon,
		room.EndLocation, room.EndLat, room.EndLon, room.CurrentMembers, room.MaxMembers,
		room.EstimatedCost, room.CostPerPerson, string(room.Status), string(room.Phase), room.Version,
		unix(room.CreatedAt), unix(room.UpdatedAt))
	if isDuplicateKey(err) {
		return fmt.Errorf("room %s: %w", room.ID, err)
	}
	return err
}

func (r *RoomRepo) Get(ctx context.Context, id string) (model.Room, error) {
	return getRoom(ctx, r.db, id)
}

func (r *RoomRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (model.Room, error) {
	return getRoom(ctx, tx, id)
}

func getRoom(ctx context.Context, q querier, id string) (model.Room, error) {
	row := q.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE room_id=?", id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, ErrRoomNotFound
	}
	return room, err
}

func scanRoom(s rowScanner) (model.Room, error) {
	var (
		room             model.Room
		status, phase    string
		created, updated int64
	)
	err := s.Scan(&room.ID, &room.OwnerID, &room.StartLocation, &room.StartLat, &room.StartLon,
		&room.EndLocation, &room.EndLat, &room.EndLon, &room.CurrentMembers, &room.MaxMembers,
		&room.EstimatedCost, &room.CostPerPerson, &status, &phase, &room.Version, &created, &updated)
	if err != nil {
		return model.Room{}, err
	}
	if room.Status, err = model.ParseRoomStatus(status); err != nil {
		return model.Room{}, err
	}
	if room.Phase, err = model.ParsePhase(phase); err != nil {
		return model.Room{}, err
	}
	room.CreatedAt, room.UpdatedAt = fromUnix(created), fromUnix(updated)
	return room, nil
}

func (r *RoomRepo) list(ctx context.Context, where string, args ...any) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE "+where+" ORDER BY room_id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

// ListAvailable returns rooms heading to university that still recruit,
// ordered by room ID.
func (r *RoomRepo) ListAvailable(ctx context.Context, university string) ([]model.Room, error) {
	return r.list(ctx, "end_location=? AND status=?", university, string(model.StatusRecruiting))
}

// ListByPhases returns every room currently in one of phases.
func (r *RoomRepo) ListByPhases(ctx context.Context, phases ...model.Phase) ([]model.Room, error) {
	if len(phases) == 0 {
		return nil, nil
	}
	args := make([]any, len(phases))
	for i, p := range phases {
		args[i] = string(p)
	}
	return r.list(ctx, "phase IN ("+placeholders(len(phases))+")", args...)
}

// ClaimSeatTx takes one seat in a single conditional statement: it only
// succeeds while the room recruits and has room left, and flips the
// status to WAITING when the last seat goes. claimed is false when the
// row did not qualify.
func (r *RoomRepo) ClaimSeatTx(ctx context.Context, tx *sql.Tx, id string) (claimed bool, err error) {
	// status is assigned first: MySQL evaluates SET left to right against
	// already-updated columns, SQLite against the old row.
	res, err := tx.ExecContext(ctx, `UPDATE rooms SET
			status = CASE WHEN current_members + 1 >= max_members THEN ? ELSE status END,
			current_members = current_members + 1,
			version = version + 1,
			updated_at = ?
		WHERE room_id=? AND status=? AND current_members < max_members`,
		string(model.StatusWaiting), unix(r.now()), id, string(model.StatusRecruiting))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// LockTx bumps the version so the row stays write-locked until tx ends.
// Call it before any read in tx that must see concurrent commits.
func (r *RoomRepo) LockTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, "UPDATE rooms SET version=version+1 WHERE room_id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// SetOwnerTx hands the room to ownerID.
func (r *RoomRepo) SetOwnerTx(ctx context.Context, tx *sql.Tx, id, ownerID string) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE rooms SET owner_id=?, version=version+1, updated_at=? WHERE room_id=?", ownerID, unix(r.now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// ReleaseSeatTx gives one seat back and returns the remaining member count.
func (r *RoomRepo) ReleaseSeatTx(ctx context.Context, tx *sql.Tx, id string) (int, error) {
	res, err := tx.ExecContext(ctx, `UPDATE rooms SET current_members = current_members - 1,
			version = version + 1, updated_at = ?
		WHERE room_id=? AND current_members > 0`, unix(r.now()), id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrRoomNotFound
	}
	var remaining int
	err = tx.QueryRowContext(ctx, "SELECT current_members FROM rooms WHERE room_id=?", id).Scan(&remaining)
	return remaining, err
}

func (r *RoomRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE room_id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// SetStatusTx moves the room to status `to` if its current status is one
// of from. It reports whether the row changed.
func (r *RoomRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id string, to model.RoomStatus, from ...model.RoomStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{string(to), unix(r.now()), id}
	for _, s := range from {
		args = append(args, string(s))
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE rooms SET status=?, version=version+1, updated_at=?
		 WHERE room_id=? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AdvancePhaseTx is a compare-and-set on the phase column. It reports
// false when the room is no longer in from.
func (r *RoomRepo) AdvancePhaseTx(ctx context.Context, tx *sql.Tx, id string, from, to model.Phase) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE rooms SET phase=?, version=version+1, updated_at=? WHERE room_id=? AND phase=?`,
		string(to), unix(r.now()), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
