package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix seconds so both dialects scan them the
// same way.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id            VARCHAR(64)  NOT NULL PRIMARY KEY,
		password_hash      VARCHAR(255) NOT NULL,
		name               VARCHAR(100) NOT NULL,
		university         VARCHAR(100) NOT NULL,
		balance            BIGINT       NOT NULL DEFAULT 0,
		current_latitude   DOUBLE       NOT NULL DEFAULT 0,
		current_longitude  DOUBLE       NOT NULL DEFAULT 0,
		location_known     TINYINT(1)   NOT NULL DEFAULT 0,
		is_location_active TINYINT(1)   NOT NULL DEFAULT 0,
		role               VARCHAR(16)  NOT NULL DEFAULT 'STUDENT',
		created_at         BIGINT       NOT NULL,
		CONSTRAINT chk_users_balance CHECK (balance >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id         VARCHAR(64)  NOT NULL PRIMARY KEY,
		owner_id        VARCHAR(64)  NOT NULL,
		start_location  VARCHAR(255) NOT NULL,
		start_latitude  DOUBLE       NOT NULL,
		start_longitude DOUBLE       NOT NULL,
		end_location    VARCHAR(255) NOT NULL,
		end_latitude    DOUBLE       NOT NULL,
		end_longitude   DOUBLE       NOT NULL,
		current_members INT          NOT NULL DEFAULT 0,
		max_members     INT          NOT NULL,
		estimated_cost  BIGINT       NOT NULL,
		cost_per_person BIGINT       NOT NULL,
		status          VARCHAR(16)  NOT NULL DEFAULT 'RECRUITING',
		phase           VARCHAR(16)  NOT NULL DEFAULT 'CREATED',
		version         BIGINT       NOT NULL DEFAULT 0,
		created_at      BIGINT       NOT NULL,
		updated_at      BIGINT       NOT NULL,
		INDEX idx_rooms_end_status (end_location, status),
		INDEX idx_rooms_phase (phase),
		CONSTRAINT chk_rooms_members CHECK (current_members >= 0 AND current_members <= max_members)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS room_members (
		room_id   VARCHAR(64) NOT NULL,
		user_id   VARCHAR(64) NOT NULL,
		is_ready  TINYINT(1)  NOT NULL DEFAULT 0,
		joined_at BIGINT      NOT NULL,
		PRIMARY KEY (room_id, user_id),
		INDEX idx_room_members_user (user_id),
		CONSTRAINT fk_room_members_room FOREIGN KEY (room_id) REFERENCES rooms(room_id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settlements (
		room_id         VARCHAR(64) NOT NULL PRIMARY KEY,
		estimated_cost  BIGINT      NOT NULL,
		actual_total    BIGINT      NOT NULL,
		cost_per_person BIGINT      NOT NULL,
		variance_bp     INT         NOT NULL,
		settled_at      BIGINT      NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settlement_debits (
		room_id       VARCHAR(64) NOT NULL,
		user_id       VARCHAR(64) NOT NULL,
		amount        BIGINT      NOT NULL,
		balance_after BIGINT      NOT NULL,
		PRIMARY KEY (room_id, user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    VARCHAR(64)     NOT NULL,
		token_hash CHAR(64)        NOT NULL,
		expires_at BIGINT          NOT NULL,
		revoked_at BIGINT          NULL,
		created_at BIGINT          NOT NULL,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		INDEX idx_refresh_tokens_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id            TEXT    NOT NULL PRIMARY KEY,
		password_hash      TEXT    NOT NULL,
		name               TEXT    NOT NULL,
		university         TEXT    NOT NULL,
		balance            INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		current_latitude   REAL    NOT NULL DEFAULT 0,
		current_longitude  REAL    NOT NULL DEFAULT 0,
		location_known     INTEGER NOT NULL DEFAULT 0,
		is_location_active INTEGER NOT NULL DEFAULT 0,
		role               TEXT    NOT NULL DEFAULT 'STUDENT',
		created_at         INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id         TEXT    NOT NULL PRIMARY KEY,
		owner_id        TEXT    NOT NULL,
		start_location  TEXT    NOT NULL,
		start_latitude  REAL    NOT NULL,
		start_longitude REAL    NOT NULL,
		end_location    TEXT    NOT NULL,
		end_latitude    REAL    NOT NULL,
		end_longitude   REAL    NOT NULL,
		current_members INTEGER NOT NULL DEFAULT 0,
		max_members     INTEGER NOT NULL,
		estimated_cost  INTEGER NOT NULL,
		cost_per_person INTEGER NOT NULL,
		status          TEXT    NOT NULL DEFAULT 'RECRUITING',
		phase           TEXT    NOT NULL DEFAULT 'CREATED',
		version         INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		CHECK (current_members >= 0 AND current_members <= max_members)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_end_status ON rooms(end_location, status)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_phase ON rooms(phase)`,
	`CREATE TABLE IF NOT EXISTS room_members (
		room_id   TEXT    NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
		user_id   TEXT    NOT NULL,
		is_ready  INTEGER NOT NULL DEFAULT 0,
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		room_id         TEXT    NOT NULL PRIMARY KEY,
		estimated_cost  INTEGER NOT NULL,
		actual_total    INTEGER NOT NULL,
		cost_per_person INTEGER NOT NULL,
		variance_bp     INTEGER NOT NULL,
		settled_at      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_debits (
		room_id       TEXT    NOT NULL,
		user_id       TEXT    NOT NULL,
		amount        INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT    NOT NULL,
		token_hash TEXT    NOT NULL UNIQUE,
		expires_at INTEGER NOT NULL,
		revoked_at INTEGER,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id)`,
}

// Migrate creates any missing tables for driver. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case "mysql":
		stmts = mysqlSchema
	case "sqlite":
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
