// Package repository persists users, rooms, members, settlements and
// refresh tokens. Methods ending in Tx run inside a caller-owned
// transaction; the caller must commit or roll back.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrRoomNotFound       = errors.New("room not found")
	ErrMemberNotFound     = errors.New("member not found")
	ErrDuplicateMember    = errors.New("already a member")
	ErrNoCapacity         = errors.New("room is not accepting members")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrSettlementExists   = errors.New("room already settled")
	ErrTokenInvalid       = errors.New("refresh token invalid")
)

// isDuplicateKey recognises unique-key violations from both drivers.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
