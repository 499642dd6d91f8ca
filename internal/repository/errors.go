// Package repository holds the MySQL queries behind the intake API. Sentinel
// errors let the service and handler layers branch on failure kind without
// inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate wraps a unique-key violation (MySQL error 1062).
var ErrDuplicate = errors.New("duplicate key")

const mysqlDuplicateEntry = 1062

// mapError translates driver errors into the package sentinels. The original
// error stays in the chain for logging.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return &DuplicateError{Key: duplicateKey(me.Message), err: err}
	}
	return err
}

// DuplicateError reports which unique key was violated.
type DuplicateError struct {
	Key string
	err error
}

func (e *DuplicateError) Error() string { return "duplicate key " + e.Key + ": " + e.err.Error() }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

func (e *DuplicateError) Unwrap() error { return e.err }

// duplicateKey extracts the key name from "Duplicate entry 'x' for key 'users.uq_users_email'".
func duplicateKey(msg string) string {
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return ""
	}
	key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if j := strings.LastIndex(key, "."); j >= 0 {
		key = key[j+1:]
	}
	return key
}
