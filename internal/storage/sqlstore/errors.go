package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/steveyegge/cutover/internal/types"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// mysqlDuplicateKeyName is returned when an index already exists.
const mysqlDuplicateKeyName = 1061

// mysqlDeadlock is returned to the transaction InnoDB rolls back to break
// a deadlock.
const mysqlDeadlock = 1213

// wrapDBError wraps a database error with operation context.
// sql.ErrNoRows becomes a NotFoundError for entity/id.
func wrapDBError(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.NotFound(entity, id)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapWriteError wraps an insert/update error, mapping unique violations
// to a DuplicateError for entity/key.
func wrapWriteError(op, entity, key string, err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueConstraintError(err) {
		return &types.DuplicateError{Entity: entity, Key: key}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUniqueConstraintError checks if an error is a UNIQUE constraint
// violation from either backend.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func isDuplicateIndexError(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateKeyName
}

// isDeadlockError reports whether the server rolled the transaction back
// as a deadlock victim, in which case the whole transaction may run again.
func isDeadlockError(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDeadlock
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "deadlock found")
}

// isRetryableError returns true for transient lock and connection errors
// worth retrying when opening a transaction.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked", // SQLITE_BUSY
		"sqlite_busy",
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection", // MySQL 2013
		"gone away",       // MySQL 2006
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// checkAffected turns a zero-row update into a NotFoundError.
func checkAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.NotFound(entity, id)
	}
	return nil
}
