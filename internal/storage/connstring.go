package storage

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBusyTimeout is how long a SQLite connection waits on a locked
// database before failing.
const DefaultBusyTimeout = 30 * time.Second

// SQLiteConnString builds a SQLite connection string with the standard
// pragmas: busy_timeout, foreign_keys and time_format. A busy value of zero
// uses DefaultBusyTimeout. ":memory:" yields a shared in-memory database;
// a path that is already a file: URI gets each pragma appended only if
// absent.
func SQLiteConnString(path string, readOnly bool, busy time.Duration) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}
	busyMs := int64(busy / time.Millisecond)

	if path == ":memory:" {
		return fmt.Sprintf("file:cutover?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", busyMs)
	}

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if readOnly && !strings.Contains(conn, "mode=") {
			conn += sep + "mode=ro"
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + "_pragma=foreign_keys(ON)"
			sep = "&"
		}
		if !strings.Contains(conn, "_time_format=") {
			conn += sep + "_time_format=sqlite"
		}
		return conn
	}

	if readOnly {
		return fmt.Sprintf("file:%s?mode=ro&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", path, busyMs)
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", path, busyMs)
}
