package sqlite

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/store"
	"github.com/hrygo/plaza/store/db/rdb"
)

// ============================================================================
// SQLITE SUPPORT (Development / single-node)
// ============================================================================
// SQLite has no row locks. Transactions start IMMEDIATE so writers queue on
// the database lock instead of failing when a read snapshot goes stale.
// ============================================================================

// Dialect is the SQLite flavour of the shared SQL.
var Dialect = rdb.Dialect{
	Name:              "sqlite",
	Like:              "LIKE",
	TableExistsQuery:  "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name, usually consisting of at least a
// database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", dsn(profile.DSN))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return rdb.New(db, Dialect), nil
}

// dsn appends the connection pragmas unless the caller supplied their own.
//
// foreign_keys is off; relations are maintained by the store.
// busy_timeout waits up to 10s for the database lock.
// journal_mode WAL lets readers run alongside the writer.
func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}
