package postgres

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/plaza/internal/profile"
	"github.com/hrygo/plaza/store"
	"github.com/hrygo/plaza/store/db/rdb"
)

// ============================================================================
// POSTGRESQL SUPPORT (Production)
// ============================================================================
// PostgreSQL is the reference record store: row locks (FOR UPDATE) back the
// thread lock transitions and ILIKE backs case-insensitive search.
// ============================================================================

// Dialect is the PostgreSQL flavour of the shared SQL.
var Dialect = rdb.Dialect{
	Name:              "postgres",
	Numbered:          true,
	Like:              "ILIKE",
	RowLock:           "FOR UPDATE",
	TableExistsQuery:  "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	// Verify connection is working before returning
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return rdb.New(db, Dialect), nil
}
