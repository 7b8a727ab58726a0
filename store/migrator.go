package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Schema layout:
//
//   migration/{driver}/LATEST.sql            full schema for new databases
//   migration/{driver}/NNNN__description.sql incremental patches, applied in order
//
// The applied patch number is kept in system_setting under schemaVersionKey.
// A new database gets LATEST.sql and is stamped with the highest patch number.

//go:embed migration
var migrationFS embed.FS

//go:embed seed
var seedFS embed.FS

const (
	// MigrateFileNameSplit separates the patch number from the description, as in "0002__add_index.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the full schema applied to new databases.
	LatestSchemaFileName = "LATEST.sql"

	schemaVersionKey = "schema_version"

	modeDemo = "demo"
)

// Migrate brings the schema up to date and seeds demo data in demo mode.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}

	target, err := s.latestPatch()
	if err != nil {
		return err
	}

	if !initialized {
		if err := s.applyLatest(ctx, target); err != nil {
			return err
		}
		if s.profile.Mode == modeDemo {
			if err := s.seed(ctx); err != nil {
				return errors.Wrap(err, "failed to seed")
			}
		}
		return nil
	}

	current, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > target {
		slog.Error("cannot downgrade schema version", slog.Int("databaseVersion", current), slog.Int("targetVersion", target))
		return errors.Errorf("cannot downgrade schema version from %d to %d", current, target)
	}
	if current == target {
		return nil
	}
	return s.applyPatches(ctx, current, target)
}

func (s *Store) migrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.profile.Driver)
}

type patchFile struct {
	version int
	path    string
}

// patches lists the incremental migration files, ordered by patch number.
func (s *Store) patches() ([]patchFile, error) {
	paths, err := fs.Glob(migrationFS, s.migrationBasePath()+"*"+MigrateFileNameSplit+"*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration files")
	}
	list := make([]patchFile, 0, len(paths))
	for _, filePath := range paths {
		version, err := patchVersion(filePath)
		if err != nil {
			return nil, err
		}
		list = append(list, patchFile{version: version, path: filePath})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

// patchVersion parses the NNNN prefix of a migration file name.
func patchVersion(filePath string) (int, error) {
	prefix, _, ok := strings.Cut(path.Base(filePath), MigrateFileNameSplit)
	if !ok {
		return 0, errors.Errorf("migration file name must be NNNN__description.sql: %s", filePath)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, errors.Errorf("migration file name must start with a number: %s", filePath)
	}
	return version, nil
}

func (s *Store) latestPatch() (int, error) {
	patches, err := s.patches()
	if err != nil {
		return 0, err
	}
	if len(patches) == 0 {
		return 0, nil
	}
	return patches[len(patches)-1].version, nil
}

func (s *Store) applyLatest(ctx context.Context, version int) error {
	filePath := s.migrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema file %s", filePath)
	}

	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Wrapf(err, "failed to execute %s", filePath)
	}
	if err := s.setSchemaVersion(ctx, tx, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	slog.Info("database initialized successfully", slog.Int("schemaVersion", version))
	return nil
}

// applyPatches applies every patch in (current, target] in one transaction.
func (s *Store) applyPatches(ctx context.Context, current, target int) error {
	patches, err := s.patches()
	if err != nil {
		return err
	}

	slog.Info("start migration", slog.Int("currentSchemaVersion", current), slog.Int("targetSchemaVersion", target))
	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	applied := 0
	for _, patch := range patches {
		if patch.version <= current || patch.version > target {
			continue
		}
		slog.Info("applying migration", slog.String("file", patch.path), slog.Int("version", patch.version))
		bytes, err := migrationFS.ReadFile(patch.path)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file %s", patch.path)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", patch.path)
		}
		applied++
	}
	if err := s.setSchemaVersion(ctx, tx, target); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	slog.Info("migration completed", slog.Int("migrationsApplied", applied))
	return nil
}

// GetSchemaVersion returns the applied patch number, 0 when none is recorded.
func (s *Store) GetSchemaVersion(ctx context.Context) (int, error) {
	var value string
	query := "SELECT value FROM system_setting WHERE name = " + s.placeholder(1)
	err := s.driver.GetDB().QueryRowContext(ctx, query, schemaVersionKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid schema version %q", value)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	stmt := fmt.Sprintf(`INSERT INTO system_setting (name, value) VALUES (%s, %s)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`, s.placeholder(1), s.placeholder(2))
	if _, err := tx.ExecContext(ctx, stmt, schemaVersionKey, strconv.Itoa(version)); err != nil {
		return errors.Wrap(err, "failed to update schema version")
	}
	return nil
}

func (s *Store) placeholder(n int) string {
	if s.profile.Driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// seed loads demo data. Only SQLite ships seed files.
func (s *Store) seed(ctx context.Context) error {
	filenames, err := fs.Glob(seedFS, fmt.Sprintf("seed/%s/*.sql", s.profile.Driver))
	if err != nil {
		return errors.Wrap(err, "failed to read seed files")
	}
	if len(filenames) == 0 {
		slog.Warn("no seed files for driver, skipping", slog.String("driver", s.profile.Driver))
		return nil
	}
	sort.Strings(filenames)

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()
	for _, filename := range filenames {
		bytes, err := seedFS.ReadFile(filename)
		if err != nil {
			return errors.Wrapf(err, "failed to read seed file, filename=%s", filename)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "seed error: %s", filename)
		}
	}
	return tx.Commit()
}

// execute runs a multi-statement script one statement at a time.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, script string) error {
	for i, stmt := range splitSQL(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, stmt)
		}
	}
	return nil
}

// splitSQL splits a script on semicolons outside quotes, dropping -- comments.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder
	inQuote := false

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		for i := 0; i < len(line); i++ {
			ch := line[i]
			if !inQuote && ch == '-' && i+1 < len(line) && line[i+1] == '-' {
				break
			}
			if ch == '\'' {
				inQuote = !inQuote
			}
			if ch == ';' && !inQuote {
				flush()
				continue
			}
			current.WriteByte(ch)
		}
		current.WriteByte('\n')
	}
	flush()
	return statements
}
