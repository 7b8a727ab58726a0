// Package rdb implements store.Driver over database/sql. The SQL is shared by
// the sqlite and postgres drivers; a Dialect covers where they differ.
package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/store"
)

// Dialect describes the SQL differences between record stores.
type Dialect struct {
	Name string
	// Numbered switches placeholders from ? to $1, $2, ...
	Numbered bool
	// Like is the case-insensitive LIKE operator.
	Like string
	// RowLock is appended to selects that lock rows inside a transaction.
	// Empty when the store serializes writers itself.
	RowLock string
	// TableExistsQuery counts tables named by its single parameter.
	TableExistsQuery string
	// IsUniqueViolation reports whether err is a uniqueness constraint failure.
	IsUniqueViolation func(err error) bool
}

type DB struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var count int
	query := bind(d.dialect, d.dialect.TableExistsQuery, 0)
	if err := d.db.QueryRowContext(ctx, query, "event").Scan(&count); err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return count > 0, nil
}

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried by ctx, or the pool.
func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.db
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back transaction", "error", rbErr)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	committed = true
	return nil
}

// wrap maps driver errors onto store sentinels.
func (d *DB) wrap(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case d.dialect.IsUniqueViolation != nil && d.dialect.IsUniqueViolation(err):
		return errors.Wrap(store.ErrConflict, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// bind replaces each ? in expr with the dialect placeholder, numbering from after+1.
func bind(dialect Dialect, expr string, after int) string {
	if !dialect.Numbered || !strings.Contains(expr, "?") {
		return expr
	}
	var sb strings.Builder
	n := after
	for _, r := range expr {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// builder accumulates SET and WHERE clauses with their arguments, in order.
type builder struct {
	dialect Dialect
	set     []string
	where   []string
	args    []any
}

func (d *DB) builder() *builder {
	return &builder{dialect: d.dialect, where: []string{"1 = 1"}}
}

func (b *builder) bind(expr string) string {
	return bind(b.dialect, expr, len(b.args))
}

// and adds a condition; each ? binds the next of args.
func (b *builder) and(expr string, args ...any) {
	b.where = append(b.where, b.bind(expr))
	b.args = append(b.args, args...)
}

// assign adds "column = ?" to the SET clause.
func (b *builder) assign(column string, arg any) {
	b.set = append(b.set, b.bind(column+" = ?"))
	b.args = append(b.args, arg)
}

// in adds "column IN (...)". An empty list matches nothing.
func (b *builder) in(column string, ids []int32) {
	if len(ids) == 0 {
		b.where = append(b.where, "1 = 0")
		return
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	b.and(column+" IN ("+strings.Join(marks, ", ")+")", args...)
}

// like adds a case-insensitive substring match over any of columns.
func (b *builder) like(search string, columns ...string) {
	pattern := "%" + store.EscapeLike(search) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		parts[i] = column + " " + b.dialect.Like + ` ? ESCAPE '\'`
		args[i] = pattern
	}
	b.and("("+strings.Join(parts, " OR ")+")", args...)
}

func (b *builder) whereSQL() string {
	return strings.Join(b.where, " AND ")
}

func (b *builder) setSQL() string {
	return strings.Join(b.set, ", ")
}

// page renders ORDER BY and LIMIT for a window, adding the keyset condition
// to the WHERE clause. Call it after the other conditions.
func (b *builder) page(table string, w *pagination.Window) string {
	column := table + "." + w.SortColumn
	idColumn := table + ".id"
	direction, op := "ASC", ">"
	if w.Desc {
		direction, op = "DESC", "<"
	}

	if w.Keyset {
		if w.HasID {
			b.and(fmt.Sprintf("(%s %s ? OR (%s = ? AND %s %s ?))", column, op, column, idColumn, op), w.After, w.After, w.AfterID)
		} else {
			b.and(fmt.Sprintf("%s %s ?", column, op), w.After)
		}
	}

	clause := fmt.Sprintf(" ORDER BY %s %s, %s %s LIMIT %d", column, direction, idColumn, direction, w.FetchLimit())
	if !w.Keyset && w.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", w.Offset)
	}
	return clause
}

// limit renders LIMIT/OFFSET for plain finds.
func limit(limit, offset *int) string {
	if limit == nil {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", *limit)
	if offset != nil {
		clause += fmt.Sprintf(" OFFSET %d", *offset)
	}
	return clause
}

// lock returns the row-lock suffix when ctx carries a transaction.
func (d *DB) lock(ctx context.Context, want bool) string {
	if !want || !inTx(ctx) || d.dialect.RowLock == "" {
		return ""
	}
	return " " + d.dialect.RowLock
}

// placeholders returns n comma-separated ? marks.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = "?"
	}
	return strings.Join(list, ", ")
}

// affected turns a zero-row update into store.ErrNotFound.
func affected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
