// Package pagination normalizes list cursors into query windows and wraps
// fetched rows into a uniform envelope. Two modes are supported: offset
// (page/limit) and keyset (next = sort value of the last row returned).
package pagination

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidCursor is returned for cursors that cannot be applied.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Cursor is the client-supplied pagination state.
// Only one of Page (> 1) and Next may be set.
type Cursor struct {
	Limit     int    `json:"limit" query:"limit"`
	Page      int    `json:"page" query:"page"`
	Next      string `json:"next" query:"next"`
	SortBy    string `json:"sortBy" query:"sortBy"`
	SortOrder string `json:"sortOrder" query:"sortOrder"`
	// Stable makes Next a "value,id" pair so rows sharing a sort value are neither skipped nor repeated.
	Stable bool `json:"stable" query:"stable"`
}

// Config describes what a listing accepts.
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	DefaultSortBy string
	// SortColumns maps accepted sortBy keys to numeric record columns.
	SortColumns map[string]string
}

// DefaultConfig sorts by createdAt, 20 rows per page, at most 100.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:  20,
		MaxLimit:      100,
		DefaultSortBy: "createdAt",
		SortColumns: map[string]string{
			"createdAt": "created_ts",
			"updatedAt": "updated_ts",
		},
	}
}

// WithSort returns a copy of cfg that also accepts key as a sort key.
func (cfg Config) WithSort(key, column string) Config {
	columns := make(map[string]string, len(cfg.SortColumns)+1)
	for k, v := range cfg.SortColumns {
		columns[k] = v
	}
	columns[key] = column
	cfg.SortColumns = columns
	return cfg
}

// Window is a normalized cursor, ready for a record-store query.
type Window struct {
	Limit      int
	Offset     int
	Page       int
	SortBy     string
	SortColumn string
	Desc       bool
	Stable     bool

	// Keyset is set when the query continues after (After, AfterID).
	Keyset  bool
	After   int64
	AfterID int32
	HasID   bool
}

// FetchLimit is the number of rows to request: one extra to detect a next page.
func (w Window) FetchLimit() int {
	return w.Limit + 1
}

// ClampLimit applies defaults and limits for page sizes.
func ClampLimit(value int, cfg Config) int {
	limit := value
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && limit > cfg.MaxLimit {
		limit = cfg.MaxLimit
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// Normalize validates c against cfg.
func Normalize(c Cursor, cfg Config) (Window, error) {
	w := Window{Limit: ClampLimit(c.Limit, cfg), Stable: c.Stable}

	if c.Page > 1 && c.Next != "" {
		return Window{}, errors.Wrap(ErrInvalidCursor, "page and next are mutually exclusive")
	}

	w.SortBy = c.SortBy
	if w.SortBy == "" {
		w.SortBy = cfg.DefaultSortBy
	}
	column, ok := cfg.SortColumns[w.SortBy]
	if !ok {
		return Window{}, errors.Wrapf(ErrInvalidCursor, "unsupported sortBy %q", w.SortBy)
	}
	w.SortColumn = column

	switch strings.ToLower(c.SortOrder) {
	case "", OrderDesc:
		w.Desc = true
	case OrderAsc:
		w.Desc = false
	default:
		return Window{}, errors.Wrapf(ErrInvalidCursor, "unsupported sortOrder %q", c.SortOrder)
	}

	if c.Next == "" {
		w.Page = c.Page
		if w.Page <= 0 {
			w.Page = 1
		}
		w.Offset = (w.Page - 1) * w.Limit
		return w, nil
	}

	after, afterID, hasID, err := ParseNext(c.Next)
	if err != nil {
		return Window{}, err
	}
	w.Keyset = true
	w.After = after
	w.AfterID = afterID
	w.HasID = hasID
	return w, nil
}

// ParseNext decodes "value" or "value,id".
func ParseNext(next string) (int64, int32, bool, error) {
	value, idPart, hasID := strings.Cut(next, ",")
	after, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, 0, false, errors.Wrapf(ErrInvalidCursor, "malformed next %q", next)
	}
	if !hasID {
		return after, 0, false, nil
	}
	id, err := strconv.ParseInt(idPart, 10, 32)
	if err != nil {
		return 0, 0, false, errors.Wrapf(ErrInvalidCursor, "malformed next %q", next)
	}
	return after, int32(id), true, nil
}

// FormatNext encodes a next token; id is included only for stable cursors.
func FormatNext(value int64, id int32, stable bool) string {
	if !stable {
		return strconv.FormatInt(value, 10)
	}
	return strconv.FormatInt(value, 10) + "," + strconv.FormatInt(int64(id), 10)
}

// Info is the pagination half of a list envelope.
type Info struct {
	Limit     int    `json:"limit"`
	Page      int    `json:"page,omitempty"`
	NextPage  int    `json:"nextPage,omitempty"`
	Next      string `json:"next,omitempty"`
	HasNext   bool   `json:"hasNext"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// Page is a list envelope.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Pagination Info `json:"pagination"`
}

// FetchFunc runs the windowed query. It must return at most w.FetchLimit() rows
// ordered by the window's sort column (and id when w.Stable).
type FetchFunc[T any] func(ctx context.Context, w Window) ([]T, error)

// KeyFunc returns the sort value and id of a row.
type KeyFunc[T any] func(item T) (int64, int32)

// Paginate normalizes c, runs fetch and builds the envelope.
// Record-store errors are returned as-is.
func Paginate[T any](ctx context.Context, c Cursor, cfg Config, fetch FetchFunc[T], key KeyFunc[T]) (*Page[T], error) {
	w, err := Normalize(c, cfg)
	if err != nil {
		return nil, err
	}
	rows, err := fetch(ctx, w)
	if err != nil {
		return nil, err
	}
	return Build(rows, w, key), nil
}

// Build truncates the limit+1 rows of a fetch and fills in the envelope.
func Build[T any](rows []T, w Window, key KeyFunc[T]) *Page[T] {
	hasNext := len(rows) > w.Limit
	if hasNext {
		rows = rows[:w.Limit]
	}
	if rows == nil {
		rows = []T{}
	}

	info := Info{
		Limit:     w.Limit,
		HasNext:   hasNext,
		SortBy:    w.SortBy,
		SortOrder: OrderAsc,
	}
	if w.Desc {
		info.SortOrder = OrderDesc
	}
	if !w.Keyset {
		info.Page = w.Page
		if hasNext {
			info.NextPage = w.Page + 1
		}
	}
	if hasNext && len(rows) > 0 {
		value, id := key(rows[len(rows)-1])
		info.Next = FormatNext(value, id, w.Stable)
	}
	return &Page[T]{Items: rows, Pagination: info}
}
