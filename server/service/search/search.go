// Package search runs a unified search over events, users and tags.
//
// Each enabled type is queried independently with a case-insensitive
// containment filter. Rows are scored, merged and ordered by score desc;
// results within ScoreTolerance of a group's top score are ordered by
// createdTs desc.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/store"
)

// Result types.
const (
	TypeEvent = "event"
	TypeUser  = "user"
	TypeTag   = "tag"
)

// AllTypes lists the searchable types in response order of equal results.
var AllTypes = []string{TypeEvent, TypeUser, TypeTag}

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// ScoreTolerance is the score delta below which results are ordered by recency.
	// See Rank for how chains of near-equal scores are grouped.
	ScoreTolerance = 0.1

	scoreExact       = 100
	scorePrefix      = 75
	scoreSubstring   = 50
	scoreDescription = 25

	maxRecencyBonus    = 5
	recencyWindow      = 30 * 24 * time.Hour
	maxPopularityBonus = 5
)

// Query is a search request.
type Query struct {
	Q     string
	Types []string
	Limit int
	// Filter is an optional CEL expression over type, id, title, score and createdTs.
	Filter string
}

// Result is one ranked hit.
type Result struct {
	ID        int32   `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Score     float64 `json:"relevanceScore"`
	CreatedTs int64   `json:"createdTs"`
	Entity    any     `json:"entity"`
}

// Response holds the ranked results.
// Total is the sum of the per-type match counts, not the number of results
// returned. It is meant for "N results found" text, not for paging.
type Response struct {
	Results []*Result `json:"results"`
	Total   int64     `json:"total"`
}

// Store is the interface for store operations needed by search.
type Store interface {
	ListEvents(ctx context.Context, find *store.FindEvent) ([]*store.Event, error)
	CountEvents(ctx context.Context, find *store.FindEvent) (int64, error)
	ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error)
	CountUsers(ctx context.Context, find *store.FindUser) (int64, error)
	ListTags(ctx context.Context, find *store.FindTag) ([]*store.Tag, error)
	CountTags(ctx context.Context, find *store.FindTag) (int64, error)
}

// Service runs searches.
type Service struct {
	store  Store
	now    func() time.Time
	tracer trace.Tracer
}

// NewService creates a search service.
func NewService(st Store) *Service {
	return &Service{
		store:  st,
		now:    time.Now,
		tracer: otel.Tracer("plaza.search"),
	}
}

// ParseTypes reads a comma-separated types parameter. Empty means all types.
func ParseTypes(s string) []string {
	var types []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}
	return types
}

func normalizeTypes(types []string) ([]string, error) {
	if len(types) == 0 {
		return AllTypes, nil
	}
	seen := make(map[string]bool, len(types))
	var out []string
	for _, t := range types {
		switch t {
		case TypeEvent, TypeUser, TypeTag:
		default:
			return nil, apierrors.BadRequest("Unsupported search type: " + t)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// Search runs query against every enabled type concurrently.
func (s *Service) Search(ctx context.Context, query Query) (*Response, error) {
	q := strings.TrimSpace(query.Q)
	if q == "" {
		return nil, apierrors.BadRequest("Search query is required")
	}
	types, err := normalizeTypes(query.Types)
	if err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	var filter *Filter
	if query.Filter != "" {
		if filter, err = CompileFilter(query.Filter); err != nil {
			return nil, err
		}
	}

	ctx, span := s.tracer.Start(ctx, "search",
		trace.WithAttributes(attribute.String("search.query", q), attribute.StringSlice("search.types", types)))
	defer span.End()

	results := make([][]*Result, len(types))
	counts := make([]int64, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			rows, count, err := s.searchType(gctx, t, q, limit)
			if err != nil {
				return err
			}
			results[i], counts[i] = rows, count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var merged []*Result
	var total int64
	for i := range types {
		merged = append(merged, results[i]...)
		total += counts[i]
	}
	if filter != nil {
		if merged, err = filter.Apply(merged); err != nil {
			return nil, err
		}
	}
	Rank(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	if merged == nil {
		merged = []*Result{}
	}
	span.SetAttributes(attribute.Int64("search.total", total), attribute.Int("search.returned", len(merged)))
	return &Response{Results: merged, Total: total}, nil
}

func (s *Service) searchType(ctx context.Context, t, q string, limit int) ([]*Result, int64, error) {
	ctx, span := s.tracer.Start(ctx, "search."+t)
	defer span.End()

	var (
		results []*Result
		count   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	switch t {
	case TypeEvent:
		g.Go(func() error {
			list, err := s.store.ListEvents(gctx, &store.FindEvent{Search: &q, Limit: &limit})
			for _, e := range list {
				results = append(results, s.scoreEvent(q, e))
			}
			return err
		})
		g.Go(func() (err error) {
			count, err = s.store.CountEvents(gctx, &store.FindEvent{Search: &q})
			return err
		})
	case TypeUser:
		g.Go(func() error {
			list, err := s.store.ListUsers(gctx, &store.FindUser{Search: &q, Limit: &limit})
			for _, u := range list {
				results = append(results, s.scoreUser(q, u))
			}
			return err
		})
		g.Go(func() (err error) {
			count, err = s.store.CountUsers(gctx, &store.FindUser{Search: &q})
			return err
		})
	case TypeTag:
		g.Go(func() error {
			list, err := s.store.ListTags(gctx, &store.FindTag{Search: &q, Limit: &limit})
			for _, tag := range list {
				results = append(results, s.scoreTag(q, tag))
			}
			return err
		})
		g.Go(func() (err error) {
			count, err = s.store.CountTags(gctx, &store.FindTag{Search: &q})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}
	span.SetAttributes(attribute.Int("search.rows", len(results)), attribute.Int64("search.count", count))
	return results, count, nil
}

// MatchScore scores text against q: exact, prefix, then substring. Zero when text does not contain q.
func MatchScore(q, text string) float64 {
	q, text = strings.ToLower(q), strings.ToLower(strings.TrimSpace(text))
	switch {
	case q == "" || text == "":
		return 0
	case text == q:
		return scoreExact
	case strings.HasPrefix(text, q):
		return scorePrefix
	case strings.Contains(text, q):
		return scoreSubstring
	}
	return 0
}

// RecencyBonus decays linearly from maxRecencyBonus at creation to zero after recencyWindow.
func RecencyBonus(createdTs int64, now time.Time) float64 {
	age := now.Sub(time.Unix(createdTs, 0))
	if age < 0 {
		age = 0
	}
	if age >= recencyWindow {
		return 0
	}
	return maxRecencyBonus * (1 - float64(age)/float64(recencyWindow))
}

// PopularityBonus grows with log2 of n, capped at maxPopularityBonus.
func PopularityBonus(n int32) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(maxPopularityBonus, math.Log2(1+float64(n)))
}

func (s *Service) scoreEvent(q string, e *store.Event) *Result {
	score := MatchScore(q, e.Title)
	if score == 0 && strings.Contains(strings.ToLower(e.Description), strings.ToLower(q)) {
		score = scoreDescription
	}
	score += RecencyBonus(e.CreatedTs, s.now()) + PopularityBonus(e.ParticipantCount)
	return &Result{ID: e.ID, Type: TypeEvent, Title: e.Title, Score: score, CreatedTs: e.CreatedTs, Entity: e}
}

func (s *Service) scoreUser(q string, u *store.User) *Result {
	score := math.Max(MatchScore(q, u.Username), MatchScore(q, u.Nickname))
	if score == 0 && strings.Contains(strings.ToLower(u.Bio), strings.ToLower(q)) {
		score = scoreDescription
	}
	score += RecencyBonus(u.CreatedTs, s.now())
	return &Result{ID: u.ID, Type: TypeUser, Title: u.Username, Score: score, CreatedTs: u.CreatedTs, Entity: u}
}

func (s *Service) scoreTag(q string, tag *store.Tag) *Result {
	score := MatchScore(q, tag.Name) + RecencyBonus(tag.CreatedTs, s.now()) + PopularityBonus(tag.UsageCount)
	return &Result{ID: tag.ID, Type: TypeTag, Title: tag.Name, Score: score, CreatedTs: tag.CreatedTs, Entity: tag}
}

// Rank orders results by score. Results are grouped from the top score down:
// a group holds every result within ScoreTolerance of its highest score, and
// each group is ordered newest first. Grouping against the group's top score
// keeps the order independent of the input order.
func Rank(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return newer(a, b)
	})
	for start := 0; start < len(results); {
		end := start + 1
		for end < len(results) && results[start].Score-results[end].Score < ScoreTolerance {
			end++
		}
		group := results[start:end]
		sort.SliceStable(group, func(i, j int) bool { return newer(group[i], group[j]) })
		start = end
	}
}

// newer orders by creation time, then type and id for identical timestamps.
func newer(a, b *Result) bool {
	if a.CreatedTs != b.CreatedTs {
		return a.CreatedTs > b.CreatedTs
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.ID < b.ID
}
