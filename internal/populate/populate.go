// Package populate resolves the related fields of an entity concurrently.
//
// Each entity type declares its fields once in a Registry. A populate call runs
// the requested resolvers in parallel, each with its own timeout, and applies
// the results only after every resolver has settled. A failing resolver leaves
// its field empty and never affects its siblings.
package populate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultResolverTimeout bounds a single resolver.
const DefaultResolverTimeout = 2 * time.Second

// Request selects the fields to populate.
type Request struct {
	All    bool
	Fields []string
}

// None is the empty request.
var None = Request{}

// AllFields requests every declared field.
var AllFields = Request{All: true}

// Fields requests the named fields; unknown names are ignored.
func Fields(names ...string) Request {
	return Request{Fields: names}
}

// ParseRequest reads a populate query parameter: "true" or "*" for all fields,
// otherwise a comma-separated list of field names.
func ParseRequest(s string) Request {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return None
	case "true", "*", "all":
		return AllFields
	}
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return Request{Fields: names}
}

// Field is one resolvable relation of T.
type Field[T any] struct {
	Name    string
	resolve func(ctx context.Context, entity *T) (func(*T), error)
	empty   func(*T)
}

// NewField declares field name. resolve loads the value, set stores it on the
// entity, and empty is what the field holds when resolve fails (for lists use an
// empty, non-nil slice).
func NewField[T any, V any](name string, resolve func(ctx context.Context, entity *T) (V, error), set func(entity *T, value V), empty V) Field[T] {
	return Field[T]{
		Name: name,
		resolve: func(ctx context.Context, entity *T) (func(*T), error) {
			value, err := resolve(ctx, entity)
			if err != nil {
				return nil, err
			}
			return func(e *T) { set(e, value) }, nil
		},
		empty: func(e *T) { set(e, empty) },
	}
}

// Config configures a Registry.
type Config struct {
	ResolverTimeout time.Duration // default: 2s
	// Concurrency bounds how many entities PopulateMany works on at once (default: 8).
	Concurrency int
}

// Registry holds the declared fields of one entity type. Build it once at startup.
type Registry[T any] struct {
	entity string
	fields []Field[T]
	byName map[string]int
	config Config
	tracer trace.Tracer
}

// NewRegistry creates an empty registry for the entity type named entity.
func NewRegistry[T any](entity string, config Config) *Registry[T] {
	if config.ResolverTimeout <= 0 {
		config.ResolverTimeout = DefaultResolverTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	return &Registry[T]{
		entity: entity,
		byName: make(map[string]int),
		config: config,
		tracer: otel.Tracer("plaza.populate"),
	}
}

// Register declares a field. Registering the same name twice panics.
func (r *Registry[T]) Register(fields ...Field[T]) *Registry[T] {
	for _, f := range fields {
		if _, ok := r.byName[f.Name]; ok {
			panic(fmt.Sprintf("populate: field %q registered twice for %s", f.Name, r.entity))
		}
		r.byName[f.Name] = len(r.fields)
		r.fields = append(r.fields, f)
	}
	return r
}

// selected intersects req with the declared fields, in declaration order.
func (r *Registry[T]) selected(req Request) []Field[T] {
	if req.All {
		return r.fields
	}
	want := make(map[string]bool, len(req.Fields))
	for _, name := range req.Fields {
		want[name] = true
	}
	var out []Field[T]
	for _, f := range r.fields {
		if want[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// Report describes one populate call.
type Report struct {
	Resolved []string
	Failed   []string
}

type outcome[T any] struct {
	apply func(*T)
	err   error
}

// Populate resolves the requested fields of entity concurrently and applies
// them once all resolvers have settled. It never fails; failed fields are set
// to their empty value and listed in the report.
func (r *Registry[T]) Populate(ctx context.Context, entity *T, req Request) Report {
	fields := r.selected(req)
	if entity == nil || len(fields) == 0 {
		return Report{}
	}

	// Resolvers read a snapshot so late writes below never race an abandoned resolver.
	snapshot := *entity
	outcomes := make([]outcome[T], len(fields))
	var wg sync.WaitGroup
	for i, f := range fields {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.run(ctx, f, &snapshot)
		}()
	}
	wg.Wait()

	var report Report
	for i, f := range fields {
		if outcomes[i].err != nil {
			slog.Warn("populate resolver failed",
				"entity", r.entity,
				"field", f.Name,
				"error", outcomes[i].err)
			f.empty(entity)
			report.Failed = append(report.Failed, f.Name)
			continue
		}
		outcomes[i].apply(entity)
		report.Resolved = append(report.Resolved, f.Name)
	}
	return report
}

// PopulateMany populates each entity, bounded by Config.Concurrency.
func (r *Registry[T]) PopulateMany(ctx context.Context, entities []*T, req Request) {
	if len(entities) == 0 || len(r.selected(req)) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for _, entity := range entities {
		g.Go(func() error {
			r.Populate(ctx, entity, req)
			return nil
		})
	}
	_ = g.Wait()
}

// run executes one resolver with its own deadline. A resolver that ignores its
// context is abandoned at the deadline; its late result is dropped.
func (r *Registry[T]) run(ctx context.Context, f Field[T], entity *T) outcome[T] {
	ctx, span := r.tracer.Start(ctx, "populate."+r.entity+"."+f.Name,
		trace.WithAttributes(
			attribute.String("populate.entity", r.entity),
			attribute.String("populate.field", f.Name),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.config.ResolverTimeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome[T]{err: fmt.Errorf("resolver panicked: %v", p)}
			}
		}()
		apply, err := f.resolve(ctx, entity)
		done <- outcome[T]{apply: apply, err: err}
	}()

	var result outcome[T]
	select {
	case result = <-done:
	case <-ctx.Done():
		result = outcome[T]{err: fmt.Errorf("resolver %s: %w", f.Name, ctx.Err())}
	}
	if result.err != nil {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.err.Error())
	}
	return result
}
