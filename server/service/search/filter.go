package search

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	apierrors "github.com/hrygo/plaza/server/internal/errors"
)

// Filter is a compiled CEL predicate over search results, for example
//
//	type == "event" && score > 60.0
type Filter struct {
	program cel.Program
}

func filterEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("id", cel.IntType),
		cel.Variable("title", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("createdTs", cel.IntType),
	)
}

// CompileFilter parses and type-checks expr. The expression must yield a bool.
func CompileFilter(expr string) (*Filter, error) {
	env, err := filterEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter environment")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, apierrors.Wrap(issues.Err(), apierrors.ErrCodeBadRequest, "Invalid search filter")
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apierrors.BadRequest("Search filter must be a boolean expression")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, apierrors.Wrap(err, apierrors.ErrCodeBadRequest, "Invalid search filter")
	}
	return &Filter{program: program}, nil
}

// Match evaluates the filter for one result.
func (f *Filter) Match(r *Result) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"type":      r.Type,
		"id":        int64(r.ID),
		"title":     r.Title,
		"score":     r.Score,
		"createdTs": r.CreatedTs,
	})
	if err != nil {
		return false, apierrors.Wrap(err, apierrors.ErrCodeBadRequest, "Search filter failed")
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

// Apply keeps the results the filter matches.
func (f *Filter) Apply(results []*Result) ([]*Result, error) {
	kept := results[:0]
	for _, r := range results {
		ok, err := f.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}
