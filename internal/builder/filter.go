package builder

import (
	"fmt"
	"path/filepath"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL include expression evaluated against each
// existing candidate. The expression sees path, name, size and ext.
type Filter struct {
	expr    string
	program cel.Program
}

// CompileFilter compiles a boolean CEL expression. An empty expression
// returns a nil filter, which keeps every candidate.
func CompileFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("ext", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program %q: %w", expr, err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether the candidate with the given size should be kept.
func (f *Filter) Match(c Candidate, size int64) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"path": c.Path,
		"name": c.EntryName(),
		"size": size,
		"ext":  filepath.Ext(c.Path),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q for %s: %w", f.expr, c.Path, err)
	}

	keep, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, expected bool", f.expr, out.Value())
	}

	return keep, nil
}
