// Package filter evaluates CEL predicates over topic entries.
package filter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/watzon/topiccache/internal/topiccache"
)

var (
	ErrInvalidExpr = errors.New("invalid filter expression")
	ErrEvaluation  = errors.New("filter evaluation failed")
)

// maxPrograms bounds the compiled program cache. The cache is flushed when
// it fills up.
const maxPrograms = 256

// Engine compiles and caches filter expressions. An expression sees three
// variables: topic (string), types (list of string) and count (int).
type Engine struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("types", cel.ListType(cel.StringType)),
		cel.Variable("count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks expr and caches its program. It fails with ErrInvalidExpr
// when expr does not parse, does not type-check or does not yield a bool.
func (e *Engine) Compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpr, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("creating program: %w", err)
	}

	e.mu.Lock()
	if len(e.programs) >= maxPrograms {
		clear(e.programs)
	}
	e.programs[expr] = program
	e.mu.Unlock()

	return program, nil
}

// Match reports whether the entry for topic satisfies expr.
func (e *Engine) Match(expr, topic string, types topiccache.TypeList) (bool, error) {
	program, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	return match(program, topic, types)
}

// Apply removes from topics, in place, every entry that does not satisfy
// expr.
func (e *Engine) Apply(expr string, topics topiccache.TopicToTypes) error {
	program, err := e.Compile(expr)
	if err != nil {
		return err
	}

	for topic, types := range topics {
		ok, err := match(program, topic, types)
		if err != nil {
			return err
		}
		if !ok {
			delete(topics, topic)
		}
	}
	return nil
}

func match(program cel.Program, topic string, types topiccache.TypeList) (bool, error) {
	result, _, err := program.Eval(map[string]any{
		"topic": topic,
		"types": []string(types),
		"count": len(types),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}

	ok, isBool := result.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("%w: expression did not return boolean", ErrEvaluation)
	}
	return ok, nil
}

// Len returns the number of cached programs.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}
