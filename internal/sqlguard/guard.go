package sqlguard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/polo52/polochat/internal/observability"
	"github.com/polo52/polochat/internal/rowset"
)

var (
	// ErrRejected marks a query that failed validation and never reached the database.
	ErrRejected = errors.New("sql rejected")
	// ErrExecution marks a query the database refused or failed to run.
	ErrExecution = errors.New("sql execution failed")
)

const (
	ReasonEmpty              = "empty"
	ReasonNotSelect          = "not_select"
	ReasonMultipleStatements = "multiple_statements"
	ReasonMalformed          = "malformed"
)

type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("sql rejected (%s)", e.Reason)
	}
	return fmt.Sprintf("sql rejected (%s): %s", e.Reason, e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// Executor runs a single validated statement on a connection that cannot write,
// regardless of what the statement text says.
type Executor interface {
	QueryReadOnly(ctx context.Context, statement string, maxRows int) (rowset.ResultSet, error)
}

type Guard struct {
	executor Executor
	maxRows  int
}

func New(executor Executor, maxRows int) *Guard {
	return &Guard{executor: executor, maxRows: maxRows}
}

// Validate returns the single executable statement contained in query. Trailing
// semicolons are tolerated; anything else after a separator is rejected.
func Validate(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", &RejectionError{Reason: ReasonEmpty}
	}
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return "", &RejectionError{Reason: ReasonNotSelect, Detail: "only SELECT statements are allowed"}
	}

	statements, err := splitStatements(trimmed)
	if err != nil {
		return "", &RejectionError{Reason: ReasonMalformed, Detail: err.Error()}
	}
	switch len(statements) {
	case 0:
		return "", &RejectionError{Reason: ReasonEmpty}
	case 1:
		return statements[0], nil
	default:
		return "", &RejectionError{Reason: ReasonMultipleStatements, Detail: fmt.Sprintf("found %d statements", len(statements))}
	}
}

// Execute validates query and runs it read-only. Nothing is retried.
func (g *Guard) Execute(ctx context.Context, query string) (rowset.ResultSet, error) {
	statement, err := Validate(query)
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			observability.ObserveSQLGuardRejection(rejection.Reason)
		}
		return rowset.ResultSet{}, err
	}
	if g == nil || g.executor == nil {
		return rowset.ResultSet{}, fmt.Errorf("%w: executor is not configured", ErrExecution)
	}

	result, err := g.executor.QueryReadOnly(ctx, statement, g.maxRows)
	if err != nil {
		return rowset.ResultSet{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	observability.ObserveQueryRows(result.Len())
	return result, nil
}

// LimitStatement caps a validated statement. The newlines keep a trailing line comment
// from swallowing the closing parenthesis.
func LimitStatement(statement string, maxRows int) string {
	if maxRows <= 0 {
		return statement
	}
	return fmt.Sprintf("SELECT * FROM (\n%s\n) AS polochat_q LIMIT %d", statement, maxRows)
}
