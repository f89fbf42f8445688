package dbexec

import (
	"context"
	"sync"
)

// Statement is one query seen by a RecordingExecutor.
type Statement struct {
	SQL  string
	Args []any
}

// RecordingExecutor wraps an executor and remembers every query it runs.
type RecordingExecutor struct {
	next QueryExecutor

	mu         sync.Mutex
	statements []Statement
}

// NewRecordingExecutor wraps next.
func NewRecordingExecutor(next QueryExecutor) *RecordingExecutor {
	return &RecordingExecutor{next: next}
}

func (e *RecordingExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	e.mu.Lock()
	e.statements = append(e.statements, Statement{SQL: query, Args: append([]any(nil), args...)})
	e.mu.Unlock()
	return e.next.QueryContext(ctx, query, args...)
}

// Statements returns a copy of the recorded queries in execution order.
func (e *RecordingExecutor) Statements() []Statement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Statement(nil), e.statements...)
}

// Count returns the number of recorded queries.
func (e *RecordingExecutor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.statements)
}

// Reset forgets recorded queries.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = nil
}
