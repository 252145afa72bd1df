package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/polo52/polochat/internal/rowset"
	"github.com/polo52/polochat/internal/sqlguard"
)

// Executor runs guarded statements inside a READ ONLY transaction that is always rolled
// back. Combined with a reader role this keeps writes out even if validation is bypassed.
type Executor struct {
	db               *sql.DB
	statementTimeout time.Duration
}

func NewExecutor(db *sql.DB, statementTimeout time.Duration) *Executor {
	return &Executor{db: db, statementTimeout: statementTimeout}
}

func (e *Executor) QueryReadOnly(ctx context.Context, statement string, maxRows int) (rowset.ResultSet, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return rowset.ResultSet{}, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if e.statementTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", e.statementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, timeout); err != nil {
			return rowset.ResultSet{}, fmt.Errorf("set statement timeout: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx, sqlguard.LimitStatement(statement, rowset.FetchLimit(maxRows)))
	if err != nil {
		return rowset.ResultSet{}, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	return rowset.Scan(rows, maxRows)
}
