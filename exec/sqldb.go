package exec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vk/sqlmapper/internal/ctxlog"
	"github.com/vk/sqlmapper/mapping"
)

// SQLExecutor runs bound statements against a database/sql pool.
type SQLExecutor struct {
	db *sql.DB
}

// NewSQLExecutor wraps db. The executor owns no transaction semantics; it
// issues each statement on the pool as-is.
func NewSQLExecutor(db *sql.DB) *SQLExecutor { return &SQLExecutor{db: db} }

func (e *SQLExecutor) bind(ms *mapping.MappedStatement, param any) (*mapping.BoundSql, []any, error) {
	bs, err := ms.SqlSource.BoundSql(param)
	if err != nil {
		return nil, nil, fmt.Errorf("statement %q: %w", ms.ID, err)
	}
	args := make([]any, 0, len(bs.ParameterMappings))
	for _, pm := range bs.ParameterMappings {
		v, err := bs.ParameterValue(pm)
		if err != nil {
			return nil, nil, fmt.Errorf("statement %q: binding %q: %w", ms.ID, pm.Property, err)
		}
		args = append(args, v)
	}
	return bs, args, nil
}

func (e *SQLExecutor) statementContext(ctx context.Context, ms *mapping.MappedStatement) (context.Context, context.CancelFunc) {
	if ms.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(ms.Timeout)*time.Second)
	}
	return ctx, func() {}
}

func (e *SQLExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, param any) ([]map[string]any, error) {
	bs, args, err := e.bind(ms, param)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("executing query", "statement", ms.ID, "sql", bs.SQL)

	ctx, cancel := e.statementContext(ctx, ms)
	defer cancel()
	rows, err := e.db.QueryContext(ctx, bs.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("statement %q: %w", ms.ID, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("statement %q: %w", ms.ID, err)
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("statement %q: %w", ms.ID, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statement %q: %w", ms.ID, err)
	}
	return out, nil
}

func (e *SQLExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (mapping.Result, error) {
	bs, args, err := e.bind(ms, param)
	if err != nil {
		return mapping.Result{}, err
	}
	ctxlog.FromContext(ctx).Debug("executing update", "statement", ms.ID, "sql", bs.SQL)

	ctx, cancel := e.statementContext(ctx, ms)
	defer cancel()
	res, err := e.db.ExecContext(ctx, bs.SQL, args...)
	if err != nil {
		return mapping.Result{}, fmt.Errorf("statement %q: %w", ms.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapping.Result{}, fmt.Errorf("statement %q: %w", ms.ID, err)
	}
	// Not every driver reports a last insert id; treat that as zero.
	lastID, err := res.LastInsertId()
	if err != nil {
		lastID = 0
	}
	return mapping.Result{RowsAffected: affected, LastInsertID: lastID}, nil
}
