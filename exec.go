package sqlkit

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ExecQuerier is the sole contract the builder needs from the transport
// layer. *sql.DB, *sql.Tx and pooled wrappers all satisfy it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Row is one result row in normalized tabular shape.
type Row = map[string]any

// QueryLog records the most recently executed statement for diagnostics.
type QueryLog struct {
	ID        uuid.UUID
	SQL       string
	Params    []any
	Timestamp time.Time
	Duration  time.Duration
}

// WriteResult reports the outcome of a write operation. Returned holds the
// RETURNING rows on backends that support them.
type WriteResult struct {
	RowsAffected int64
	LastInsertID int64
	Returned     []Row
}

// LastQuery returns the record of the most recent execution, or nil if
// nothing has executed yet.
func (b *Builder) LastQuery() *QueryLog {
	return b.lastQuery
}

// runner routes execution through the open transaction when there is one.
func (b *Builder) runner() ExecQuerier {
	if b.tx.tx != nil {
		return b.tx.tx
	}
	return b.conn
}

func (b *Builder) record(sql string, params []any, start time.Time) {
	b.lastQuery = &QueryLog{
		ID:        uuid.New(),
		SQL:       sql,
		Params:    params,
		Timestamp: start,
		Duration:  time.Since(start),
	}
	b.logger.Debugf("executed %s with %d params in %s", sql, len(params), b.lastQuery.Duration)
}

// surfaceErr folds a transport error into the taxonomy, distinguishing the
// client-side timeout from backend-reported errors.
func (b *Builder) surfaceErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return timeoutErr(err)
	}
	return b.dialect.ClassifyError(err)
}

func (b *Builder) execQuery(ctx context.Context, query string, params []any) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.QueryTimeout)
	defer cancel()
	start := time.Now()
	rows, err := b.runner().QueryContext(ctx, query, params...)
	b.record(query, params, start)
	if err != nil {
		return nil, b.surfaceErr(ctx, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, b.surfaceErr(ctx, err)
	}
	return out, nil
}

func (b *Builder) execWrite(ctx context.Context, query string, params []any) (*WriteResult, error) {
	query = b.dialect.ConvertPlaceholders(query)
	ctx, cancel := context.WithTimeout(ctx, b.cfg.QueryTimeout)
	defer cancel()
	start := time.Now()
	if b.dialect.SupportsReturning {
		rows, err := b.runner().QueryContext(ctx, query, params...)
		b.record(query, params, start)
		if err != nil {
			return nil, b.surfaceErr(ctx, err)
		}
		defer rows.Close()
		returned, err := scanRows(rows)
		if err != nil {
			return nil, b.surfaceErr(ctx, err)
		}
		return &WriteResult{RowsAffected: int64(len(returned)), Returned: returned}, nil
	}
	res, err := b.runner().ExecContext(ctx, query, params...)
	b.record(query, params, start)
	if err != nil {
		return nil, b.surfaceErr(ctx, err)
	}
	out := &WriteResult{}
	// database/sql drivers may not support either; both are best effort.
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// scanRows converts sql.Rows into the normalized Row shape. Byte slices are
// copied to strings since drivers reuse their buffers between calls to Next.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if raw, ok := vals[i].([]byte); ok {
				row[c] = string(raw)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Get compiles the accumulated SELECT state, executes it and returns the
// rows. The builder resets on both the success and the failure path so a
// failed query never pollutes the next one.
func (b *Builder) Get(ctx context.Context) ([]Row, error) {
	query, params, err := b.ToSQL()
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execQuery(ctx, query, params)
}

// First narrows the query to one row and returns it, or ErrNotFound.
func (b *Builder) First(ctx context.Context) (Row, error) {
	rows, err := b.Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count executes the accumulated query with the projection swapped for a
// COUNT aggregate and returns the result. Passing no field counts all rows.
func (b *Builder) Count(ctx context.Context, field ...string) (int64, error) {
	target := "*"
	if len(field) > 0 && field[0] != "" {
		target = b.quote(field[0])
	}
	saved := b.selectFields
	b.selectFields = []string{"COUNT(" + target + ") AS aggregate"}
	query, params, err := b.ToSQL()
	b.selectFields = saved
	b.resetState()
	if err != nil {
		return 0, err
	}
	rows, err := b.execQuery(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["aggregate"]), nil
}

// Exists narrows the query to `SELECT 1 ... LIMIT 1` and reports whether any
// row matched.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	b.selectFields = []string{"1"}
	query, params, err := b.Limit(1).ToSQL()
	b.resetState()
	if err != nil {
		return false, err
	}
	rows, err := b.execQuery(ctx, query, params)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Chunk pages through the result set sequentially, invoking fn with each
// page and its 1-based number. Iteration stops on an empty page, a short
// page, or fn returning false. It returns the total rows processed. Each
// page runs against a clone so the snapshot never mutates mid-iteration.
func (b *Builder) Chunk(ctx context.Context, size int, fn func(rows []Row, page int) bool) (int, error) {
	if size < 1 {
		b.resetState()
		return 0, validationErrf("chunk size must be positive")
	}
	snapshot := b.Clone()
	b.resetState()
	total := 0
	for page := 1; ; page++ {
		c := snapshot.Clone()
		rows, err := c.LimitOffset(size, (page-1)*size).Get(ctx)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			return total, nil
		}
		total += len(rows)
		if !fn(rows, page) || len(rows) < size {
			return total, nil
		}
	}
}

// Insert writes one row.
func (b *Builder) Insert(ctx context.Context, table string, row Row) (*WriteResult, error) {
	query, params, err := b.compileInsert(table, []Row{row})
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// InsertBatch writes multiple rows in one statement. All rows must share an
// identical field set; a mismatch is a hard validation error.
func (b *Builder) InsertBatch(ctx context.Context, table string, rows []Row) (*WriteResult, error) {
	query, params, err := b.compileInsert(table, rows)
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// InsertOrUpdate performs the backend-specific upsert. conflictCols are
// required on Postgres and ignored on the MySQL family.
func (b *Builder) InsertOrUpdate(ctx context.Context, table string, row Row, conflictCols ...string) (*WriteResult, error) {
	query, params, err := b.compileUpsert(table, row, conflictCols)
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// Update writes the given assignments, constrained by the accumulated WHERE
// state. With a nil data map the assignments accumulated via Set are used.
func (b *Builder) Update(ctx context.Context, table string, data map[string]any) (*WriteResult, error) {
	cols, vals := b.setCols, b.setVals
	if len(data) > 0 {
		cols = sortedKeys(data)
		vals = make([]any, 0, len(cols))
		for _, c := range cols {
			vals = append(vals, data[c])
		}
	}
	query, params, err := b.compileUpdate(table, cols, vals)
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// Delete removes rows matching the accumulated WHERE state.
func (b *Builder) Delete(ctx context.Context, table string) (*WriteResult, error) {
	query, params, err := b.compileDelete(table)
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// Increment bumps a numeric column by amount.
func (b *Builder) Increment(ctx context.Context, table, field string, amount int) (*WriteResult, error) {
	query, params, err := b.compileCounterUpdate(table, field, "+", amount)
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// Decrement lowers a numeric column by amount.
func (b *Builder) Decrement(ctx context.Context, table, field string, amount int) (*WriteResult, error) {
	query, params, err := b.compileCounterUpdate(table, field, "-", amount)
	b.resetState()
	if err != nil {
		return nil, err
	}
	return b.execWrite(ctx, query, params)
}

// Query runs a raw statement through the builder's runner and timeout,
// bypassing compilation entirely.
func (b *Builder) Query(ctx context.Context, query string, params ...any) ([]Row, error) {
	return b.execQuery(ctx, query, params)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		parsed, _ := strconv.ParseInt(string(n), 10, 64)
		return parsed
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}
