package sqlkit

import (
	"context"
	"database/sql"
)

// TxBeginner is the extra capability the runner must have for transactions.
// *sql.DB satisfies it; a builder constructed over a bare ExecQuerier that
// cannot begin transactions reports a transaction-state error.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// txState is the depth-counted transaction machine: a real BEGIN happens
// only on the 0 to 1 transition and a real COMMIT or ROLLBACK only on the
// 1 to 0 transition. failed poisons the whole stack so an error at any
// nesting depth ends in exactly one rollback at the outermost level.
type txState struct {
	tx     *sql.Tx
	depth  int
	failed bool
}

// InTransaction reports whether a transaction is open.
func (b *Builder) InTransaction() bool {
	return b.tx.depth > 0
}

// Begin starts a transaction. Beginning while one is active is a
// transaction-state error; there are no implicit savepoints.
func (b *Builder) Begin(ctx context.Context) error {
	if b.tx.depth > 0 {
		return txStateErrf("transaction already active")
	}
	beginner, ok := b.conn.(TxBeginner)
	if !ok {
		return txStateErrf("runner %T cannot begin transactions", b.conn)
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return b.dialect.ClassifyError(err)
	}
	b.tx = txState{tx: tx, depth: 1}
	return nil
}

// Commit commits the open transaction or reports a transaction-state error.
func (b *Builder) Commit() error {
	if b.tx.depth == 0 {
		return txStateErrf("no active transaction to commit")
	}
	err := b.tx.tx.Commit()
	b.tx = txState{}
	return b.dialect.ClassifyError(err)
}

// Rollback aborts the open transaction or reports a transaction-state error.
func (b *Builder) Rollback() error {
	if b.tx.depth == 0 {
		return txStateErrf("no active transaction to roll back")
	}
	err := b.tx.tx.Rollback()
	b.tx = txState{}
	return b.dialect.ClassifyError(err)
}

// Transaction wraps fn in a transaction. Nested calls are re-entrant: only
// the outermost level talks to the backend, so any depth of nesting issues
// exactly one BEGIN and one COMMIT, or one ROLLBACK if fn errors at any
// level. The original error always propagates to the outermost caller.
func (b *Builder) Transaction(ctx context.Context, fn func(tx *Builder) error) error {
	if b.tx.depth == 0 {
		if err := b.Begin(ctx); err != nil {
			return err
		}
	} else {
		b.tx.depth++
	}

	err := fn(b)
	b.tx.depth--
	if err != nil {
		b.tx.failed = true
	}
	if b.tx.depth > 0 {
		return err
	}

	if b.tx.failed {
		rbErr := b.tx.tx.Rollback()
		b.tx = txState{}
		if err == nil {
			// An inner level failed but an outer callback swallowed the
			// error; the work still must not commit.
			return txStateErrf("transaction aborted by a nested failure")
		}
		if rbErr != nil {
			b.logger.Errorf("rollback after failure: %v", rbErr)
		}
		return err
	}
	cmErr := b.tx.tx.Commit()
	b.tx = txState{}
	return b.dialect.ClassifyError(cmErr)
}
