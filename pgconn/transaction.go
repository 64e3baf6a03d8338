package pgconn

import (
	"context"

	"github.com/pgwire/client/pgerr"
	"github.com/pgwire/client/pgquery"
)

// Tx is the transaction-scoped handle passed into a Transaction block. All
// queries issued through it are routed through the connection's
// transaction FIFO rather than its top-level one (spec.md §4.4).
type Tx struct {
	conn *Conn
	ctx  *pgquery.TxContext
}

// Execute runs sql within the transaction via the simple-query path.
func (t *Tx) Execute(ctx context.Context, sql string, values map[string]any) (int64, error) {
	q := pgquery.NewQuery(sql, values, true, false)
	q.Tx = t.ctx
	t.conn.enqueue(q)
	res, err := waitCtx(ctx, q)
	return res.AffectedRows, err
}

// Query runs sql within the transaction via the extended path.
func (t *Tx) Query(ctx context.Context, sql string, values map[string]any, allowReuse bool) (pgquery.Result, error) {
	q := pgquery.NewQuery(sql, values, false, allowReuse)
	q.Tx = t.ctx
	t.conn.enqueue(q)
	return waitCtx(ctx, q)
}

func (t *Tx) control(ctx context.Context, sql string) error {
	q := pgquery.NewQuery(sql, nil, true, false)
	q.Tx = t.ctx
	q.ControlStatement = true
	t.conn.enqueue(q)
	_, err := waitCtx(ctx, q)
	return err
}

// Transaction runs block inside BEGIN/COMMIT, issuing ROLLBACK and
// returning the *pgerr.Rollback as the error result if block returns one
// (callers separate it from a failure with errors.As), or issuing ROLLBACK
// and propagating block's error otherwise (spec.md §4.4).
func (c *Conn) Transaction(ctx context.Context, block func(*Tx) (any, error)) (any, error) {
	txCtx := c.machine.StartTransaction()
	tx := &Tx{conn: c, ctx: txCtx}

	if err := tx.control(ctx, "BEGIN"); err != nil {
		c.machine.EndTransaction()
		return nil, err
	}

	result, blockErr := block(tx)

	if rb, ok := blockErr.(*pgerr.Rollback); ok {
		if err := tx.control(ctx, "ROLLBACK"); err != nil {
			c.machine.EndTransaction()
			return nil, err
		}
		c.machine.EndTransaction()
		return nil, rb
	}

	if blockErr != nil {
		// Best-effort rollback; the original error is what's surfaced,
		// per spec.md §4.4 ("the outer future fails with that error").
		tx.control(ctx, "ROLLBACK")
		c.machine.EndTransaction()
		return nil, blockErr
	}

	if err := tx.control(ctx, "COMMIT"); err != nil {
		c.machine.EndTransaction()
		return nil, err
	}
	c.machine.EndTransaction()
	return result, nil
}
