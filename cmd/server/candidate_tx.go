package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	candidateservice "talentflow/internal/candidate/service"
	dErrors "talentflow/pkg/domain-errors"
	txcontext "talentflow/pkg/platform/tx"
)

const defaultCandidateTxTimeout = 5 * time.Second

// candidatePostgresTx binds one sql.Tx into ctx so the candidate, history and
// outbox stores all write through it.
type candidatePostgresTx struct {
	db      *sql.DB
	stores  candidateservice.TxStores
	timeout time.Duration
}

func newCandidatePostgresTx(db *sql.DB, stores candidateservice.TxStores) *candidatePostgresTx {
	return &candidatePostgresTx{db: db, stores: stores, timeout: defaultCandidateTxTimeout}
}

func (t *candidatePostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores candidateservice.TxStores) error) error {
	err := txcontext.Run(ctx, t.db, t.timeout, func(ctx context.Context) error {
		return fn(ctx, t.stores)
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	return err
}
