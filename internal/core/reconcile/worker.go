// Package reconcile surfaces top-ups whose payment was captured but
// whose ledger credit failed. The worker never re-submits a credit; a
// first call that actually succeeded upstream with a lost response would
// double-credit on retry. It reads the current ledger balance for
// context and raises each case to operators exactly once.
package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"topupgate/internal/ledger"
	"topupgate/internal/store/postgres"
)

type Worker struct {
	repo      *postgres.Repo
	ledger    *ledger.Client
	pollEvery time.Duration
	batch     int
}

func NewWorker(repo *postgres.Repo, lc *ledger.Client) *Worker {
	return &Worker{repo: repo, ledger: lc, pollEvery: 30 * time.Second, batch: 50}
}

func (w *Worker) Run(ctx context.Context) {
	log.Info().Msg("reconcile worker: started")
	t := time.NewTicker(w.pollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconcile worker: stopping")
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	recs, err := w.repo.FetchUnsurfacedFailures(ctx, w.batch)
	if err != nil {
		log.Error().Err(err).Msg("reconcile worker: fetch receipts failed")
		return
	}
	for _, rec := range recs {
		if err := w.surface(ctx, rec); err != nil {
			log.Error().Err(err).Int64("receipt_id", rec.ID).Msg("reconcile worker: surfacing failed")
			// Leave surfaced_at NULL so the next tick picks it up again.
		}
	}
}

func (w *Worker) surface(ctx context.Context, rec postgres.ReceiptRow) error {
	// Best-effort balance read; the workspace may have been credited
	// upstream even though our write "failed" (response lost in
	// transit), and the current balance is the operator's first clue.
	balance := "unknown"
	if bal, err := w.ledger.Balance(ctx, rec.Workspace); err == nil {
		balance = bal.String()
	}

	log.Error().
		Int64("receipt_id", rec.ID).
		Str("workspace", rec.Workspace).
		Str("network", rec.Network).
		Str("settlement_ref", rec.SettlementRef).
		Str("idempotency_key", rec.IdempotencyKey).
		Str("topup_amount", rec.TopupAmount.String()).
		Int("upstream_status", rec.UpstreamStatus).
		Str("upstream_body", rec.UpstreamBody).
		Str("current_balance", balance).
		Msg("captured payment without confirmed ledger credit: manual reconciliation required")

	return w.repo.MarkSurfaced(ctx, rec.ID)
}
