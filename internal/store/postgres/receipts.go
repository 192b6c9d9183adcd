package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt statuses. "applied" means the ledger confirmed the credit;
// "failed" means the ledger call errored after the payment had already
// been captured, which is exactly the case reconciliation exists for.
const (
	ReceiptApplied = "applied"
	ReceiptFailed  = "failed"
)

type ReceiptRow struct {
	ID             int64           `json:"id"`
	Workspace      string          `json:"workspace"`
	Network        string          `json:"network"`
	Payer          string          `json:"payer"`
	SettlementRef  string          `json:"settlementRef"`
	IdempotencyKey string          `json:"idempotencyKey"`
	PaidAmount     int64           `json:"paidAmount"`
	TopupAmount    decimal.Decimal `json:"topupAmount"`
	Status         string          `json:"status"`
	UpstreamStatus int             `json:"upstreamStatus"`
	UpstreamBody   string          `json:"upstreamBody"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// InsertReceipt records one post-settlement ledger attempt. Conflicts on
// the idempotency key are ignored: a replayed proof must not produce a
// second receipt any more than a second credit.
func (r *Repo) InsertReceipt(ctx context.Context, rec ReceiptRow) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO topup_receipts (
			workspace, network, payer, settlement_ref, idempotency_key,
			paid_amount, topup_amount, status, upstream_status, upstream_body
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, rec.Workspace, rec.Network, rec.Payer, rec.SettlementRef, rec.IdempotencyKey,
		rec.PaidAmount, rec.TopupAmount, rec.Status, rec.UpstreamStatus, rec.UpstreamBody)
	return err
}

// FetchUnsurfacedFailures returns failed receipts that have not yet been
// flagged to operators.
func (r *Repo) FetchUnsurfacedFailures(ctx context.Context, limit int) ([]ReceiptRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, workspace, network, payer, settlement_ref, idempotency_key,
		       paid_amount, topup_amount, status, upstream_status, upstream_body, created_at
		  FROM topup_receipts
		 WHERE status=$1 AND surfaced_at IS NULL
		 ORDER BY id
		 LIMIT $2`,
		ReceiptFailed, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReceiptRow
	for rows.Next() {
		var rec ReceiptRow
		if err := rows.Scan(&rec.ID, &rec.Workspace, &rec.Network, &rec.Payer,
			&rec.SettlementRef, &rec.IdempotencyKey, &rec.PaidAmount, &rec.TopupAmount,
			&rec.Status, &rec.UpstreamStatus, &rec.UpstreamBody, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSurfaced stamps a failed receipt as reported so it is flagged to
// operators exactly once.
func (r *Repo) MarkSurfaced(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE topup_receipts SET surfaced_at=now() WHERE id=$1`, id)
	return err
}
