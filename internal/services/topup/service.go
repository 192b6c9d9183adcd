// Package topup coordinates a verified payment with the ledger credit it
// pays for. It runs only after the payment gate has captured a payment.
package topup

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"topupgate/internal/ledger"
	"topupgate/internal/metrics"
	"topupgate/internal/store/postgres"
)

// ledgerScaleDecimals is the fixed conversion between the payment's
// smallest-unit integer amounts and the ledger's decimal units:
// 10^6 smallest units equal one ledger unit. It does not vary by
// network.
const ledgerScaleDecimals = 6

// LedgerClient is the slice of the ledger API the orchestrator needs.
type LedgerClient interface {
	ApplyCredit(ctx context.Context, workspace string, amount decimal.Decimal, idempotencyKey string) (decimal.Decimal, error)
}

// ReceiptStore records credit attempts for reconciliation. May be nil
// when the service runs without a database.
type ReceiptStore interface {
	InsertReceipt(ctx context.Context, rec postgres.ReceiptRow) error
}

// Payment is the verified, already-settled payment a top-up is credited
// against. Its fields come from the gate, not the caller.
type Payment struct {
	Network        string
	Payer          string
	SettlementRef  string
	IdempotencyKey string
	PaidAmount     int64
}

// Result is a successful top-up.
type Result struct {
	Workspace   string
	NewBalance  decimal.Decimal
	PaidAmount  int64
	TopupAmount int64
}

type Service struct {
	ledger   LedgerClient
	receipts ReceiptStore
	cost     int64
	rec      metrics.Recorder
}

func NewService(lc LedgerClient, receipts ReceiptStore, topUpCost int64, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Service{ledger: lc, receipts: receipts, cost: topUpCost, rec: rec}
}

// TopupAmount is the configured credit per top-up, in smallest units.
func (s *Service) TopupAmount() int64 { return s.cost }

// Credit applies the configured top-up to the workspace. The ledger call
// is made exactly once: on failure the error is surfaced to the caller
// and a receipt is kept for the operator, but the credit is never
// retried here and the captured payment is never refunded. A blind retry
// could double-credit a workspace whose first response was lost in
// transit; the idempotency key plus the receipt trail is how that case
// gets reconciled instead.
func (s *Service) Credit(ctx context.Context, workspace string, pay Payment) (Result, error) {
	amount := decimal.NewFromInt(s.cost).Shift(-ledgerScaleDecimals)

	newBalance, err := s.ledger.ApplyCredit(ctx, workspace, amount, pay.IdempotencyKey)
	if err != nil {
		s.rec.IncCounter(metrics.TopupFailed, map[string]string{"network": pay.Network})
		s.record(ctx, workspace, pay, amount, postgres.ReceiptFailed, err)
		return Result{}, err
	}

	s.rec.IncCounter(metrics.TopupApplied, map[string]string{"network": pay.Network})
	s.record(ctx, workspace, pay, amount, postgres.ReceiptApplied, nil)

	log.Info().
		Str("workspace", workspace).
		Str("network", pay.Network).
		Str("settlement_ref", pay.SettlementRef).
		Str("new_balance", newBalance.String()).
		Msg("workspace credited")

	return Result{
		Workspace:   workspace,
		NewBalance:  newBalance,
		PaidAmount:  pay.PaidAmount,
		TopupAmount: s.cost,
	}, nil
}

func (s *Service) record(ctx context.Context, workspace string, pay Payment, amount decimal.Decimal, status string, cause error) {
	if s.receipts == nil {
		return
	}
	rec := postgres.ReceiptRow{
		Workspace:      workspace,
		Network:        pay.Network,
		Payer:          pay.Payer,
		SettlementRef:  pay.SettlementRef,
		IdempotencyKey: pay.IdempotencyKey,
		PaidAmount:     pay.PaidAmount,
		TopupAmount:    amount,
		Status:         status,
	}
	var svcErr *ledger.ServiceError
	if cause != nil {
		if errors.As(cause, &svcErr) {
			rec.UpstreamStatus = svcErr.Status
			rec.UpstreamBody = svcErr.Body
		} else {
			rec.UpstreamBody = cause.Error()
		}
	}
	if err := s.receipts.InsertReceipt(ctx, rec); err != nil {
		// The credit outcome is already decided; a receipt write
		// failure must not turn a successful top-up into an error.
		log.Error().Err(err).
			Str("workspace", workspace).
			Str("idempotency_key", pay.IdempotencyKey).
			Msg("failed to record topup receipt")
	}
}
