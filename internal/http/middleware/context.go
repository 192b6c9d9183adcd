package middlewarex

import (
	"context"

	"topupgate/internal/x402"
)

type ctxKey string

const (
	ctxVerifiedPayment ctxKey = "verified_payment"
)

// VerifiedPayment is what the gate hands the protected handler: the
// descriptor the proof matched plus the settlement it produced.
type VerifiedPayment struct {
	Requirements   x402.PaymentRequirements
	SettlementRef  string
	Payer          string
	IdempotencyKey string
	PaidAmount     int64
}

func WithPayment(ctx context.Context, vp VerifiedPayment) context.Context {
	return context.WithValue(ctx, ctxVerifiedPayment, vp)
}

func Payment(ctx context.Context) (VerifiedPayment, bool) {
	v, ok := ctx.Value(ctxVerifiedPayment).(VerifiedPayment)
	return v, ok
}
