package middlewarex

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"topupgate/internal/metrics"
	"topupgate/internal/x402"
)

// RequirePayment gates a route behind an x402 micropayment. Requests
// without a valid X-PAYMENT proof get a 402 enumerating the full
// acceptance set; requests whose proof the facilitator verifies and
// settles reach the wrapped handler exactly once, with the matched
// descriptor and settlement reference in the request context.
//
// The middleware holds no per-request state beyond the request itself
// and keeps no record of proofs across requests: replaying a settled
// proof is rejected by the facilitator, not here.
func RequirePayment(accepts []x402.PaymentRequirements, verifier x402.Verifier, rec metrics.Recorder) func(http.Handler) http.Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(x402.PaymentHeader)
			if header == "" {
				rec.IncCounter(metrics.PaymentRequired, nil)
				paymentRequired(w, accepts, "payment required")
				return
			}

			proof, err := x402.DecodePaymentHeader(header)
			if err != nil {
				rec.IncCounter(metrics.PaymentRejected, nil)
				paymentRequired(w, accepts, err.Error())
				return
			}

			// Bounded context for the facilitator round-trips.
			ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
			defer cancel()

			outcome := verifier.Verify(ctx, proof, accepts)
			switch outcome.Status {
			case x402.StatusVerified:
				rec.IncCounter(metrics.PaymentVerified, map[string]string{"network": proof.Network})

				paid, _ := strconv.ParseInt(outcome.Matched.MaxAmountRequired, 10, 64)
				vp := VerifiedPayment{
					Requirements:   *outcome.Matched,
					SettlementRef:  outcome.Settlement,
					Payer:          outcome.Payer,
					IdempotencyKey: idempotencyKey(header),
					PaidAmount:     paid,
				}
				setSettlementHeader(w, outcome)
				next.ServeHTTP(w, r.WithContext(WithPayment(r.Context(), vp)))

			case x402.StatusRejected:
				rec.IncCounter(metrics.PaymentRejected, map[string]string{"network": proof.Network})
				paymentRequired(w, accepts, outcome.Reason)

			case x402.StatusUnavailable:
				rec.IncCounter(metrics.FacilitatorUnreachable, map[string]string{"network": proof.Network})
				log.Error().Err(outcome.Err).Msg("facilitator unreachable")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "Payment verification unavailable",
					"details": outcome.Err.Error(),
				})
			}
		})
	}
}

// idempotencyKey derives a stable key from the raw proof so the ledger
// can recognize a resubmission of the same settled payment.
func idempotencyKey(header string) string {
	sum := sha256.Sum256([]byte(header))
	return fmt.Sprintf("%x", sum)
}

func paymentRequired(w http.ResponseWriter, accepts []x402.PaymentRequirements, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(x402.PaymentRequiredResponse{
		X402Version: x402.X402Version,
		Accepts:     accepts,
		Error:       reason,
	})
}

// setSettlementHeader exposes the settlement outcome to the client per
// the x402 convention.
func setSettlementHeader(w http.ResponseWriter, outcome x402.Outcome) {
	body, err := json.Marshal(map[string]any{
		"success":     true,
		"transaction": outcome.Settlement,
		"network":     outcome.Matched.Network,
		"payer":       outcome.Payer,
	})
	if err != nil {
		return
	}
	w.Header().Set("X-PAYMENT-RESPONSE", base64.StdEncoding.EncodeToString(body))
}
