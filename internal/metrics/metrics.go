// Package metrics records payment-gate and top-up outcomes.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Counter names used across the service.
const (
	PaymentRequired        = "payment_required"
	PaymentRejected        = "payment_rejected"
	PaymentVerified        = "payment_verified"
	FacilitatorUnreachable = "facilitator_unreachable"
	TopupApplied           = "topup_applied"
	TopupFailed            = "topup_failed"
)
