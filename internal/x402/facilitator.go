package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Verifier is the opaque payment-verification capability the gate
// depends on. One concrete implementation exists per facilitator
// protocol; the rest of the service never sees how proofs are checked.
type Verifier interface {
	Verify(ctx context.Context, proof *PaymentPayload, accepts []PaymentRequirements) Outcome
}

// FacilitatorClient verifies and settles payments through a remote x402
// facilitator over HTTP.
type FacilitatorClient struct {
	baseURL string
	client  *http.Client
}

var _ Verifier = (*FacilitatorClient)(nil)

func NewFacilitatorClient(baseURL string, timeout time.Duration) *FacilitatorClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FacilitatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Verify hands the proof to the facilitator against every descriptor
// matching the proof's scheme and network, in acceptance-set order. The
// first descriptor the facilitator validates is settled on-chain before
// Verify returns, so a Verified outcome means the payment is captured.
//
// The client keeps no record of proofs it has seen; rejecting an
// already-settled proof is the facilitator's settlement-uniqueness
// guarantee.
func (f *FacilitatorClient) Verify(ctx context.Context, proof *PaymentPayload, accepts []PaymentRequirements) Outcome {
	reason := "no matching payment requirements for scheme/network"
	for i := range accepts {
		req := accepts[i]
		if req.Scheme != proof.Scheme || req.Network != proof.Network {
			continue
		}

		var vr verifyResponse
		if err := f.post(ctx, "/verify", verifyRequest{
			X402Version:         X402Version,
			PaymentPayload:      proof,
			PaymentRequirements: req,
		}, &vr); err != nil {
			return Outcome{Status: StatusUnavailable, Err: err}
		}
		if !vr.IsValid {
			reason = vr.InvalidReason
			if reason == "" {
				reason = "payment verification failed"
			}
			continue
		}

		var sr settleResponse
		if err := f.post(ctx, "/settle", verifyRequest{
			X402Version:         X402Version,
			PaymentPayload:      proof,
			PaymentRequirements: req,
		}, &sr); err != nil {
			return Outcome{Status: StatusUnavailable, Err: err}
		}
		if !sr.Success {
			reason = sr.ErrorReason
			if reason == "" {
				reason = "payment settlement failed"
			}
			continue
		}

		log.Info().
			Str("network", req.Network).
			Str("payer", sr.Payer).
			Str("transaction", sr.Transaction).
			Msg("payment settled")
		return Outcome{
			Status:     StatusVerified,
			Matched:    &req,
			Settlement: sr.Transaction,
			Payer:      sr.Payer,
		}
	}
	return Outcome{Status: StatusRejected, Reason: reason}
}

// CheckSupport probes the facilitator's /supported endpoint, retrying
// with exponential backoff. Used once at startup so a misconfigured
// facilitator URL fails the process early instead of on the first
// paid request.
func (f *FacilitatorClient) CheckSupport(ctx context.Context) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/supported", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("facilitator /supported returned %d", resp.StatusCode)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(op, bo)
}

func (f *FacilitatorClient) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal facilitator request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("endpoint", endpoint).Msg("calling facilitator")
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read facilitator response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("facilitator %s returned %d: %s", endpoint, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode facilitator response: %w", err)
	}
	return nil
}
