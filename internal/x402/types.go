// Package x402 implements the server side of the x402 payment protocol:
// payment requirement construction, facilitator-backed verification and
// settlement of client-supplied payment proofs.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version this service speaks.
const X402Version = 1

// PaymentHeader is the request header carrying the client's payment proof,
// base64-encoded JSON of PaymentPayload.
const PaymentHeader = "X-PAYMENT"

// Network identifies a blockchain plus environment, e.g. "solana-devnet".
type Network string

const (
	NetworkSolanaMainnet Network = "solana"
	NetworkSolanaDevnet  Network = "solana-devnet"
	NetworkBase          Network = "base"
	NetworkBaseSepolia   Network = "base-sepolia"
)

// Kind is the closed set of network families the service can build
// payment requirements for. Descriptor construction dispatches on Kind,
// so adding a family is a compile-time extension.
type Kind int

const (
	KindSolana Kind = iota
	KindEVM
)

func (n Network) Kind() (Kind, error) {
	switch n {
	case NetworkSolanaMainnet, NetworkSolanaDevnet:
		return KindSolana, nil
	case NetworkBase, NetworkBaseSepolia:
		return KindEVM, nil
	default:
		return 0, fmt.Errorf("unsupported network %q", n)
	}
}

func (n Network) String() string { return string(n) }

// PaymentRequirements is one acceptable payment descriptor: what must be
// paid, in which asset, on which network, to which address.
type PaymentRequirements struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Resource          string            `json:"resource"`
	Description       string            `json:"description"`
	MimeType          string            `json:"mimeType"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Asset             string            `json:"asset"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// PaymentRequiredResponse is the 402 body enumerating every descriptor
// the server accepts, so a compliant client can pick a network and
// construct a proof.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// PaymentPayload is the decoded form of the X-PAYMENT header. Payload is
// scheme/network specific and opaque to this service; the facilitator
// interprets it.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// DecodePaymentHeader parses the base64 JSON proof from the X-PAYMENT
// header value.
func DecodePaymentHeader(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	var pp PaymentPayload
	if err := json.Unmarshal(raw, &pp); err != nil {
		return nil, fmt.Errorf("payment header is not valid JSON: %w", err)
	}
	if pp.Scheme == "" || pp.Network == "" || len(pp.Payload) == 0 {
		return nil, fmt.Errorf("payment header is missing scheme, network or payload")
	}
	return &pp, nil
}

// verifyRequest is the facilitator /verify and /settle request body.
type verifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      *PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// verifyResponse is the facilitator /verify response body.
type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// settleResponse is the facilitator /settle response body.
type settleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Status is the terminal state of one verification attempt. Each request
// starts awaiting payment and lands on exactly one of these.
type Status int

const (
	StatusVerified Status = iota
	StatusRejected
	StatusUnavailable
)

// Outcome is the result of handing a proof to the facilitator. For
// StatusVerified the matched descriptor, settlement transaction reference
// and payer address are set; for StatusRejected only Reason is; for
// StatusUnavailable Err carries the transport failure.
type Outcome struct {
	Status     Status
	Matched    *PaymentRequirements
	Settlement string
	Payer      string
	Reason     string
	Err        error
}
