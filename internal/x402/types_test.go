package x402

import (
	"encoding/base64"
	"testing"
)

func encodeProof(t *testing.T, raw string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestDecodePaymentHeader(t *testing.T) {
	header := encodeProof(t, `{"x402Version":1,"scheme":"exact","network":"solana-devnet","payload":{"transaction":"abc"}}`)
	pp, err := DecodePaymentHeader(header)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if pp.Scheme != "exact" || pp.Network != "solana-devnet" {
		t.Fatalf("unexpected payload: %+v", pp)
	}
	if len(pp.Payload) == 0 {
		t.Fatal("inner payload should be preserved")
	}
}

func TestDecodePaymentHeader_Malformed(t *testing.T) {
	cases := map[string]string{
		"not base64":      "!!!not-base64!!!",
		"not json":        encodeProof(t, "hello"),
		"missing scheme":  encodeProof(t, `{"network":"solana-devnet","payload":{}}`),
		"missing network": encodeProof(t, `{"scheme":"exact","payload":{}}`),
		"missing payload": encodeProof(t, `{"scheme":"exact","network":"solana-devnet"}`),
	}
	for name, header := range cases {
		if _, err := DecodePaymentHeader(header); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestNetworkKind(t *testing.T) {
	for _, n := range []Network{NetworkSolanaMainnet, NetworkSolanaDevnet} {
		if k, err := n.Kind(); err != nil || k != KindSolana {
			t.Fatalf("%s: expected solana kind, got %v %v", n, k, err)
		}
	}
	for _, n := range []Network{NetworkBase, NetworkBaseSepolia} {
		if k, err := n.Kind(); err != nil || k != KindEVM {
			t.Fatalf("%s: expected EVM kind, got %v %v", n, k, err)
		}
	}
	if _, err := Network("near").Kind(); err == nil {
		t.Fatal("expected error for unknown network")
	}
}
