package httpx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"topupgate/internal/config"
	"topupgate/internal/ledger"
	"topupgate/internal/services/topup"
	"topupgate/internal/x402"
)

type fakeVerifier struct {
	outcome x402.Outcome
}

func (f *fakeVerifier) Verify(ctx context.Context, proof *x402.PaymentPayload, accepts []x402.PaymentRequirements) x402.Outcome {
	return f.outcome
}

type ledgerStub struct {
	t          *testing.T
	getBody    string
	postBody   string
	postStatus int
	gets       int
	posts      int
	lastKey    string
}

func (l *ledgerStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			l.gets++
			w.Write([]byte(l.getBody))
		case http.MethodPost:
			l.posts++
			l.lastKey = r.Header.Get("Idempotency-Key")
			if l.postStatus != 0 {
				w.WriteHeader(l.postStatus)
			}
			w.Write([]byte(l.postBody))
		}
	})
}

func testRouter(t *testing.T, stub *ledgerStub, verifier x402.Verifier) http.Handler {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	accepts, err := x402.BuildAcceptanceSet(x402.TermsConfig{
		Amount:   1000000,
		Asset:    "USDC",
		Resource: "/topup",
		Networks: []x402.NetworkTerms{
			{Network: x402.NetworkSolanaDevnet, PayTo: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"},
		},
	})
	if err != nil {
		t.Fatalf("acceptance set: %v", err)
	}

	lc := ledger.NewClient(srv.URL, "secret", 5*time.Second)
	svc := topup.NewService(lc, nil, 1000000, nil)

	return NewRouter(RouterDependencies{
		Config:       config.Cfg{},
		Accepts:      accepts,
		Verifier:     verifier,
		LedgerClient: lc,
		TopupService: svc,
	})
}

func solanaProofHeader() string {
	return base64.StdEncoding.EncodeToString([]byte(
		`{"x402Version":1,"scheme":"exact","network":"solana-devnet","payload":{"transaction":"abc"}}`,
	))
}

func verifiedOutcome(accepts []x402.PaymentRequirements) x402.Outcome {
	matched := accepts[0]
	return x402.Outcome{
		Status:     x402.StatusVerified,
		Matched:    &matched,
		Settlement: "sig123",
		Payer:      "payer1",
	}
}

func TestBalanceRoute_EmptyWorkspaceReadsZero(t *testing.T) {
	stub := &ledgerStub{t: t, getBody: `{}`}
	r := testRouter(t, stub, &fakeVerifier{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/balance/acme", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Balance    json.Number `json:"balance"`
		Workspace  string      `json:"workspace"`
		NeedsTopup bool        `json:"needsTopup"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body.Balance.String() != "0" || body.Workspace != "acme" {
		t.Fatalf("expected zero balance for acme, got %+v", body)
	}
	if !body.NeedsTopup {
		t.Fatal("zero balance is below the topup threshold")
	}
}

func TestTopupRoute_NoPaymentNeverReachesLedger(t *testing.T) {
	stub := &ledgerStub{t: t, postBody: `{"balance": 1}`}
	r := testRouter(t, stub, &fakeVerifier{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/topup/acme", nil))

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
	if stub.posts != 0 {
		t.Fatal("unpaid request must never reach the ledger")
	}
	var body x402.PaymentRequiredResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad 402 body: %v", err)
	}
	if len(body.Accepts) != 1 || body.Accepts[0].Network != "solana-devnet" {
		t.Fatalf("402 must enumerate configured descriptors: %+v", body.Accepts)
	}
}

func TestTopupRoute_Success(t *testing.T) {
	stub := &ledgerStub{t: t, postBody: `{"balance": 1}`}

	accepts, _ := x402.BuildAcceptanceSet(x402.TermsConfig{
		Amount: 1000000,
		Asset:  "USDC",
		Networks: []x402.NetworkTerms{
			{Network: x402.NetworkSolanaDevnet, PayTo: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"},
		},
	})
	r := testRouter(t, stub, &fakeVerifier{outcome: verifiedOutcome(accepts)})

	req := httptest.NewRequest(http.MethodPost, "/topup/acme", nil)
	req.Header.Set(x402.PaymentHeader, solanaProofHeader())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}
	if stub.posts != 1 {
		t.Fatalf("ledger must be credited exactly once, got %d", stub.posts)
	}
	if stub.lastKey == "" {
		t.Fatal("ledger credit must carry an idempotency key")
	}
	var body struct {
		Success     bool        `json:"success"`
		NewBalance  json.Number `json:"newBalance"`
		Workspace   string      `json:"workspace"`
		PaidAmount  int64       `json:"paidAmount"`
		TopupAmount int64       `json:"topupAmount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !body.Success || body.Workspace != "acme" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.NewBalance.String() != "1" {
		t.Fatalf("ledger-reported balance expected, got %s", body.NewBalance)
	}
	if body.PaidAmount != 1000000 || body.TopupAmount != 1000000 {
		t.Fatalf("amounts must equal the configured cost: %+v", body)
	}
}

func TestTopupRoute_LedgerFailure(t *testing.T) {
	stub := &ledgerStub{t: t, postStatus: http.StatusInternalServerError, postBody: `oops`}

	accepts, _ := x402.BuildAcceptanceSet(x402.TermsConfig{
		Amount: 1000000,
		Asset:  "USDC",
		Networks: []x402.NetworkTerms{
			{Network: x402.NetworkSolanaDevnet, PayTo: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"},
		},
	})
	r := testRouter(t, stub, &fakeVerifier{outcome: verifiedOutcome(accepts)})

	req := httptest.NewRequest(http.MethodPost, "/topup/acme", nil)
	req.Header.Set(x402.PaymentHeader, solanaProofHeader())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("ledger 500 must surface as 500, got %d", rr.Code)
	}
	if stub.posts != 1 {
		t.Fatalf("failed credit must not be retried, got %d posts", stub.posts)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if body["error"] != "Topup failed" || body["details"] == "" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestHealthRoute(t *testing.T) {
	stub := &ledgerStub{t: t}
	r := testRouter(t, stub, &fakeVerifier{})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
