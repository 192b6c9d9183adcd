package topup

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"topupgate/internal/ledger"
	"topupgate/internal/store/postgres"
)

type fakeLedger struct {
	calls      int
	amounts    []decimal.Decimal
	keys       []string
	newBalance decimal.Decimal
	err        error
}

func (f *fakeLedger) ApplyCredit(ctx context.Context, workspace string, amount decimal.Decimal, key string) (decimal.Decimal, error) {
	f.calls++
	f.amounts = append(f.amounts, amount)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.newBalance, nil
}

type fakeReceipts struct {
	rows []postgres.ReceiptRow
}

func (f *fakeReceipts) InsertReceipt(ctx context.Context, rec postgres.ReceiptRow) error {
	f.rows = append(f.rows, rec)
	return nil
}

func testPayment() Payment {
	return Payment{
		Network:        "solana-devnet",
		Payer:          "payer1",
		SettlementRef:  "sig123",
		IdempotencyKey: "key123",
		PaidAmount:     1000000,
	}
}

func TestCredit_Success(t *testing.T) {
	fl := &fakeLedger{newBalance: decimal.RequireFromString("2.0")}
	fr := &fakeReceipts{}
	svc := NewService(fl, fr, 1000000, nil)

	res, err := svc.Credit(context.Background(), "acme", testPayment())
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if fl.calls != 1 {
		t.Fatalf("ledger must be called exactly once, got %d", fl.calls)
	}
	// 1,000,000 smallest units convert to 1 ledger unit.
	if !fl.amounts[0].Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected ledger amount 1, got %s", fl.amounts[0])
	}
	if fl.keys[0] != "key123" {
		t.Fatalf("idempotency key not forwarded: %q", fl.keys[0])
	}
	if res.Workspace != "acme" || !res.NewBalance.Equal(decimal.RequireFromString("2.0")) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TopupAmount != 1000000 || res.PaidAmount != 1000000 {
		t.Fatalf("amounts must report the configured cost: %+v", res)
	}
	if len(fr.rows) != 1 || fr.rows[0].Status != postgres.ReceiptApplied {
		t.Fatalf("expected one applied receipt, got %+v", fr.rows)
	}
}

func TestCredit_LedgerFailureIsNotRetried(t *testing.T) {
	fl := &fakeLedger{err: &ledger.ServiceError{Status: 500, Body: "ledger down"}}
	fr := &fakeReceipts{}
	svc := NewService(fl, fr, 1000000, nil)

	_, err := svc.Credit(context.Background(), "acme", testPayment())
	if err == nil {
		t.Fatal("expected error from ledger failure")
	}
	if fl.calls != 1 {
		t.Fatalf("failed credit must not be retried, got %d calls", fl.calls)
	}
	if len(fr.rows) != 1 {
		t.Fatalf("expected one failure receipt, got %d", len(fr.rows))
	}
	rec := fr.rows[0]
	if rec.Status != postgres.ReceiptFailed {
		t.Fatalf("expected failed receipt, got %s", rec.Status)
	}
	if rec.UpstreamStatus != 500 || rec.UpstreamBody != "ledger down" {
		t.Fatalf("upstream diagnosis not recorded: %+v", rec)
	}
	if rec.SettlementRef != "sig123" || rec.IdempotencyKey != "key123" {
		t.Fatalf("settlement linkage not recorded: %+v", rec)
	}
}

func TestCredit_NoStoreConfigured(t *testing.T) {
	fl := &fakeLedger{newBalance: decimal.NewFromInt(1)}
	svc := NewService(fl, nil, 500000, nil)

	res, err := svc.Credit(context.Background(), "acme", testPayment())
	if err != nil {
		t.Fatalf("credit without store failed: %v", err)
	}
	// 500,000 smallest units convert to 0.5 ledger units.
	if !fl.amounts[0].Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected 0.5, got %s", fl.amounts[0])
	}
	if res.TopupAmount != 500000 {
		t.Fatalf("topup amount must equal the configured cost, got %d", res.TopupAmount)
	}
}
