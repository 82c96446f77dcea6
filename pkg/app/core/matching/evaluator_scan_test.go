package matching

import (
	"testing"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/app/core/match"
)

func TestBestBidAskIgnoresMatched(t *testing.T) {
	f := newFixture(t)

	// extreme pair that will be consumed by a match
	extremeBuy := f.submit(t, alice, 9000, 2, ledger.SideBuy)
	extremeSell := f.submit(t, bob, 100, 2, ledger.SideSell)

	f.submit(t, alice, 2500, 1, ledger.SideBuy)
	f.submit(t, bob, 2600, 1, ledger.SideSell)

	encPrice, err := f.eval.ExecutionPrice(extremeBuy, extremeSell)
	if err != nil {
		t.Fatalf("execution price: %v", err)
	}
	encAmount, err := f.eval.ExecutionAmount(extremeBuy, extremeSell)
	if err != nil {
		t.Fatalf("execution amount: %v", err)
	}
	store := match.NewStore(f.led, nil, nil, nil)
	if _, err := store.Commit(extremeBuy, extremeSell, encPrice, encAmount); err != nil {
		t.Fatalf("commit: %v", err)
	}

	encBid, encAsk, err := f.eval.BestBidAsk()
	if err != nil {
		t.Fatalf("best bid/ask: %v", err)
	}
	if bid := f.decrypt(t, encBid); bid != 2500 {
		t.Errorf("best bid = %d, want 2500 (matched order must not move the book)", bid)
	}
	if ask := f.decrypt(t, encAsk); ask != 2600 {
		t.Errorf("best ask = %d, want 2600 (matched order must not move the book)", ask)
	}
}
