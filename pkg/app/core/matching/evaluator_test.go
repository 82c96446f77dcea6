package matching

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/fhe"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fixture struct {
	scheme *fhe.SealedScheme
	led    *ledger.Ledger
	eval   *Evaluator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := fhe.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	scheme, err := fhe.NewSealedScheme(key)
	if err != nil {
		t.Fatalf("new scheme: %v", err)
	}
	led := ledger.New(scheme, nil, nil, nil)
	return &fixture{scheme: scheme, led: led, eval: NewEvaluator(scheme, led)}
}

func (f *fixture) submit(t *testing.T, trader common.Address, price, amount, side uint64) uint64 {
	t.Helper()
	encPrice, _ := f.scheme.Encrypt(price)
	encAmount, _ := f.scheme.Encrypt(amount)
	encSide, _ := f.scheme.Encrypt(side)
	id, err := f.led.Submit(trader, encPrice, encAmount, encSide)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}

func (f *fixture) decrypt(t *testing.T, ct fhe.Ciphertext) uint64 {
	t.Helper()
	v, err := f.scheme.Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return v
}

func TestBestBidAsk(t *testing.T) {
	f := newFixture(t)

	f.submit(t, alice, 2500, 2, ledger.SideBuy)
	f.submit(t, alice, 2450, 1, ledger.SideBuy)
	f.submit(t, bob, 2400, 2, ledger.SideSell)
	f.submit(t, bob, 2600, 3, ledger.SideSell)

	bid, ask, err := f.eval.BestBidAsk()
	if err != nil {
		t.Fatalf("best bid/ask: %v", err)
	}
	if got := f.decrypt(t, bid); got != 2500 {
		t.Errorf("best bid = %d, want 2500", got)
	}
	if got := f.decrypt(t, ask); got != 2400 {
		t.Errorf("best ask = %d, want 2400", got)
	}
}

func TestBestBidAskIgnoresCancelled(t *testing.T) {
	f := newFixture(t)

	f.submit(t, alice, 2500, 2, ledger.SideBuy)
	extremeBid := f.submit(t, alice, 99999, 1, ledger.SideBuy)
	f.submit(t, bob, 2400, 2, ledger.SideSell)
	extremeAsk := f.submit(t, bob, 1, 1, ledger.SideSell)

	if err := f.led.Cancel(extremeBid, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.led.Cancel(extremeAsk, bob); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	bid, ask, err := f.eval.BestBidAsk()
	if err != nil {
		t.Fatalf("best bid/ask: %v", err)
	}
	if got := f.decrypt(t, bid); got != 2500 {
		t.Errorf("best bid after cancelling extreme = %d, want 2500", got)
	}
	if got := f.decrypt(t, ask); got != 2400 {
		t.Errorf("best ask after cancelling extreme = %d, want 2400", got)
	}
}

func TestBestBidAskWrongSideNeverLeaks(t *testing.T) {
	f := newFixture(t)

	// A sell at an extreme high price must not become the best bid, and
	// a buy at an extreme low price must not become the best ask.
	f.submit(t, alice, 2500, 2, ledger.SideBuy)
	f.submit(t, bob, 99999, 1, ledger.SideSell)
	f.submit(t, alice, 1, 1, ledger.SideBuy)
	f.submit(t, bob, 2400, 2, ledger.SideSell)

	bid, ask, err := f.eval.BestBidAsk()
	if err != nil {
		t.Fatalf("best bid/ask: %v", err)
	}
	if got := f.decrypt(t, bid); got != 2500 {
		t.Errorf("best bid = %d, want 2500", got)
	}
	if got := f.decrypt(t, ask); got != 2400 {
		t.Errorf("best ask = %d, want 2400", got)
	}
}

func TestCanMatch(t *testing.T) {
	f := newFixture(t)

	buy := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	sell := f.submit(t, bob, 2400, 2, ledger.SideSell)
	richSell := f.submit(t, bob, 2600, 2, ledger.SideSell)
	bigSell := f.submit(t, bob, 2400, 5, ledger.SideSell)

	tests := []struct {
		name    string
		buyID   uint64
		sellID  uint64
		want    uint64
	}{
		{"compatible pair", buy, sell, 1},
		{"buy price below sell price", buy, richSell, 0},
		{"sell amount exceeds buy amount", buy, bigSell, 0},
		{"same order both sides", buy, buy, 0},
		{"sides swapped", sell, buy, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := f.eval.CanMatch(tt.buyID, tt.sellID)
			if err != nil {
				t.Fatalf("can match: %v", err)
			}
			if got := f.decrypt(t, enc); got != tt.want {
				t.Errorf("canMatch = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCanMatchErrors(t *testing.T) {
	f := newFixture(t)

	buy := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	sell := f.submit(t, bob, 2400, 2, ledger.SideSell)

	if _, err := f.eval.CanMatch(buy, 99); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("unknown sell id: err = %v, want ErrNotFound", err)
	}

	if err := f.led.Cancel(sell, bob); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.eval.CanMatch(buy, sell); !errors.Is(err, ErrInactiveOrder) {
		t.Errorf("cancelled sell: err = %v, want ErrInactiveOrder", err)
	}
}

func TestExecutionTerms(t *testing.T) {
	f := newFixture(t)

	buy := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	sell := f.submit(t, bob, 2400, 2, ledger.SideSell)

	encPrice, err := f.eval.ExecutionPrice(buy, sell)
	if err != nil {
		t.Fatalf("execution price: %v", err)
	}
	if got := f.decrypt(t, encPrice); got != 2450 {
		t.Errorf("execution price = %d, want 2450", got)
	}

	encAmount, err := f.eval.ExecutionAmount(buy, sell)
	if err != nil {
		t.Fatalf("execution amount: %v", err)
	}
	if got := f.decrypt(t, encAmount); got != 2 {
		t.Errorf("execution amount = %d, want 2", got)
	}
}

func TestExecutionPriceTruncates(t *testing.T) {
	f := newFixture(t)

	// (2501 + 2400) / 2 = 2450.5 truncates to 2450
	buy := f.submit(t, alice, 2501, 2, ledger.SideBuy)
	sell := f.submit(t, bob, 2400, 2, ledger.SideSell)

	encPrice, err := f.eval.ExecutionPrice(buy, sell)
	if err != nil {
		t.Fatalf("execution price: %v", err)
	}
	if got := f.decrypt(t, encPrice); got != 2450 {
		t.Errorf("execution price = %d, want 2450 (truncated)", got)
	}
}

func TestExecutionAmountMin(t *testing.T) {
	f := newFixture(t)

	buy := f.submit(t, alice, 2500, 7, ledger.SideBuy)
	sell := f.submit(t, bob, 2400, 3, ledger.SideSell)

	encAmount, err := f.eval.ExecutionAmount(buy, sell)
	if err != nil {
		t.Fatalf("execution amount: %v", err)
	}
	if got := f.decrypt(t, encAmount); got != 3 {
		t.Errorf("execution amount = %d, want 3", got)
	}
}
