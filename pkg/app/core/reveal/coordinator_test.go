package reveal

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/app/core/match"
	"github.com/veildex/darkbook/pkg/app/core/matching"
	"github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/fhe"
	"github.com/veildex/darkbook/pkg/oracle"
)

var (
	alice    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	intruder = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fixture struct {
	scheme  *fhe.SealedScheme
	led     *ledger.Ledger
	eval    *matching.Evaluator
	matches *match.Store
	orc     *oracle.LocalOracle
	prover  *crypto.BLSSigner
	coord   *Coordinator

	// every callback the oracle delivered, for stale-replay tests
	delivered []oracle.Callback
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
	seed := make([]byte, 32)
	copy(seed, "coordinator-test-seed-0123456789")
	prover := crypto.NewBLSSignerFromSeed(seed)

	f := &fixture{
		scheme: scheme,
		led:    ledger.New(scheme, nil, nil, nil),
		prover: prover,
	}
	f.eval = matching.NewEvaluator(scheme, f.led)
	f.matches = match.NewStore(f.led, nil, nil, nil)
	f.orc = oracle.NewLocal(scheme, prover, 0, nil)
	f.coord = NewCoordinator(
		f.led, f.matches, f.orc, f.orc.Address(), f.orc.Pubkey(), nil, nil, nil)
	f.orc.SetSink(func(caller common.Address, cb oracle.Callback) error {
		f.delivered = append(f.delivered, cb)
		return f.coord.OnCallback(caller, cb)
	})
	return f
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

func (f *fixture) commit(t *testing.T, buyID, sellID uint64) common.Hash {
	t.Helper()
	encPrice, err := f.eval.ExecutionPrice(buyID, sellID)
	if err != nil {
		t.Fatalf("execution price: %v", err)
	}
	encAmount, err := f.eval.ExecutionAmount(buyID, sellID)
	if err != nil {
		t.Fatalf("execution amount: %v", err)
	}
	id, err := f.matches.Commit(buyID, sellID, encPrice, encAmount)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

func TestOrderRevealRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, alice, 2500, 2, ledger.SideBuy)

	reqID, err := f.coord.RequestRevealOrder(id, alice)
	if err != nil {
		t.Fatalf("request reveal: %v", err)
	}
	if reqID == 0 {
		t.Fatal("request id should be assigned")
	}

	// shadow still dark until the callback lands
	sh, _ := f.led.Shadow(id)
	if sh.Revealed {
		t.Fatal("shadow revealed before callback")
	}

	if err := f.orc.DeliverPending(); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	sh, _ = f.led.Shadow(id)
	if !sh.Revealed {
		t.Fatal("shadow not revealed after callback")
	}
	if sh.Price != 2500 || sh.Amount != 2 || sh.Side != ledger.SideBuy {
		t.Errorf("shadow = %+v, want the submitted plaintexts", sh)
	}
}

func TestRequestRevealGuards(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, alice, 2500, 2, ledger.SideBuy)

	if _, err := f.coord.RequestRevealOrder(id, bob); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("non-owner reveal: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.coord.RequestRevealOrder(99, alice); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("unknown order: err = %v, want ErrNotFound", err)
	}

	if _, err := f.coord.RequestRevealOrder(id, alice); err != nil {
		t.Fatalf("request reveal: %v", err)
	}
	if err := f.orc.DeliverPending(); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := f.coord.RequestRevealOrder(id, alice); !errors.Is(err, ledger.ErrAlreadyRevealed) {
		t.Errorf("reveal after revealed: err = %v, want ErrAlreadyRevealed", err)
	}
}

func TestCancelledOrderStillRevealable(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	if err := f.led.Cancel(id, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.coord.RequestRevealOrder(id, alice); err != nil {
		t.Fatalf("reveal of cancelled order: %v", err)
	}
	if err := f.orc.DeliverPending(); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	sh, _ := f.led.Shadow(id)
	if !sh.Revealed || sh.Price != 2500 {
		t.Errorf("shadow = %+v", sh)
	}
}

func TestCallbackGuards(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	reqID, err := f.coord.RequestRevealOrder(id, alice)
	if err != nil {
		t.Fatalf("request reveal: %v", err)
	}

	cleartexts := []uint64{2500, 2, ledger.SideBuy}
	goodProof := crypto.SignDecryption(f.prover, reqID, cleartexts)

	// wrong caller
	err = f.coord.OnCallback(intruder, oracle.Callback{
		RequestID: reqID, Cleartexts: cleartexts, Proof: goodProof,
	})
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("wrong caller: err = %v, want ErrUnauthorized", err)
	}

	// unknown request id
	err = f.coord.OnCallback(f.orc.Address(), oracle.Callback{
		RequestID: reqID + 100, Cleartexts: cleartexts,
		Proof: crypto.SignDecryption(f.prover, reqID+100, cleartexts),
	})
	if !errors.Is(err, ErrInvalidRequestID) {
		t.Errorf("unknown request: err = %v, want ErrInvalidRequestID", err)
	}

	// proof over different cleartexts
	err = f.coord.OnCallback(f.orc.Address(), oracle.Callback{
		RequestID: reqID, Cleartexts: []uint64{1, 1, 0}, Proof: goodProof,
	})
	if !errors.Is(err, ErrProofVerification) {
		t.Errorf("tampered cleartexts: err = %v, want ErrProofVerification", err)
	}

	// a rejected proof leaves the target pending, not revealed
	sh, _ := f.led.Shadow(id)
	if sh.Revealed {
		t.Fatal("rejected callback mutated the shadow")
	}
	if _, ok := f.coord.Pending(reqID); !ok {
		t.Fatal("request entry dropped by rejected callback")
	}

	// the honest callback still lands afterwards
	err = f.coord.OnCallback(f.orc.Address(), oracle.Callback{
		RequestID: reqID, Cleartexts: cleartexts, Proof: goodProof,
	})
	if err != nil {
		t.Fatalf("honest callback: %v", err)
	}
	sh, _ = f.led.Shadow(id)
	if !sh.Revealed {
		t.Fatal("shadow not revealed")
	}
}

func TestStaleSecondCallbackRejected(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	if _, err := f.coord.RequestRevealOrder(id, alice); err != nil {
		t.Fatalf("request reveal: %v", err)
	}
	if err := f.orc.DeliverPending(); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(f.delivered) != 1 {
		t.Fatalf("delivered = %d callbacks", len(f.delivered))
	}

	// replaying the exact same valid callback must fail AlreadyRevealed
	err := f.coord.OnCallback(f.orc.Address(), f.delivered[0])
	if !errors.Is(err, ledger.ErrAlreadyRevealed) {
		t.Errorf("replay: err = %v, want ErrAlreadyRevealed", err)
	}
}

func TestTwoOutstandingRequestsSameTarget(t *testing.T) {
	f := newFixture(t)
	id := f.submit(t, alice, 2500, 2, ledger.SideBuy)

	first, err := f.coord.RequestRevealOrder(id, alice)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := f.coord.RequestRevealOrder(id, alice)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if first == second {
		t.Fatal("requests share an id")
	}

	// whichever lands first wins, the other resolves AlreadyRevealed
	if err := f.orc.DeliverPending(); err == nil {
		t.Fatal("second delivery for the same target should surface AlreadyRevealed")
	} else if !errors.Is(err, ledger.ErrAlreadyRevealed) {
		t.Errorf("err = %v, want ErrAlreadyRevealed", err)
	}

	sh, _ := f.led.Shadow(id)
	if !sh.Revealed || sh.Price != 2500 {
		t.Errorf("shadow = %+v", sh)
	}
}

func TestMatchRevealRoundTrip(t *testing.T) {
	f := newFixture(t)
	buy := f.submit(t, alice, 2500, 2, ledger.SideBuy)
	sell := f.submit(t, bob, 2400, 2, ledger.SideSell)
	matchID := f.commit(t, buy, sell)

	if _, err := f.coord.RequestRevealMatch(matchID, intruder); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("non-participant: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.coord.RequestRevealMatch(common.Hash{0xde, 0xad}, alice); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("unknown match: err = %v, want ErrNotFound", err)
	}

	// either participant may reveal; the seller asks here
	if _, err := f.coord.RequestRevealMatch(matchID, bob); err != nil {
		t.Fatalf("request reveal: %v", err)
	}
	if err := f.orc.DeliverPending(); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	sh, ok := f.matches.Shadow(matchID)
	if !ok || !sh.Revealed {
		t.Fatal("match shadow not revealed")
	}
	if sh.Price != 2450 || sh.Amount != 2 {
		t.Errorf("match shadow = %+v, want price 2450 amount 2", sh)
	}
}
