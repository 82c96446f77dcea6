// Package matching evaluates compatibility and execution terms over
// encrypted orders. Everything here is a pure function of the ledger: no
// state, no side effects, and no decryption — results stay ciphertext
// until someone explicitly runs the reveal protocol on them.
package matching

import (
	"errors"
	"fmt"
	"math"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/fhe"
)

var ErrInactiveOrder = errors.New("order is not active")

// Book is the read-only ledger view the evaluator scans.
type Book interface {
	Len() int
	Order(id uint64) (ledger.Order, bool)
	BuyEntry(id uint64) (fhe.Ciphertext, bool)
	SellEntry(id uint64) (fhe.Ciphertext, bool)
}

type Evaluator struct {
	scheme fhe.Scheme
	book   Book
}

func NewEvaluator(scheme fhe.Scheme, book Book) *Evaluator {
	return &Evaluator{scheme: scheme, book: book}
}

// BestBidAsk scans every book slot and returns the encrypted best bid and
// best ask. The scan does a fixed amount of homomorphic work per slot with
// no data-dependent branching on encrypted content; the only plaintext
// input is each order's public active flag. Both outputs remain
// ciphertext: the bid is enc(0) and the ask enc(MaxUint64) when the
// respective side is empty.
func (e *Evaluator) BestBidAsk() (encBid, encAsk fhe.Ciphertext, err error) {
	bid, err := e.scheme.Encrypt(0)
	if err != nil {
		return nil, nil, fmt.Errorf("best bid/ask: %w", err)
	}
	ask, err := e.scheme.Encrypt(math.MaxUint64)
	if err != nil {
		return nil, nil, fmt.Errorf("best bid/ask: %w", err)
	}
	askCeiling := ask
	encZero, err := e.scheme.Encrypt(0)
	if err != nil {
		return nil, nil, fmt.Errorf("best bid/ask: %w", err)
	}

	n := uint64(e.book.Len())
	for id := uint64(1); id <= n; id++ {
		o, ok := e.book.Order(id)
		if !ok {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, ledger.ErrNotFound)
		}
		buyEntry, ok := e.book.BuyEntry(id)
		if !ok {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, ledger.ErrNotFound)
		}
		// Only cancel wipes slots; an order consumed by a match keeps its
		// real masked price, so inactive orders contribute the neutral
		// value on both sides via the active flag.
		if !o.Active {
			buyEntry = encZero
		}
		// Neutral slots hold enc(0), which can never beat a running bid
		// that starts at enc(0), so inactive and sell-side orders drop
		// out of the bid scan for free.
		higher, err := e.scheme.Gt(buyEntry, bid)
		if err != nil {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, err)
		}
		bid, err = e.scheme.Select(higher, buyEntry, bid)
		if err != nil {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, err)
		}

		sellEntry, ok := e.book.SellEntry(id)
		if !ok {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, ledger.ErrNotFound)
		}
		if !o.Active {
			sellEntry = encZero
		}
		// For the ask scan a masked zero would win every comparison, so
		// lift zero slots to the ceiling before comparing.
		masked, err := e.scheme.EqConst(sellEntry, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, err)
		}
		candidate, err := e.scheme.Select(masked, askCeiling, sellEntry)
		if err != nil {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, err)
		}
		lower, err := e.scheme.Lt(candidate, ask)
		if err != nil {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, err)
		}
		ask, err = e.scheme.Select(lower, candidate, ask)
		if err != nil {
			return nil, nil, fmt.Errorf("best bid/ask: order %d: %w", id, err)
		}
	}
	return bid, ask, nil
}

// CanMatch returns the encrypted conjunction of the four match conditions:
// the first order is a buy, the second a sell, the buy price covers the
// sell price, and the buy amount covers the sell amount. The result is
// deliberately not decrypted here; revealing compatibility is a separate,
// explicit decision made through the reveal protocol.
func (e *Evaluator) CanMatch(buyID, sellID uint64) (fhe.Ciphertext, error) {
	buy, sell, err := e.pair(buyID, sellID)
	if err != nil {
		return nil, err
	}
	if !buy.Active {
		return nil, fmt.Errorf("can match: order %d: %w", buyID, ErrInactiveOrder)
	}
	if !sell.Active {
		return nil, fmt.Errorf("can match: order %d: %w", sellID, ErrInactiveOrder)
	}

	isBuy, err := e.scheme.EqConst(buy.EncSide, ledger.SideBuy)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}
	isSell, err := e.scheme.EqConst(sell.EncSide, ledger.SideSell)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}
	priceOK, err := e.scheme.Ge(buy.EncPrice, sell.EncPrice)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}
	amountOK, err := e.scheme.Ge(buy.EncAmount, sell.EncAmount)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}

	out, err := e.scheme.And(isBuy, isSell)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}
	out, err = e.scheme.And(out, priceOK)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}
	out, err = e.scheme.And(out, amountOK)
	if err != nil {
		return nil, fmt.Errorf("can match: %w", err)
	}
	return out, nil
}

// ExecutionPrice is the encrypted midpoint (price(buy) + price(sell)) / 2.
// Integer division truncates toward zero; callers must not assume rounding
// to nearest.
func (e *Evaluator) ExecutionPrice(buyID, sellID uint64) (fhe.Ciphertext, error) {
	buy, sell, err := e.pair(buyID, sellID)
	if err != nil {
		return nil, err
	}
	sum, err := e.scheme.Add(buy.EncPrice, sell.EncPrice)
	if err != nil {
		return nil, fmt.Errorf("execution price: %w", err)
	}
	mid, err := e.scheme.DivConst(sum, 2)
	if err != nil {
		return nil, fmt.Errorf("execution price: %w", err)
	}
	return mid, nil
}

// ExecutionAmount is the encrypted minimum of the two order amounts.
func (e *Evaluator) ExecutionAmount(buyID, sellID uint64) (fhe.Ciphertext, error) {
	buy, sell, err := e.pair(buyID, sellID)
	if err != nil {
		return nil, err
	}
	buySmaller, err := e.scheme.Lt(buy.EncAmount, sell.EncAmount)
	if err != nil {
		return nil, fmt.Errorf("execution amount: %w", err)
	}
	out, err := e.scheme.Select(buySmaller, buy.EncAmount, sell.EncAmount)
	if err != nil {
		return nil, fmt.Errorf("execution amount: %w", err)
	}
	return out, nil
}

func (e *Evaluator) pair(buyID, sellID uint64) (buy, sell ledger.Order, err error) {
	buy, ok := e.book.Order(buyID)
	if !ok {
		return ledger.Order{}, ledger.Order{}, fmt.Errorf("order %d: %w", buyID, ledger.ErrNotFound)
	}
	sell, ok = e.book.Order(sellID)
	if !ok {
		return ledger.Order{}, ledger.Order{}, fmt.Errorf("order %d: %w", sellID, ledger.ErrNotFound)
	}
	return buy, sell, nil
}
