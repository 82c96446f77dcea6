package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/veildex/darkbook/pkg/events"
	"github.com/veildex/darkbook/pkg/fhe"
)

// Persister is the write-through hook the storage layer implements.
// A nil Persister keeps the ledger memory-only (tests, dry runs).
// SaveSubmit and SaveCancel must write all their records atomically: a
// failed call leaves nothing of the operation on disk.
type Persister interface {
	SaveSubmit(o *Order, sh *Shadow, buyEntry, sellEntry fhe.Ciphertext) error
	SaveCancel(o *Order, buyEntry, sellEntry fhe.Ciphertext) error
	SaveOrder(o *Order) error
	SaveShadow(id uint64, s *Shadow) error
}

// Ledger is the sole owner of orders, shadows, and the two book sequences.
// All mutations serialize behind one mutex; every operation validates
// before it mutates, so a failed call leaves no partial state.
type Ledger struct {
	mu sync.RWMutex

	scheme fhe.Scheme

	orders  []*Order  // index = id-1
	shadows []*Shadow // aligned with orders

	// Masked book sequences, aligned by id-1. Exactly one of the pair
	// carries the real encrypted price; the other carries encrypted zero,
	// chosen by homomorphic select on the encrypted side. A cancelled
	// order's slots both hold encrypted zero forever.
	buyBook  []fhe.Ciphertext
	sellBook []fhe.Ciphertext

	bus     *events.Bus
	persist Persister
	log     *zap.Logger
}

func New(scheme fhe.Scheme, bus *events.Bus, persist Persister, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		scheme:  scheme,
		bus:     bus,
		persist: persist,
		log:     log,
	}
}

// Submit stores a new active order and appends its masked price to both
// book sequences. The side value is never inspected in plaintext: the
// buy/sell masks are computed homomorphically.
func (l *Ledger) Submit(trader common.Address, encPrice, encAmount, encSide fhe.Ciphertext) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	encZero, err := l.scheme.Encrypt(0)
	if err != nil {
		return 0, fmt.Errorf("submit: %w", err)
	}
	isBuy, err := l.scheme.EqConst(encSide, SideBuy)
	if err != nil {
		return 0, fmt.Errorf("submit: side mask: %w", err)
	}
	isSell, err := l.scheme.EqConst(encSide, SideSell)
	if err != nil {
		return 0, fmt.Errorf("submit: side mask: %w", err)
	}
	buyEntry, err := l.scheme.Select(isBuy, encPrice, encZero)
	if err != nil {
		return 0, fmt.Errorf("submit: buy entry: %w", err)
	}
	sellEntry, err := l.scheme.Select(isSell, encPrice, encZero)
	if err != nil {
		return 0, fmt.Errorf("submit: sell entry: %w", err)
	}

	id := uint64(len(l.orders)) + 1
	o := &Order{
		ID:        id,
		Trader:    trader,
		EncPrice:  encPrice,
		EncAmount: encAmount,
		EncSide:   encSide,
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}
	sh := &Shadow{}

	if l.persist != nil {
		if err := l.persist.SaveSubmit(o, sh, buyEntry, sellEntry); err != nil {
			return 0, fmt.Errorf("submit: persist: %w", err)
		}
	}

	l.orders = append(l.orders, o)
	l.shadows = append(l.shadows, sh)
	l.buyBook = append(l.buyBook, buyEntry)
	l.sellBook = append(l.sellBook, sellEntry)

	l.log.Info("order submitted",
		zap.Uint64("order_id", id),
		zap.String("trader", trader.Hex()))
	if l.bus != nil {
		l.bus.Publish(events.OrderSubmitted{OrderID: id, At: o.CreatedAt})
	}
	return id, nil
}

// Cancel deactivates the caller's order and wipes both of its book slots
// with encrypted zero. The effect is permanent: a cancelled order can no
// longer influence a scan or be matched.
func (l *Ledger) Cancel(id uint64, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.get(id)
	if err != nil {
		return err
	}
	if o.Trader != caller {
		return fmt.Errorf("cancel order %d: %w", id, ErrUnauthorized)
	}
	if !o.Active {
		return fmt.Errorf("cancel order %d: %w", id, ErrNotActive)
	}

	zeroBuy, err := l.scheme.Encrypt(0)
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}
	zeroSell, err := l.scheme.Encrypt(0)
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", id, err)
	}

	o.Active = false
	if l.persist != nil {
		if err := l.persist.SaveCancel(o, zeroBuy, zeroSell); err != nil {
			o.Active = true
			return fmt.Errorf("cancel order %d: persist: %w", id, err)
		}
	}
	l.buyBook[id-1] = zeroBuy
	l.sellBook[id-1] = zeroSell

	l.log.Info("order cancelled", zap.Uint64("order_id", id))
	return nil
}

// Deactivate flips an order inactive without wiping its book slots; the
// match store calls it when a commit consumes the order. Idempotent by
// caller contract: committing against an already-inactive order is the
// matching process's mistake, not guarded here.
func (l *Ledger) Deactivate(id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, err := l.get(id)
	if err != nil {
		return err
	}
	if !o.Active {
		return nil
	}
	o.Active = false
	if l.persist != nil {
		if err := l.persist.SaveOrder(o); err != nil {
			o.Active = true
			return fmt.Errorf("deactivate order %d: persist: %w", id, err)
		}
	}
	return nil
}

// RevealShadow writes an order's plaintext shadow exactly once. Only the
// decryption coordinator calls this, after proof verification.
func (l *Ledger) RevealShadow(id uint64, price, amount, side uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.get(id); err != nil {
		return err
	}
	sh := l.shadows[id-1]
	if sh.Revealed {
		return fmt.Errorf("reveal order %d: %w", id, ErrAlreadyRevealed)
	}
	next := &Shadow{Price: price, Amount: amount, Side: side, Revealed: true}
	if l.persist != nil {
		if err := l.persist.SaveShadow(id, next); err != nil {
			return fmt.Errorf("reveal order %d: persist: %w", id, err)
		}
	}
	*sh = *next
	return nil
}

func (l *Ledger) get(id uint64) (*Order, error) {
	if id == 0 || id > uint64(len(l.orders)) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return l.orders[id-1], nil
}

// Order returns a copy of the order record.
func (l *Ledger) Order(id uint64) (Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, err := l.get(id)
	if err != nil {
		return Order{}, false
	}
	return *o, true
}

// Shadow returns a copy of the order's plaintext shadow.
func (l *Ledger) Shadow(id uint64) (Shadow, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id == 0 || id > uint64(len(l.shadows)) {
		return Shadow{}, false
	}
	return *l.shadows[id-1], true
}

// Len reports how many orders were ever submitted; the book sequences
// always have exactly this length.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

// BuyEntry returns the masked buy-side book slot for an order.
func (l *Ledger) BuyEntry(id uint64) (fhe.Ciphertext, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id == 0 || id > uint64(len(l.buyBook)) {
		return nil, false
	}
	return l.buyBook[id-1], true
}

// SellEntry returns the masked sell-side book slot for an order.
func (l *Ledger) SellEntry(id uint64) (fhe.Ciphertext, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id == 0 || id > uint64(len(l.sellBook)) {
		return nil, false
	}
	return l.sellBook[id-1], true
}

// Restore rebuilds in-memory state from persisted records. Slices must be
// aligned and complete; used once at boot before any traffic.
func (l *Ledger) Restore(orders []*Order, shadows []*Shadow, buyBook, sellBook []fhe.Ciphertext) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(orders)
	if len(shadows) != n || len(buyBook) != n || len(sellBook) != n {
		return fmt.Errorf("restore: misaligned state: %d orders, %d shadows, %d/%d book slots",
			n, len(shadows), len(buyBook), len(sellBook))
	}
	for i, o := range orders {
		if o.ID != uint64(i)+1 {
			return fmt.Errorf("restore: order at slot %d has id %d", i, o.ID)
		}
	}
	l.orders = orders
	l.shadows = shadows
	l.buyBook = buyBook
	l.sellBook = sellBook
	l.log.Info("ledger restored", zap.Int("orders", n))
	return nil
}
