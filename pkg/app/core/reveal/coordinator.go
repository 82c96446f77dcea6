// Package reveal is the decryption coordinator: it turns a trader's
// explicit reveal request into an oracle round trip and applies the
// verified callback to the target's plaintext shadow.
//
// Per target the lifecycle is unrequested -> pending -> revealed, with
// revealed terminal. There is no failed state: a callback whose proof does
// not verify is rejected atomically and the target simply stays pending.
// The base design has no timeout or re-request path; a production
// deployment should layer expiry on top of RequestReveal.
package reveal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/app/core/match"
	"github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/events"
	"github.com/veildex/darkbook/pkg/fhe"
	"github.com/veildex/darkbook/pkg/oracle"
)

var (
	ErrInvalidRequestID    = errors.New("unknown decryption request id")
	ErrProofVerification   = errors.New("decryption proof verification failed")
	ErrMalformedCleartexts = errors.New("unexpected cleartext count")
)

// TargetKind tags what a request id will reveal. The tag keeps order and
// match reveals in one request table without conflating their id spaces.
type TargetKind uint8

const (
	KindOrder TargetKind = iota + 1
	KindMatch
)

// Target names the record a pending request will reveal.
type Target struct {
	Kind    TargetKind  `json:"kind"`
	OrderID uint64      `json:"order_id,omitempty"`
	MatchID common.Hash `json:"match_id,omitempty"`
}

// OrderSource is the ledger surface the coordinator needs.
type OrderSource interface {
	Order(id uint64) (ledger.Order, bool)
	Shadow(id uint64) (ledger.Shadow, bool)
	RevealShadow(id uint64, price, amount, side uint64) error
}

// MatchSource is the match-store surface the coordinator needs.
type MatchSource interface {
	Get(id common.Hash) (match.Match, bool)
	Shadow(id common.Hash) (match.Shadow, bool)
	RevealShadow(id common.Hash, price, amount uint64) error
}

// Persister is the storage write-through hook for the request table.
type Persister interface {
	SaveRequest(requestID uint64, t Target) error
}

type Coordinator struct {
	mu sync.Mutex

	orders  OrderSource
	matches MatchSource
	orc     oracle.Oracle

	oracleAddr common.Address
	oraclePub  *crypto.BLSPubKey

	// Request entries are retained after a successful callback so a stale
	// duplicate resolves to its target and fails AlreadyRevealed instead
	// of racing the first delivery.
	requests map[uint64]Target

	bus     *events.Bus
	persist Persister
	log     *zap.Logger
}

func NewCoordinator(
	orders OrderSource,
	matches MatchSource,
	orc oracle.Oracle,
	oracleAddr common.Address,
	oraclePub *crypto.BLSPubKey,
	bus *events.Bus,
	persist Persister,
	log *zap.Logger,
) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		orders:     orders,
		matches:    matches,
		orc:        orc,
		oracleAddr: oracleAddr,
		oraclePub:  oraclePub,
		requests:   make(map[uint64]Target),
		bus:        bus,
		persist:    persist,
		log:        log,
	}
}

// RequestRevealOrder asks the oracle to decrypt the caller's own order.
// Only the order's trader may ask, and only while the shadow is
// unrevealed. Cancellation does not block revelation: a trader can always
// reveal their own historical order. Returns the oracle request id
// immediately; the decryption lands later via OnCallback.
func (c *Coordinator) RequestRevealOrder(id uint64, caller common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders.Order(id)
	if !ok {
		return 0, fmt.Errorf("reveal order %d: %w", id, ledger.ErrNotFound)
	}
	if o.Trader != caller {
		return 0, fmt.Errorf("reveal order %d: %w", id, ledger.ErrUnauthorized)
	}
	sh, ok := c.orders.Shadow(id)
	if !ok {
		return 0, fmt.Errorf("reveal order %d: %w", id, ledger.ErrNotFound)
	}
	if sh.Revealed {
		return 0, fmt.Errorf("reveal order %d: %w", id, ledger.ErrAlreadyRevealed)
	}

	reqID, err := c.orc.Request([]fhe.Ciphertext{o.EncPrice, o.EncAmount, o.EncSide})
	if err != nil {
		return 0, fmt.Errorf("reveal order %d: %w", id, err)
	}
	t := Target{Kind: KindOrder, OrderID: id}
	if err := c.record(reqID, t); err != nil {
		return 0, fmt.Errorf("reveal order %d: %w", id, err)
	}
	c.log.Info("order reveal requested",
		zap.Uint64("order_id", id), zap.Uint64("request_id", reqID))
	return reqID, nil
}

// RequestRevealMatch asks the oracle to decrypt a match outcome. Either
// participant may ask.
func (c *Coordinator) RequestRevealMatch(id common.Hash, caller common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.matches.Get(id)
	if !ok {
		return 0, fmt.Errorf("reveal match %s: %w", id.Hex(), ledger.ErrNotFound)
	}
	if !c.isParticipant(m, caller) {
		return 0, fmt.Errorf("reveal match %s: %w", id.Hex(), ledger.ErrUnauthorized)
	}
	sh, ok := c.matches.Shadow(id)
	if !ok {
		return 0, fmt.Errorf("reveal match %s: %w", id.Hex(), ledger.ErrNotFound)
	}
	if sh.Revealed {
		return 0, fmt.Errorf("reveal match %s: %w", id.Hex(), ledger.ErrAlreadyRevealed)
	}

	reqID, err := c.orc.Request([]fhe.Ciphertext{m.EncPrice, m.EncAmount})
	if err != nil {
		return 0, fmt.Errorf("reveal match %s: %w", id.Hex(), err)
	}
	t := Target{Kind: KindMatch, MatchID: id}
	if err := c.record(reqID, t); err != nil {
		return 0, fmt.Errorf("reveal match %s: %w", id.Hex(), err)
	}
	c.log.Info("match reveal requested",
		zap.String("match_id", id.Hex()), zap.Uint64("request_id", reqID))
	return reqID, nil
}

func (c *Coordinator) isParticipant(m match.Match, caller common.Address) bool {
	for _, oid := range []uint64{m.BuyOrderID, m.SellOrderID} {
		if o, ok := c.orders.Order(oid); ok && o.Trader == caller {
			return true
		}
	}
	return false
}

func (c *Coordinator) record(reqID uint64, t Target) error {
	if c.persist != nil {
		if err := c.persist.SaveRequest(reqID, t); err != nil {
			return fmt.Errorf("persist request: %w", err)
		}
	}
	c.requests[reqID] = t
	return nil
}

// OnCallback applies an oracle delivery. Only the oracle identity may
// call; the proof must authenticate (requestID, cleartexts) against the
// pinned oracle key; and a target already revealed by an earlier callback
// fails AlreadyRevealed rather than being overwritten. All checks run
// before any mutation, so a rejected callback changes nothing.
func (c *Coordinator) OnCallback(caller common.Address, cb oracle.Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.oracleAddr {
		return fmt.Errorf("callback %d: %w", cb.RequestID, ledger.ErrUnauthorized)
	}
	t, ok := c.requests[cb.RequestID]
	if !ok {
		return fmt.Errorf("callback %d: %w", cb.RequestID, ErrInvalidRequestID)
	}
	if !crypto.VerifyDecryption(c.oraclePub, cb.RequestID, cb.Cleartexts, cb.Proof) {
		return fmt.Errorf("callback %d: %w", cb.RequestID, ErrProofVerification)
	}

	switch t.Kind {
	case KindOrder:
		if len(cb.Cleartexts) != 3 {
			return fmt.Errorf("callback %d: want 3 cleartexts, got %d: %w",
				cb.RequestID, len(cb.Cleartexts), ErrMalformedCleartexts)
		}
		if err := c.orders.RevealShadow(t.OrderID, cb.Cleartexts[0], cb.Cleartexts[1], cb.Cleartexts[2]); err != nil {
			return fmt.Errorf("callback %d: %w", cb.RequestID, err)
		}
		c.log.Info("order revealed", zap.Uint64("order_id", t.OrderID))
		if c.bus != nil {
			c.bus.Publish(events.OrderRevealed{OrderID: t.OrderID})
		}
	case KindMatch:
		if len(cb.Cleartexts) != 2 {
			return fmt.Errorf("callback %d: want 2 cleartexts, got %d: %w",
				cb.RequestID, len(cb.Cleartexts), ErrMalformedCleartexts)
		}
		if err := c.matches.RevealShadow(t.MatchID, cb.Cleartexts[0], cb.Cleartexts[1]); err != nil {
			return fmt.Errorf("callback %d: %w", cb.RequestID, err)
		}
		c.log.Info("match revealed", zap.String("match_id", t.MatchID.Hex()))
		if c.bus != nil {
			c.bus.Publish(events.MatchRevealed{MatchID: t.MatchID})
		}
	default:
		return fmt.Errorf("callback %d: unknown target kind %d: %w",
			cb.RequestID, t.Kind, ErrInvalidRequestID)
	}
	return nil
}

// Pending reports whether a request id is known and its target, mainly for
// observability endpoints.
func (c *Coordinator) Pending(requestID uint64) (Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.requests[requestID]
	return t, ok
}

// Restore reloads the request table at boot.
func (c *Coordinator) Restore(requests map[uint64]Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range requests {
		c.requests[id] = t
	}
	c.log.Info("request table restored", zap.Int("requests", len(requests)))
}
