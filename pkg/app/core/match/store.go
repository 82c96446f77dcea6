// Package match persists committed matches, keyed by the unordered pair of
// participant order ids.
package match

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/events"
	"github.com/veildex/darkbook/pkg/fhe"
)

// Match is a committed execution between two orders. Never deleted;
// re-committing the same pair overwrites the record wholesale.
type Match struct {
	ID          common.Hash    `json:"id"`
	BuyOrderID  uint64         `json:"buy_order_id"`
	SellOrderID uint64         `json:"sell_order_id"`
	EncPrice    fhe.Ciphertext `json:"enc_price"`
	EncAmount   fhe.Ciphertext `json:"enc_amount"`
	Complete    bool           `json:"complete"`
	CommittedAt time.Time      `json:"committed_at"`
}

// Shadow is the plaintext mirror of a match, populated only through a
// verified decryption callback.
type Shadow struct {
	Price    uint64 `json:"price"`
	Amount   uint64 `json:"amount"`
	Revealed bool   `json:"revealed"`
}

// Key combines two order ids into a single match id, invariant to argument
// order: keccak256 of the sorted pair, so (3,7) and (7,3) name one match.
func Key(a, b uint64) common.Hash {
	if a > b {
		a, b = b, a
	}
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], a)
	binary.BigEndian.PutUint64(buf[8:], b)
	return common.BytesToHash(ethcrypto.Keccak256(buf[:]))
}

// Deactivator is the slice of the ledger the store needs: existence checks
// and the active-flag flip when a commit consumes an order.
type Deactivator interface {
	Order(id uint64) (ledger.Order, bool)
	Deactivate(id uint64) error
}

// Persister is the storage write-through hook; nil keeps the store
// memory-only. SaveCommit must write the match and its fresh shadow
// atomically.
type Persister interface {
	SaveCommit(m *Match, s *Shadow) error
	SaveMatchShadow(id common.Hash, s *Shadow) error
}

type Store struct {
	mu sync.RWMutex

	orders  Deactivator
	matches map[common.Hash]*Match
	shadows map[common.Hash]*Shadow

	bus     *events.Bus
	persist Persister
	log     *zap.Logger
}

func NewStore(orders Deactivator, bus *events.Bus, persist Persister, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		orders:  orders,
		matches: make(map[common.Hash]*Match),
		shadows: make(map[common.Hash]*Shadow),
		bus:     bus,
		persist: persist,
		log:     log,
	}
}

// Commit records the match as complete and flips both orders inactive.
// Callers carry the double-commit contract: nothing here refuses a pair
// whose orders are already inactive, and a re-commit of the same pair
// replaces the earlier record, shadow included.
func (s *Store) Commit(buyID, sellID uint64, encPrice, encAmount fhe.Ciphertext) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders.Order(buyID); !ok {
		return common.Hash{}, fmt.Errorf("commit match: order %d: %w", buyID, ledger.ErrNotFound)
	}
	if _, ok := s.orders.Order(sellID); !ok {
		return common.Hash{}, fmt.Errorf("commit match: order %d: %w", sellID, ledger.ErrNotFound)
	}

	id := Key(buyID, sellID)
	m := &Match{
		ID:          id,
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		EncPrice:    encPrice,
		EncAmount:   encAmount,
		Complete:    true,
		CommittedAt: time.Now().UTC(),
	}
	sh := &Shadow{}

	if s.persist != nil {
		if err := s.persist.SaveCommit(m, sh); err != nil {
			return common.Hash{}, fmt.Errorf("commit match: persist: %w", err)
		}
	}
	s.matches[id] = m
	s.shadows[id] = sh

	if err := s.orders.Deactivate(buyID); err != nil {
		return common.Hash{}, fmt.Errorf("commit match: %w", err)
	}
	if err := s.orders.Deactivate(sellID); err != nil {
		return common.Hash{}, fmt.Errorf("commit match: %w", err)
	}

	s.log.Info("match committed",
		zap.String("match_id", id.Hex()),
		zap.Uint64("buy_order_id", buyID),
		zap.Uint64("sell_order_id", sellID))
	if s.bus != nil {
		s.bus.Publish(events.OrderMatched{BuyOrderID: buyID, SellOrderID: sellID})
		s.bus.Publish(events.MatchCommitted{MatchID: id})
	}
	return id, nil
}

// Get returns a copy of a committed match.
func (s *Store) Get(id common.Hash) (Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return Match{}, false
	}
	return *m, true
}

// Shadow returns a copy of a match's plaintext shadow.
func (s *Store) Shadow(id common.Hash) (Shadow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shadows[id]
	if !ok {
		return Shadow{}, false
	}
	return *sh, true
}

// RevealShadow writes a match's plaintext shadow exactly once.
func (s *Store) RevealShadow(id common.Hash, price, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shadows[id]
	if !ok {
		return fmt.Errorf("reveal match %s: %w", id.Hex(), ledger.ErrNotFound)
	}
	if sh.Revealed {
		return fmt.Errorf("reveal match %s: %w", id.Hex(), ledger.ErrAlreadyRevealed)
	}
	next := &Shadow{Price: price, Amount: amount, Revealed: true}
	if s.persist != nil {
		if err := s.persist.SaveMatchShadow(id, next); err != nil {
			return fmt.Errorf("reveal match %s: persist: %w", id.Hex(), err)
		}
	}
	*sh = *next
	return nil
}

// Restore rebuilds in-memory state from persisted records at boot.
func (s *Store) Restore(matches map[common.Hash]*Match, shadows map[common.Hash]*Shadow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range matches {
		s.matches[id] = m
		if sh, ok := shadows[id]; ok {
			s.shadows[id] = sh
		} else {
			s.shadows[id] = &Shadow{}
		}
	}
	s.log.Info("match store restored", zap.Int("matches", len(matches)))
}
