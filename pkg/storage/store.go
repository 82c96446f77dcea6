// Package storage persists the encrypted ledger in Pebble: orders,
// shadows, book slots, matches, and the decryption request table. Values
// are JSON; ciphertexts ride along as base64 byte slices.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/app/core/match"
	"github.com/veildex/darkbook/pkg/app/core/reveal"
	"github.com/veildex/darkbook/pkg/fhe"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) setJSON(key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func batchJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return b.Set(key, data, nil)
}

// SaveSubmit writes a new order, its empty shadow, and both book slots in
// one batch: either the whole submission lands on disk or none of it does.
func (s *Store) SaveSubmit(o *ledger.Order, sh *ledger.Shadow, buyEntry, sellEntry fhe.Ciphertext) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := batchJSON(b, orderKey(o.ID), o); err != nil {
		return err
	}
	if err := batchJSON(b, shadowKey(o.ID), sh); err != nil {
		return err
	}
	if err := b.Set(bookKey(false, o.ID), buyEntry, nil); err != nil {
		return err
	}
	if err := b.Set(bookKey(true, o.ID), sellEntry, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit submit: %w", err)
	}
	return nil
}

// SaveCancel writes the deactivated order and its wiped book slots in one
// batch.
func (s *Store) SaveCancel(o *ledger.Order, buyEntry, sellEntry fhe.Ciphertext) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := batchJSON(b, orderKey(o.ID), o); err != nil {
		return err
	}
	if err := b.Set(bookKey(false, o.ID), buyEntry, nil); err != nil {
		return err
	}
	if err := b.Set(bookKey(true, o.ID), sellEntry, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit cancel: %w", err)
	}
	return nil
}

func (s *Store) SaveOrder(o *ledger.Order) error {
	return s.setJSON(orderKey(o.ID), o)
}

func (s *Store) SaveShadow(id uint64, sh *ledger.Shadow) error {
	return s.setJSON(shadowKey(id), sh)
}

// SaveCommit writes a match and its fresh shadow in one batch.
func (s *Store) SaveCommit(m *match.Match, sh *match.Shadow) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := batchJSON(b, matchKey(m.ID), m); err != nil {
		return err
	}
	if err := batchJSON(b, matchShadowKey(m.ID), sh); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble commit match: %w", err)
	}
	return nil
}

func (s *Store) SaveMatchShadow(id common.Hash, sh *match.Shadow) error {
	return s.setJSON(matchShadowKey(id), sh)
}

func (s *Store) SaveRequest(requestID uint64, t reveal.Target) error {
	return s.setJSON(requestKey(requestID), t)
}

// State is everything needed to rebuild the in-memory components at boot.
type State struct {
	Orders       []*ledger.Order
	Shadows      []*ledger.Shadow
	BuyBook      []fhe.Ciphertext
	SellBook     []fhe.Ciphertext
	Matches      map[common.Hash]*match.Match
	MatchShadows map[common.Hash]*match.Shadow
	Requests     map[uint64]reveal.Target
}

// LoadState reads the full persisted state. Orders, shadows, and book
// slots come back id-ordered thanks to big-endian keys.
func (s *Store) LoadState() (*State, error) {
	st := &State{
		Matches:      make(map[common.Hash]*match.Match),
		MatchShadows: make(map[common.Hash]*match.Shadow),
		Requests:     make(map[uint64]reveal.Target),
	}

	if err := s.scan(prefixOrder, func(_, val []byte) error {
		var o ledger.Order
		if err := decodeJSON(val, &o); err != nil {
			return err
		}
		st.Orders = append(st.Orders, &o)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	if err := s.scan(prefixShadow, func(_, val []byte) error {
		var sh ledger.Shadow
		if err := decodeJSON(val, &sh); err != nil {
			return err
		}
		st.Shadows = append(st.Shadows, &sh)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load shadows: %w", err)
	}

	if err := s.scan(prefixBuyBook, func(_, val []byte) error {
		st.BuyBook = append(st.BuyBook, append(fhe.Ciphertext(nil), val...))
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load buy book: %w", err)
	}

	if err := s.scan(prefixSellBook, func(_, val []byte) error {
		st.SellBook = append(st.SellBook, append(fhe.Ciphertext(nil), val...))
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load sell book: %w", err)
	}

	if err := s.scan(prefixMatch, func(_, val []byte) error {
		var m match.Match
		if err := decodeJSON(val, &m); err != nil {
			return err
		}
		st.Matches[m.ID] = &m
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	if err := s.scan(prefixMatchShadow, func(key, val []byte) error {
		var sh match.Shadow
		if err := decodeJSON(val, &sh); err != nil {
			return err
		}
		var id common.Hash
		copy(id[:], key[len(prefixMatchShadow):])
		st.MatchShadows[id] = &sh
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load match shadows: %w", err)
	}

	if err := s.scan(prefixRequest, func(key, val []byte) error {
		var t reveal.Target
		if err := decodeJSON(val, &t); err != nil {
			return err
		}
		id := binary.BigEndian.Uint64(key[len(prefixRequest):])
		st.Requests[id] = t
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	return st, nil
}

func (s *Store) scan(prefix string, fn func(key, val []byte) error) error {
	lower, upper := prefixBounds(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

var (
	_ ledger.Persister = (*Store)(nil)
	_ match.Persister  = (*Store)(nil)
	_ reveal.Persister = (*Store)(nil)
)
