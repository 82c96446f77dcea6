// Package core wires the encrypted order ledger together: ledger, matching
// evaluator, match store, and decryption coordinator, sharing one scheme,
// one event bus, and one storage layer.
package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/veildex/darkbook/pkg/app/core/ledger"
	"github.com/veildex/darkbook/pkg/app/core/match"
	"github.com/veildex/darkbook/pkg/app/core/matching"
	"github.com/veildex/darkbook/pkg/app/core/reveal"
	"github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/events"
	"github.com/veildex/darkbook/pkg/fhe"
	"github.com/veildex/darkbook/pkg/oracle"
)

// Persister is the union of the per-component storage hooks; the pebble
// store satisfies it. Nil keeps everything memory-only.
type Persister interface {
	ledger.Persister
	match.Persister
	reveal.Persister
}

type Core struct {
	Scheme      fhe.Scheme
	Bus         *events.Bus
	Ledger      *ledger.Ledger
	Evaluator   *matching.Evaluator
	Matches     *match.Store
	Coordinator *reveal.Coordinator
}

// Deps carries the external capabilities the core consumes.
type Deps struct {
	Scheme     fhe.Scheme
	Oracle     oracle.Oracle
	OracleAddr common.Address
	OraclePub  *crypto.BLSPubKey
	Persist    Persister
	Log        *zap.Logger
}

func New(d Deps) (*Core, error) {
	if d.Scheme == nil {
		return nil, fmt.Errorf("core: no ciphertext scheme")
	}
	if d.Oracle == nil {
		return nil, fmt.Errorf("core: no decryption oracle")
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	bus := events.NewBus()

	// An interface holding a typed nil must stay nil inside the
	// components, so only pass Persist through when it is set.
	var lp ledger.Persister
	var mp match.Persister
	var rp reveal.Persister
	if d.Persist != nil {
		lp, mp, rp = d.Persist, d.Persist, d.Persist
	}

	led := ledger.New(d.Scheme, bus, lp, d.Log.Named("ledger"))
	eval := matching.NewEvaluator(d.Scheme, led)
	matches := match.NewStore(led, bus, mp, d.Log.Named("match"))
	coord := reveal.NewCoordinator(
		led, matches, d.Oracle, d.OracleAddr, d.OraclePub,
		bus, rp, d.Log.Named("reveal"))

	return &Core{
		Scheme:      d.Scheme,
		Bus:         bus,
		Ledger:      led,
		Evaluator:   eval,
		Matches:     matches,
		Coordinator: coord,
	}, nil
}

// RestoreState rebuilds in-memory state from persisted records at boot.
type RestoreState struct {
	Orders       []*ledger.Order
	Shadows      []*ledger.Shadow
	BuyBook      []fhe.Ciphertext
	SellBook     []fhe.Ciphertext
	Matches      map[common.Hash]*match.Match
	MatchShadows map[common.Hash]*match.Shadow
	Requests     map[uint64]reveal.Target
}

func (c *Core) Restore(st RestoreState) error {
	if err := c.Ledger.Restore(st.Orders, st.Shadows, st.BuyBook, st.SellBook); err != nil {
		return err
	}
	c.Matches.Restore(st.Matches, st.MatchShadows)
	c.Coordinator.Restore(st.Requests)
	return nil
}
