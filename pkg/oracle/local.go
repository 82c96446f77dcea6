package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/fhe"
	"github.com/veildex/darkbook/pkg/util"
)

// LocalOracle runs the decryption oracle in-process: it holds the scheme's
// decryption capability and a BLS proving key, decrypts queued requests
// after a configurable delay, and pushes proved callbacks into the sink.
// Each honored request is delivered exactly once.
//
// The delay exists to keep the asynchronous shape honest in development:
// with delay zero and DeliverPending, tests drive the protocol
// synchronously without changing any production code path.
type LocalOracle struct {
	mu sync.Mutex

	dec    fhe.Decryptor
	prover *crypto.BLSSigner
	addr   common.Address

	nextID  uint64
	pending map[uint64][]fhe.Ciphertext

	sink  Sink
	delay time.Duration
	clock util.Clock
	log   *zap.Logger
}

func NewLocal(dec fhe.Decryptor, prover *crypto.BLSSigner, delay time.Duration, log *zap.Logger) *LocalOracle {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalOracle{
		dec:     dec,
		prover:  prover,
		addr:    crypto.OracleAddress(prover.Pubkey()),
		nextID:  1,
		pending: make(map[uint64][]fhe.Ciphertext),
		delay:   delay,
		clock:   util.RealClock{},
		log:     log,
	}
}

// Address is the caller identity the oracle presents on callbacks.
func (o *LocalOracle) Address() common.Address { return o.addr }

// Pubkey is the proof-verification key handlers pin.
func (o *LocalOracle) Pubkey() *crypto.BLSPubKey { return o.prover.Pubkey() }

// AdvancePast moves the id counter beyond ids already present in a
// restored request table, so fresh requests never collide with persisted
// entries after a restart.
func (o *LocalOracle) AdvancePast(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if id >= o.nextID {
		o.nextID = id + 1
	}
}

// SetSink wires the callback target. Must be called before Request.
func (o *LocalOracle) SetSink(sink Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = sink
}

// Request queues ciphertexts for decryption and returns the request id
// immediately. Delivery happens on a separate goroutine after the
// configured delay.
func (o *LocalOracle) Request(cts []fhe.Ciphertext) (uint64, error) {
	if len(cts) == 0 {
		return 0, fmt.Errorf("oracle: empty request")
	}
	o.mu.Lock()
	if o.sink == nil {
		o.mu.Unlock()
		return 0, fmt.Errorf("oracle: no callback sink wired")
	}
	id := o.nextID
	o.nextID++
	o.pending[id] = append([]fhe.Ciphertext(nil), cts...)
	delay := o.delay
	o.mu.Unlock()

	if delay > 0 {
		go func() {
			<-o.clock.After(delay)
			if err := o.deliver(id); err != nil {
				o.log.Warn("oracle callback rejected",
					zap.Uint64("request_id", id), zap.Error(err))
			}
		}()
	}
	o.log.Debug("decryption requested",
		zap.Uint64("request_id", id), zap.Int("ciphertexts", len(cts)))
	return id, nil
}

// DeliverPending synchronously decrypts and delivers every queued request,
// in id order is not guaranteed. Intended for tests and zero-delay setups.
func (o *LocalOracle) DeliverPending() error {
	o.mu.Lock()
	ids := make([]uint64, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.deliver(id); err != nil {
			return err
		}
	}
	return nil
}

// Run drains pending requests until the context is cancelled. Only needed
// when delay is zero and callers want background delivery.
func (o *LocalOracle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.DeliverPending(); err != nil {
				o.log.Warn("oracle delivery", zap.Error(err))
			}
		}
	}
}

func (o *LocalOracle) deliver(id uint64) error {
	o.mu.Lock()
	cts, ok := o.pending[id]
	if !ok {
		o.mu.Unlock()
		return nil // already delivered
	}
	delete(o.pending, id)
	sink := o.sink
	o.mu.Unlock()

	cleartexts := make([]uint64, len(cts))
	for i, ct := range cts {
		v, err := o.dec.Decrypt(ct)
		if err != nil {
			return fmt.Errorf("oracle: decrypt request %d: %w", id, err)
		}
		cleartexts[i] = v
	}
	proof := crypto.SignDecryption(o.prover, id, cleartexts)

	return sink(o.addr, Callback{RequestID: id, Cleartexts: cleartexts, Proof: proof})
}

var _ Oracle = (*LocalOracle)(nil)
