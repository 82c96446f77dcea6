// Package oracle defines the decryption oracle boundary. The coordinator
// only ever sees the Oracle interface: it hands over ciphertexts, gets a
// correlation id back immediately, and a Callback arrives on a separate
// goroutine arbitrarily later. The gap between the two is controlled
// entirely by the oracle, not by this system.
package oracle

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/veildex/darkbook/pkg/fhe"
)

// Callback carries an honored decryption: the plaintexts for the request's
// ciphertexts, in order, plus a proof binding them to the request id.
type Callback struct {
	RequestID  uint64
	Cleartexts []uint64
	Proof      []byte
}

// Oracle accepts decryption requests. Request must not block on the actual
// decryption; it returns as soon as the request is queued.
type Oracle interface {
	Request(cts []fhe.Ciphertext) (uint64, error)
}

// Sink receives callbacks. caller is the oracle identity the handler
// authenticates before anything else.
type Sink func(caller common.Address, cb Callback) error
