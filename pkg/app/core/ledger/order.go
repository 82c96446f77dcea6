// Package ledger owns the encrypted order book state: every submitted
// order, its plaintext shadow, and the two masked book sequences the
// matching evaluator scans. Price, amount, and side stay ciphertext from
// submission onward; the shadow is populated only through a verified
// decryption callback.
package ledger

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veildex/darkbook/pkg/fhe"
)

// Side encodings inside EncSide. Plaintext code never branches on these;
// they exist for encrypt-side construction and post-reveal decoding.
const (
	SideBuy  uint64 = 0
	SideSell uint64 = 1
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrNotActive       = errors.New("order not active")
	ErrUnauthorized    = errors.New("caller is not the owner")
	ErrAlreadyRevealed = errors.New("already revealed")
)

// Order is a ledger entry. IDs start at 1, are assigned monotonically, and
// are never reused. Active flips true to false at most once, on cancel or
// on being committed into a match, and never reverses.
type Order struct {
	ID        uint64            `json:"id"`
	Trader    common.Address    `json:"trader"`
	EncPrice  fhe.Ciphertext    `json:"enc_price"`
	EncAmount fhe.Ciphertext    `json:"enc_amount"`
	EncSide   fhe.Ciphertext    `json:"enc_side"`
	CreatedAt time.Time         `json:"created_at"`
	Active    bool              `json:"active"`
}

// Shadow is the plaintext mirror of an order. Fields are write-once and
// meaningless until Revealed is true.
type Shadow struct {
	Price    uint64 `json:"price"`
	Amount   uint64 `json:"amount"`
	Side     uint64 `json:"side"`
	Revealed bool   `json:"revealed"`
}
