// Package fhe defines the ciphertext algebra this system computes over.
// The ledger and evaluator never see plaintext: every arithmetic step,
// comparison, and conditional select happens on opaque ciphertexts behind
// the Scheme interface. Decryption is a separate capability handed only
// to the decryption oracle.
package fhe

import "errors"

// Ciphertext is an opaque encrypted value. Integers and booleans share the
// representation: booleans are encrypted 0/1.
type Ciphertext []byte

var (
	ErrInvalidCiphertext = errors.New("fhe: invalid ciphertext")
	ErrDivisorZero       = errors.New("fhe: division by zero constant")
)

// Scheme is the homomorphic evaluation capability. All operations must be
// constant-time with respect to the encrypted values: no implementation may
// branch on decrypted content.
//
// Comparison results are encrypted booleans usable as the condition of
// Select and as operands of And/Not.
type Scheme interface {
	Encrypt(v uint64) (Ciphertext, error)

	Add(a, b Ciphertext) (Ciphertext, error)
	Sub(a, b Ciphertext) (Ciphertext, error)
	// DivConst divides by a plaintext constant, truncating toward zero.
	DivConst(a Ciphertext, d uint64) (Ciphertext, error)

	Lt(a, b Ciphertext) (Ciphertext, error)
	Le(a, b Ciphertext) (Ciphertext, error)
	Gt(a, b Ciphertext) (Ciphertext, error)
	Ge(a, b Ciphertext) (Ciphertext, error)
	Eq(a, b Ciphertext) (Ciphertext, error)
	EqConst(a Ciphertext, c uint64) (Ciphertext, error)

	And(a, b Ciphertext) (Ciphertext, error)
	Not(a Ciphertext) (Ciphertext, error)

	// Select returns a fresh encryption of the first branch when cond
	// encrypts 1, the second when it encrypts 0.
	Select(cond, a, b Ciphertext) (Ciphertext, error)
}

// Decryptor recovers plaintext from a ciphertext. Only the decryption
// oracle holds one; core components must not.
type Decryptor interface {
	Decrypt(ct Ciphertext) (uint64, error)
}
