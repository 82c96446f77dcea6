package fhe

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedScheme is a trusted-evaluator scheme for development and testing.
// Values are sealed with XChaCha20-Poly1305 under a single symmetric key;
// the party holding the key can evaluate and decrypt, everyone else sees
// opaque bytes. Every operation re-seals its result under a fresh random
// nonce, so equal plaintexts never share a ciphertext.
//
// The internal arithmetic is branch-free: comparisons and selects are
// computed with mask arithmetic so evaluation cost does not depend on the
// sealed values. A production deployment swaps this for a real FHE backend
// behind the same Scheme interface.
type SealedScheme struct {
	aead cipher.AEAD
}

const sealedLen = chacha20poly1305.NonceSizeX + 8 + chacha20poly1305.Overhead

// GenerateKey returns a fresh 32-byte scheme key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate scheme key: %w", err)
	}
	return key, nil
}

func NewSealedScheme(key []byte) (*SealedScheme, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealed scheme: %w", err)
	}
	return &SealedScheme{aead: aead}, nil
}

func (s *SealedScheme) seal(v uint64) (Ciphertext, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX, sealedLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("seal nonce: %w", err)
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], v)
	return Ciphertext(s.aead.Seal(nonce, nonce, plain[:], nil)), nil
}

func (s *SealedScheme) open(ct Ciphertext) (uint64, error) {
	if len(ct) != sealedLen {
		return 0, ErrInvalidCiphertext
	}
	nonce := ct[:chacha20poly1305.NonceSizeX]
	plain, err := s.aead.Open(nil, nonce, ct[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return 0, ErrInvalidCiphertext
	}
	return binary.BigEndian.Uint64(plain), nil
}

func (s *SealedScheme) Encrypt(v uint64) (Ciphertext, error) { return s.seal(v) }

// Decrypt satisfies Decryptor. The scheme value handed to core components
// should be typed as Scheme so this never leaks past the oracle.
func (s *SealedScheme) Decrypt(ct Ciphertext) (uint64, error) { return s.open(ct) }

func (s *SealedScheme) binop(a, b Ciphertext, f func(x, y uint64) uint64) (Ciphertext, error) {
	x, err := s.open(a)
	if err != nil {
		return nil, err
	}
	y, err := s.open(b)
	if err != nil {
		return nil, err
	}
	return s.seal(f(x, y))
}

// ltMask returns 1 when a < b, 0 otherwise, without branching.
func ltMask(a, b uint64) uint64 {
	return ((^a & b) | ((^a | b) & (a - b))) >> 63
}

// eqMask returns 1 when a == b, 0 otherwise, without branching.
func eqMask(a, b uint64) uint64 {
	x := a ^ b
	return ((x | -x) >> 63) ^ 1
}

// pick returns a when m is 1, b when m is 0.
func pick(m, a, b uint64) uint64 {
	full := -m
	return (a & full) | (b &^ full)
}

func (s *SealedScheme) Add(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return x + y })
}

func (s *SealedScheme) Sub(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return x - y })
}

func (s *SealedScheme) DivConst(a Ciphertext, d uint64) (Ciphertext, error) {
	if d == 0 {
		return nil, ErrDivisorZero
	}
	x, err := s.open(a)
	if err != nil {
		return nil, err
	}
	return s.seal(x / d)
}

func (s *SealedScheme) Lt(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, ltMask)
}

func (s *SealedScheme) Le(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return ltMask(y, x) ^ 1 })
}

func (s *SealedScheme) Gt(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return ltMask(y, x) })
}

func (s *SealedScheme) Ge(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return ltMask(x, y) ^ 1 })
}

func (s *SealedScheme) Eq(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, eqMask)
}

func (s *SealedScheme) EqConst(a Ciphertext, c uint64) (Ciphertext, error) {
	x, err := s.open(a)
	if err != nil {
		return nil, err
	}
	return s.seal(eqMask(x, c))
}

func (s *SealedScheme) And(a, b Ciphertext) (Ciphertext, error) {
	return s.binop(a, b, func(x, y uint64) uint64 { return x & y & 1 })
}

func (s *SealedScheme) Not(a Ciphertext) (Ciphertext, error) {
	x, err := s.open(a)
	if err != nil {
		return nil, err
	}
	return s.seal((x & 1) ^ 1)
}

func (s *SealedScheme) Select(cond, a, b Ciphertext) (Ciphertext, error) {
	m, err := s.open(cond)
	if err != nil {
		return nil, err
	}
	x, err := s.open(a)
	if err != nil {
		return nil, err
	}
	y, err := s.open(b)
	if err != nil {
		return nil, err
	}
	return s.seal(pick(m&1, x, y))
}

var (
	_ Scheme    = (*SealedScheme)(nil)
	_ Decryptor = (*SealedScheme)(nil)
)
