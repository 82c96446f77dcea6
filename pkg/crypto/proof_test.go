package crypto

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testBLSSigner(tag byte) *BLSSigner {
	seed := make([]byte, 32)
	copy(seed, "proof-test-seed-0123456789abcdef")
	seed[31] = tag
	return NewBLSSignerFromSeed(seed)
}

func TestDecryptionDigestBindsInputs(t *testing.T) {
	base := DecryptionDigest(1, []uint64{2500, 2, 0})

	others := [][]uint64{
		{2500, 2, 1},  // different cleartext
		{2500, 2},     // fewer cleartexts
		{2, 2500, 0},  // reordered
	}
	for _, cts := range others {
		if bytes.Equal(base, DecryptionDigest(1, cts)) {
			t.Errorf("digest collision for cleartexts %v", cts)
		}
	}
	if bytes.Equal(base, DecryptionDigest(2, []uint64{2500, 2, 0})) {
		t.Error("digest ignores request id")
	}
	if !bytes.Equal(base, DecryptionDigest(1, []uint64{2500, 2, 0})) {
		t.Error("digest not deterministic")
	}
}

func TestSignAndVerifyDecryption(t *testing.T) {
	signer := testBLSSigner(0)
	cts := []uint64{2450, 2}
	proof := SignDecryption(signer, 7, cts)

	if !VerifyDecryption(signer.Pubkey(), 7, cts, proof) {
		t.Fatal("honest proof rejected")
	}

	if VerifyDecryption(signer.Pubkey(), 8, cts, proof) {
		t.Error("proof verified for a different request id")
	}
	if VerifyDecryption(signer.Pubkey(), 7, []uint64{2450, 3}, proof) {
		t.Error("proof verified for tampered cleartexts")
	}
	if VerifyDecryption(testBLSSigner(1).Pubkey(), 7, cts, proof) {
		t.Error("proof verified under a foreign key")
	}
	if VerifyDecryption(signer.Pubkey(), 7, cts, nil) {
		t.Error("empty proof verified")
	}
	if VerifyDecryption(nil, 7, cts, proof) {
		t.Error("nil public key verified")
	}
}

func TestOracleAddress(t *testing.T) {
	a := OracleAddress(testBLSSigner(0).Pubkey())
	b := OracleAddress(testBLSSigner(1).Pubkey())

	if a == (common.Address{}) || b == (common.Address{}) {
		t.Fatal("derived zero address")
	}
	if a == b {
		t.Error("distinct keys derived the same address")
	}
	if a != OracleAddress(testBLSSigner(0).Pubkey()) {
		t.Error("address derivation not deterministic")
	}
}
