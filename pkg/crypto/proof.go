package crypto

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// DecryptionDigest binds a request id to the cleartexts the oracle claims
// for it: keccak256(requestID || cleartext...), all big-endian uint64.
// The oracle signs this digest; the coordinator recomputes it on callback,
// so a proof for one request can never authenticate another request's
// cleartexts.
func DecryptionDigest(requestID uint64, cleartexts []uint64) []byte {
	buf := make([]byte, 8*(1+len(cleartexts)))
	binary.BigEndian.PutUint64(buf[:8], requestID)
	for i, v := range cleartexts {
		binary.BigEndian.PutUint64(buf[8*(i+1):], v)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	return h.Sum(nil)
}

// SignDecryption produces the proof attached to an oracle callback.
func SignDecryption(s *BLSSigner, requestID uint64, cleartexts []uint64) []byte {
	return s.Sign(DecryptionDigest(requestID, cleartexts))
}

// VerifyDecryption checks a callback proof against the oracle's public key.
func VerifyDecryption(pk *BLSPubKey, requestID uint64, cleartexts []uint64, proof []byte) bool {
	if pk == nil || len(proof) == 0 {
		return false
	}
	return Verify(pk, proof, DecryptionDigest(requestID, cleartexts))
}

// OracleAddress derives a 20-byte caller identity from the oracle's BLS
// public key, keccak-truncated the same way Ethereum addresses are.
func OracleAddress(pk *BLSPubKey) common.Address {
	raw, err := pk.MarshalBinary()
	if err != nil {
		return common.Address{}
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(raw)
	sum := h.Sum(nil)
	return common.BytesToAddress(sum[12:])
}
