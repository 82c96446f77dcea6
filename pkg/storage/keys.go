package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. String prefixes keep record families in disjoint,
// range-scannable key spaces; numeric ids are big-endian so iteration
// order matches id order.
const (
	prefixOrder       = "ord:"
	prefixShadow      = "shd:"
	prefixBuyBook     = "bkb:"
	prefixSellBook    = "bks:"
	prefixMatch       = "mt:"
	prefixMatchShadow = "msh:"
	prefixRequest     = "req:"
)

func u64Key(prefix string, id uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], id)
	return k
}

func orderKey(id uint64) []byte  { return u64Key(prefixOrder, id) }
func shadowKey(id uint64) []byte { return u64Key(prefixShadow, id) }

func bookKey(sell bool, id uint64) []byte {
	if sell {
		return u64Key(prefixSellBook, id)
	}
	return u64Key(prefixBuyBook, id)
}

func matchKey(id common.Hash) []byte {
	return append([]byte(prefixMatch), id[:]...)
}

func matchShadowKey(id common.Hash) []byte {
	return append([]byte(prefixMatchShadow), id[:]...)
}

func requestKey(id uint64) []byte { return u64Key(prefixRequest, id) }

// prefixBounds returns [lower, upper) for iterating every key under a
// prefix.
func prefixBounds(prefix string) (lower, upper []byte) {
	lower = []byte(prefix)
	upper = make([]byte, len(lower))
	copy(upper, lower)
	upper[len(upper)-1]++
	return lower, upper
}
