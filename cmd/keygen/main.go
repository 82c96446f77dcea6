// keygen prints fresh key material for local development: a trader
// secp256k1 keypair, a sealed-scheme key, and an oracle BLS seed.
package main

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/fhe"
)

func main() {
	trader, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("trader key: %v", err)
	}
	schemeKey, err := fhe.GenerateKey()
	if err != nil {
		log.Fatalf("scheme key: %v", err)
	}
	oracleSeed, err := fhe.GenerateKey()
	if err != nil {
		log.Fatalf("oracle seed: %v", err)
	}
	prover := crypto.NewBLSSignerFromSeed(oracleSeed)

	fmt.Println("# trader")
	fmt.Printf("TRADER_ADDRESS=%s\n", trader.Address().Hex())
	fmt.Printf("TRADER_PRIVATE_KEY=%s\n", trader.PrivateKeyHex())
	fmt.Println()
	fmt.Println("# node (.env)")
	fmt.Printf("SCHEME_KEY_HEX=%s\n", hex.EncodeToString(schemeKey))
	fmt.Printf("ORACLE_SEED_HEX=%s\n", hex.EncodeToString(oracleSeed))
	fmt.Printf("# oracle address: %s\n", crypto.OracleAddress(prover.Pubkey()).Hex())
}
