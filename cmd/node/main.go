package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/veildex/darkbook/params"
	"github.com/veildex/darkbook/pkg/api"
	"github.com/veildex/darkbook/pkg/app/core"
	"github.com/veildex/darkbook/pkg/crypto"
	"github.com/veildex/darkbook/pkg/fhe"
	"github.com/veildex/darkbook/pkg/oracle"
	"github.com/veildex/darkbook/pkg/storage"
	"github.com/veildex/darkbook/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := buildLogger(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Ciphertext scheme ----
	schemeKey, generated, err := schemeKey(cfg.Scheme.KeyHex)
	if err != nil {
		sugar.Fatalw("scheme_key", "err", err)
	}
	if generated {
		sugar.Warnw("scheme_key_generated",
			"hint", "set SCHEME_KEY_HEX to keep persisted ciphertexts readable across restarts")
	}
	scheme, err := fhe.NewSealedScheme(schemeKey)
	if err != nil {
		sugar.Fatalw("scheme_init", "err", err)
	}

	// ---- Decryption oracle ----
	seed, err := oracleSeed(cfg.Oracle.SeedHex)
	if err != nil {
		sugar.Fatalw("oracle_seed", "err", err)
	}
	prover := crypto.NewBLSSignerFromSeed(seed)
	orc := oracle.NewLocal(scheme, prover, cfg.Oracle.Delay, logger.Named("oracle"))
	sugar.Infow("oracle_ready", "address", orc.Address().Hex())

	// ---- Persistence ----
	store, err := storage.NewStore(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("storage_open", "err", err, "path", cfg.Node.DataDir)
	}
	defer store.Close()

	// ---- Core ----
	c, err := core.New(core.Deps{
		Scheme:     scheme,
		Oracle:     orc,
		OracleAddr: orc.Address(),
		OraclePub:  orc.Pubkey(),
		Persist:    store,
		Log:        logger,
	})
	if err != nil {
		sugar.Fatalw("core_init", "err", err)
	}

	st, err := store.LoadState()
	if err != nil {
		sugar.Fatalw("storage_load", "err", err)
	}
	if err := c.Restore(core.RestoreState{
		Orders:       st.Orders,
		Shadows:      st.Shadows,
		BuyBook:      st.BuyBook,
		SellBook:     st.SellBook,
		Matches:      st.Matches,
		MatchShadows: st.MatchShadows,
		Requests:     st.Requests,
	}); err != nil {
		sugar.Fatalw("restore", "err", err)
	}

	// Restored request ids must stay out of the oracle's fresh id range.
	for id := range st.Requests {
		orc.AdvancePast(id)
	}

	// Oracle callbacks re-enter only through the coordinator.
	orc.SetSink(c.Coordinator.OnCallback)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Oracle.Delay == 0 {
		go orc.Run(ctx, cfg.Oracle.DrainInterval)
	}

	// ---- API server ----
	apiServer := api.NewServer(c, logger.Named("api"))
	go func() {
		if err := apiServer.Start(cfg.Node.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started",
		"listen", cfg.Node.ListenAddr,
		"data_dir", cfg.Node.DataDir,
		"orders", c.Ledger.Len(),
		"oracle_delay_ms", cfg.Oracle.Delay.Milliseconds())

	<-ctx.Done()
	sugar.Info("shutting down")
}

func buildLogger(logFile string) (*zap.Logger, error) {
	if logFile != "" {
		return util.NewLoggerWithFile(logFile)
	}
	return util.NewLogger()
}

func schemeKey(keyHex string) (key []byte, generated bool, err error) {
	if keyHex != "" {
		key, err = hex.DecodeString(keyHex)
		return key, false, err
	}
	key, err = fhe.GenerateKey()
	return key, true, err
}

func oracleSeed(seedHex string) ([]byte, error) {
	if seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, err
		}
		if len(seed) < 32 {
			return nil, fmt.Errorf("oracle seed must be at least 32 bytes, got %d", len(seed))
		}
		return seed, nil
	}
	// A random scheme key doubles as seed material in dev.
	return fhe.GenerateKey()
}
