package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Node struct {
	ListenAddr string
	DataDir    string
	LogFile    string
}

type Oracle struct {
	// SeedHex derives the oracle's BLS proving key. Generated when empty.
	SeedHex string
	// Delay is the simulated gap between a decryption request and its
	// callback. Zero means callbacks are pumped by the background drain.
	Delay time.Duration
	// DrainInterval paces the background delivery loop when Delay is 0.
	DrainInterval time.Duration
}

type Scheme struct {
	// KeyHex is the sealed-scheme key. Generated when empty; a generated
	// key makes persisted ciphertexts unreadable after restart, so set it
	// for any deployment that keeps data.
	KeyHex string
}

type Config struct {
	Node   Node
	Oracle Oracle
	Scheme Scheme
}

func Default() Config {
	return Config{
		Node: Node{
			ListenAddr: ":8080",
			DataDir:    "data/darkbook",
			LogFile:    "",
		},
		Oracle: Oracle{
			Delay:         500 * time.Millisecond,
			DrainInterval: 100 * time.Millisecond,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("ORACLE_SEED_HEX"); v != "" {
		cfg.Oracle.SeedHex = v
	}
	if v := os.Getenv("ORACLE_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.Oracle.Delay = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ORACLE_DRAIN_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Oracle.DrainInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SCHEME_KEY_HEX"); v != "" {
		cfg.Scheme.KeyHex = v
	}

	return cfg
}
