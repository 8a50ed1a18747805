package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	def := Default()
	if cfg.RPCAddr != def.RPCAddr || cfg.Ledger.Backend != "mock" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Ledger.Token.Symbol != "PROP" || cfg.Ledger.Token.Decimals != 8 {
		t.Fatalf("default token not applied: %+v", cfg.Ledger.Token)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notegate.yaml")
	body := `
rpc_addr: "0.0.0.0:9000"
ledger:
  queue_capacity: 7
  propagation_poll_interval: 50ms
  token:
    symbol: TST
    decimals: 2
    max_supply: 1000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RPCAddr != "0.0.0.0:9000" {
		t.Fatalf("rpc_addr = %s", cfg.RPCAddr)
	}
	if cfg.Ledger.QueueCapacity != 7 {
		t.Fatalf("queue_capacity = %d", cfg.Ledger.QueueCapacity)
	}
	if cfg.Ledger.PropagationPollInterval != 50*time.Millisecond {
		t.Fatalf("poll interval = %s", cfg.Ledger.PropagationPollInterval)
	}
	if cfg.Ledger.Token.Symbol != "TST" {
		t.Fatalf("token = %+v", cfg.Ledger.Token)
	}
	// Untouched fields keep defaults.
	if cfg.DataDir != "data" || cfg.Ledger.PropagationPollAttempts != 5 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notegate.yaml")
	if err := os.WriteFile(path, []byte(`rpc_addr: "file:1"`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NOTEGATE_RPC_ADDR", "env:2")
	t.Setenv("NOTEGATE_QUEUE_CAPACITY", "42")
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RPCAddr != "env:2" {
		t.Fatalf("rpc_addr = %s", cfg.RPCAddr)
	}
	if cfg.Ledger.QueueCapacity != 42 {
		t.Fatalf("queue_capacity = %d", cfg.Ledger.QueueCapacity)
	}
}

func TestDefaultFundingFitsTokenSupply(t *testing.T) {
	def := Default()
	if def.Ledger.Token.MaxSupply == 0 {
		t.Fatal("default token has no max supply")
	}
	if def.Ledger.InitialFunding > def.Ledger.Token.MaxSupply {
		t.Fatalf("initial funding %d exceeds max supply %d; the bootstrap pre-fund mint could never succeed",
			def.Ledger.InitialFunding, def.Ledger.Token.MaxSupply)
	}
	if def.Ledger.DefaultMintAmount > def.Ledger.Token.MaxSupply-def.Ledger.InitialFunding {
		t.Fatalf("default mint amount %d does not fit the remaining supply", def.Ledger.DefaultMintAmount)
	}
}

func TestMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notegate.yaml")
	if err := os.WriteFile(path, []byte("rpc_addr: [oops"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected parse error")
	}
}
