// Package config loads the daemon configuration from YAML with
// environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCandidatePaths are probed in order when no explicit config
// path is given.
var DefaultCandidatePaths = []string{
	"notegate.yaml",
	"configs/notegate.yaml",
	"/etc/notegate/notegate.yaml",
}

type TokenConfig struct {
	Symbol    string `yaml:"symbol"`
	Decimals  uint8  `yaml:"decimals"`
	MaxSupply uint64 `yaml:"max_supply"`
}

type LedgerConfig struct {
	// Backend selects the ledger client implementation. "mock" is the
	// in-process ledger; anything else must be linked into the build.
	Backend  string `yaml:"backend"`
	Endpoint string `yaml:"endpoint"`

	QueueCapacity int `yaml:"queue_capacity"`

	// Note-discovery poll budget after a mint.
	PropagationPollInterval time.Duration `yaml:"propagation_poll_interval"`
	PropagationPollAttempts int           `yaml:"propagation_poll_attempts"`

	// MockPropagationDelay is how long the mock backend hides freshly
	// created notes. Ignored by real backends.
	MockPropagationDelay time.Duration `yaml:"mock_propagation_delay"`

	Token             TokenConfig `yaml:"token"`
	InitialFunding    uint64      `yaml:"initial_funding"`
	DefaultMintAmount uint64      `yaml:"default_mint_amount"`
}

type Config struct {
	RPCAddr string       `yaml:"rpc_addr"`
	DataDir string       `yaml:"data_dir"`
	Ledger  LedgerConfig `yaml:"ledger"`
}

func Default() Config {
	return Config{
		RPCAddr: "127.0.0.1:8645",
		DataDir: "data",
		Ledger: LedgerConfig{
			Backend:                 "mock",
			QueueCapacity:           100,
			PropagationPollInterval: 2 * time.Second,
			PropagationPollAttempts: 5,
			MockPropagationDelay:    3 * time.Second,
			Token:                   TokenConfig{Symbol: "PROP", Decimals: 8, MaxSupply: 100_000_000_000},
			InitialFunding:          20_000_000,
			DefaultMintAmount:       100,
		},
	}
}

// LoadFromPath reads the config at path, or probes the default
// candidates when path is empty. A missing file is not an error; the
// defaults apply.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	candidates := DefaultCandidatePaths
	if path != "" {
		candidates = []string{path}
	}
	for _, candidate := range candidates {
		raw, err := os.ReadFile(candidate)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			if os.IsNotExist(err) {
				break
			}
			return Config{}, fmt.Errorf("read config %s: %w", candidate, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", candidate, err)
		}
		break
	}
	cfg.ApplyEnvOverrides()
	cfg.normalize()
	return cfg, nil
}

// ApplyEnvOverrides layers NOTEGATE_* environment variables over the
// file-derived values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NOTEGATE_RPC_ADDR"); v != "" {
		c.RPCAddr = v
	}
	if v := os.Getenv("NOTEGATE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("NOTEGATE_LEDGER_BACKEND"); v != "" {
		c.Ledger.Backend = v
	}
	if v := os.Getenv("NOTEGATE_LEDGER_ENDPOINT"); v != "" {
		c.Ledger.Endpoint = v
	}
	if v := os.Getenv("NOTEGATE_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ledger.QueueCapacity = n
		}
	}
	if v := os.Getenv("NOTEGATE_INITIAL_FUNDING"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Ledger.InitialFunding = n
		}
	}
}

func (c *Config) normalize() {
	def := Default()
	if c.RPCAddr == "" {
		c.RPCAddr = def.RPCAddr
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = def.Ledger.Backend
	}
	if c.Ledger.QueueCapacity <= 0 {
		c.Ledger.QueueCapacity = def.Ledger.QueueCapacity
	}
	if c.Ledger.PropagationPollInterval <= 0 {
		c.Ledger.PropagationPollInterval = def.Ledger.PropagationPollInterval
	}
	if c.Ledger.PropagationPollAttempts <= 0 {
		c.Ledger.PropagationPollAttempts = def.Ledger.PropagationPollAttempts
	}
	if c.Ledger.MockPropagationDelay < 0 {
		c.Ledger.MockPropagationDelay = def.Ledger.MockPropagationDelay
	}
	if c.Ledger.Token.Symbol == "" {
		c.Ledger.Token = def.Ledger.Token
	}
	if c.Ledger.DefaultMintAmount == 0 {
		c.Ledger.DefaultMintAmount = def.Ledger.DefaultMintAmount
	}
}
