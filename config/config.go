package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GenesisAccount pre-funds a ledger account on first start. Amounts are
// decimal strings in the smallest unit of each balance bucket.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Native  string `toml:"Native,omitempty"`
	Token   string `toml:"Token,omitempty"`
}

type Config struct {
	RPCAddress   string           `toml:"RPCAddress"`
	DataDir      string           `toml:"DataDir"`
	ChainEnv     string           `toml:"ChainEnv"`
	NativeSymbol string           `toml:"NativeSymbol"`
	TokenSymbol  string           `toml:"TokenSymbol"`
	Genesis      []GenesisAccount `toml:"Genesis,omitempty"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet. Unknown keys are rejected so typos fail loudly.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrowd-data"
	}
	if strings.TrimSpace(cfg.NativeSymbol) == "" {
		cfg.NativeSymbol = "ETH"
	}
	if strings.TrimSpace(cfg.TokenSymbol) == "" {
		cfg.TokenSymbol = "BLOCKS"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
