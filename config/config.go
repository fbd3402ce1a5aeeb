package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the vault daemon settings.
type Config struct {
	DataDir                string   `toml:"DataDir"`
	MetricsAddress         string   `toml:"MetricsAddress"`
	ExchangeEndpoint       string   `toml:"ExchangeEndpoint"`
	ExchangeTimeoutSeconds uint64   `toml:"ExchangeTimeoutSeconds"`
	FeeRecipient           string   `toml:"FeeRecipient"`
	ProtocolFeeBps         uint32   `toml:"ProtocolFeeBps"`
	AdminAddresses         []string `toml:"AdminAddresses"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if cfg.ExchangeTimeoutSeconds == 0 {
		cfg.ExchangeTimeoutSeconds = 10
	}
	if cfg.AdminAddresses == nil {
		cfg.AdminAddresses = []string{}
	}

	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:                "./vault-data",
		MetricsAddress:         ":9090",
		ExchangeEndpoint:       "",
		ExchangeTimeoutSeconds: 10,
		FeeRecipient:           "",
		ProtocolFeeBps:         0,
		AdminAddresses:         []string{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
