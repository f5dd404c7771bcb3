package flcoord

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Client      ClientConfig      `toml:"client"`
}

type CoordinatorConfig struct {
	URL             string `toml:"url"`
	Token           string `toml:"token"`
	TLSVerification bool   `toml:"tls_verification"`
}

// ClientConfig drives the simulated client.
type ClientConfig struct {
	ID           string  `toml:"id"`
	SampleCount  uint64  `toml:"sample_count"`
	BaseAccuracy float64 `toml:"base_accuracy"`
	Weights      int     `toml:"weights"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
