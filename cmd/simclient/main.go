package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/flcoord"
	"github.com/absmach/flcoord/pkg/sdk"
	"github.com/absmach/flcoord/simclient"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const pathEnv = ".env"

type envConfig struct {
	LogLevel          string        `env:"FL_SIMCLIENT_LOG_LEVEL"          envDefault:"info"`
	CoordinatorURL    string        `env:"FL_SIMCLIENT_COORDINATOR_URL"    envDefault:"http://localhost:7070"`
	Token             string        `env:"FL_API_TOKEN"`
	ID                string        `env:"FL_SIMCLIENT_ID"`
	SampleCount       uint64        `env:"FL_SIMCLIENT_SAMPLE_COUNT"       envDefault:"100"`
	BaseAccuracy      float64       `env:"FL_SIMCLIENT_BASE_ACCURACY"      envDefault:"0.5"`
	Weights           int           `env:"FL_SIMCLIENT_WEIGHTS"            envDefault:"4"`
	CBOR              bool          `env:"FL_SIMCLIENT_CBOR"               envDefault:"false"`
	HeartbeatInterval time.Duration `env:"FL_SIMCLIENT_HEARTBEAT_INTERVAL" envDefault:"5s"`
	PollInterval      time.Duration `env:"FL_SIMCLIENT_POLL_INTERVAL"      envDefault:"2s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "TOML config file")
	flag.Parse()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tls := false
	if configPath != "" {
		file, err := flcoord.LoadConfig(configPath)
		if err != nil {
			return err
		}
		applyFile(&cfg, file)
		tls = file.Coordinator.TLSVerification
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sdk.NewSDK(sdk.Config{
		CoordinatorURL:  cfg.CoordinatorURL,
		Token:           cfg.Token,
		TLSVerification: tls,
	})

	c, err := simclient.New(simclient.Config{
		ID:                cfg.ID,
		SampleCount:       cfg.SampleCount,
		BaseAccuracy:      cfg.BaseAccuracy,
		Weights:           cfg.Weights,
		CBOR:              cfg.CBOR,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PollInterval:      cfg.PollInterval,
	}, s, logger)
	if err != nil {
		return err
	}

	logger.Info("starting simulated client", slog.String("client_id", cfg.ID), slog.String("coordinator", cfg.CoordinatorURL))

	return c.Run(ctx)
}

// applyFile lets values from the TOML file override the environment.
func applyFile(cfg *envConfig, file *flcoord.Config) {
	if file.Coordinator.URL != "" {
		cfg.CoordinatorURL = file.Coordinator.URL
	}
	if file.Coordinator.Token != "" {
		cfg.Token = file.Coordinator.Token
	}
	if file.Client.ID != "" {
		cfg.ID = file.Client.ID
	}
	if file.Client.SampleCount != 0 {
		cfg.SampleCount = file.Client.SampleCount
	}
	if file.Client.BaseAccuracy != 0 {
		cfg.BaseAccuracy = file.Client.BaseAccuracy
	}
	if file.Client.Weights != 0 {
		cfg.Weights = file.Client.Weights
	}
}
