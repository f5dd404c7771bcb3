package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/flcoord/coordinator"
	"github.com/absmach/flcoord/coordinator/api"
	"github.com/absmach/flcoord/coordinator/middleware"
	"github.com/absmach/flcoord/pkg/cron"
	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/ledger"
	"github.com/absmach/flcoord/pkg/mqtt"
	"github.com/absmach/flcoord/pkg/registry"
	"github.com/absmach/flcoord/pkg/scheduler"
	"github.com/absmach/flcoord/pkg/session"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "FL_COORDINATOR_HTTP_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel        string        `env:"FL_COORDINATOR_LOG_LEVEL"        envDefault:"info"`
	InstanceID      string        `env:"FL_COORDINATOR_INSTANCE_ID"`
	APIToken        string        `env:"FL_API_TOKEN"`
	MQTTAddress     string        `env:"FL_COORDINATOR_MQTT_ADDRESS"`
	MQTTQoS         uint8         `env:"FL_COORDINATOR_MQTT_QOS"         envDefault:"1"`
	MQTTTimeout     time.Duration `env:"FL_COORDINATOR_MQTT_TIMEOUT"     envDefault:"30s"`
	MQTTUsername    string        `env:"FL_COORDINATOR_MQTT_USERNAME"`
	MQTTPassword    string        `env:"FL_COORDINATOR_MQTT_PASSWORD"`
	MQTTBaseTopic   string        `env:"FL_COORDINATOR_MQTT_BASE_TOPIC"  envDefault:"fl"`
	LivenessTimeout time.Duration `env:"FL_COORDINATOR_LIVENESS_TIMEOUT" envDefault:"30s"`
	SweepInterval   time.Duration `env:"FL_COORDINATOR_SWEEP_INTERVAL"   envDefault:"5s"`
	QuorumTimeout   time.Duration `env:"FL_COORDINATOR_QUORUM_TIMEOUT"   envDefault:"5m"`
	RoundTimeout    time.Duration `env:"FL_COORDINATOR_ROUND_TIMEOUT"    envDefault:"10m"`
	SchedulerPolicy string        `env:"FL_COORDINATOR_SCHEDULER"        envDefault:"all"`
	EventBuffer     int           `env:"FL_COORDINATOR_EVENT_BUFFER"     envDefault:"64"`
	ModelExportDir  string        `env:"FL_COORDINATOR_MODEL_EXPORT_DIR"`
	Schedule        scheduleConfig
	Storage         storage.Config
	OTELURL         url.URL `env:"FL_COORDINATOR_OTEL_URL"`
	TraceRatio      float64 `env:"FL_COORDINATOR_TRACE_RATIO" envDefault:"0"`
}

// scheduleConfig describes recurring sessions. Nothing is scheduled when
// Expr is empty.
type scheduleConfig struct {
	Expr       string `env:"FL_COORDINATOR_SCHEDULE"`
	Timezone   string `env:"FL_COORDINATOR_SCHEDULE_TIMEZONE"    envDefault:"UTC"`
	ProjectID  string `env:"FL_COORDINATOR_SCHEDULE_PROJECT"`
	Rounds     uint64 `env:"FL_COORDINATOR_SCHEDULE_ROUNDS"      envDefault:"5"`
	MinClients uint64 `env:"FL_COORDINATOR_SCHEDULE_MIN_CLIENTS" envDefault:"2"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", cfg.Storage.Type), slog.String("error", err.Error()))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	reg := registry.New(repos.Clients, cfg.LivenessTimeout, logger)
	if err := reg.Load(ctx); err != nil {
		logger.Error("failed to load client registry", slog.String("error", err.Error()))

		return
	}

	sched, err := scheduler.New(cfg.SchedulerPolicy)
	if err != nil {
		logger.Error("failed to create scheduler", slog.String("error", err.Error()))

		return
	}

	opts := []coordinator.Option{
		coordinator.WithTimeouts(cfg.QuorumTimeout, cfg.RoundTimeout),
		coordinator.WithScheduler(sched),
	}

	if cfg.ModelExportDir != "" {
		exporter, err := fl.NewFileExporter(cfg.ModelExportDir)
		if err != nil {
			logger.Error("failed to create model exporter", slog.String("error", err.Error()))

			return
		}
		opts = append(opts, coordinator.WithExporter(exporter))
	}

	var pubsub mqtt.PubSub
	if cfg.MQTTAddress != "" {
		willTopic := cfg.MQTTBaseTopic + "/coordinator/status"
		pubsub, err = mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, svcName+"-"+cfg.InstanceID, cfg.MQTTUsername, cfg.MQTTPassword, willTopic, cfg.MQTTTimeout, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect mqtt pubsub", slog.Any("error", err))
			}
		}()
		opts = append(opts, coordinator.WithNotifier(coordinator.NewMQTTNotifier(pubsub, cfg.MQTTBaseTopic)))
	}

	broadcaster := events.NewBroadcaster(cfg.EventBuffer, logger)
	svc := coordinator.NewService(
		reg,
		ledger.New(repos.Metrics, logger),
		repos.Sessions,
		repos.Models,
		broadcaster,
		logger,
		opts...,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := svc.RecoverInterruptedSessions(ctx); err != nil {
		logger.Error("failed to recover interrupted sessions", slog.String("error", err.Error()))

		return
	}

	if pubsub != nil {
		if err := coordinator.Subscribe(ctx, cfg.MQTTBaseTopic, pubsub, svc, logger); err != nil {
			logger.Error("failed to subscribe to mqtt topics", slog.String("error", err.Error()))

			return
		}
		g.Go(func() error {
			return coordinator.ForwardEvents(ctx, cfg.MQTTBaseTopic, pubsub, svc, logger)
		})
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID, cfg.APIToken), logger)

	sweeper := coordinator.NewSweeper(svc, cfg.SweepInterval, logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	if cfg.Schedule.Expr != "" {
		cronSched, err := cron.Parse(cfg.Schedule.Expr, cfg.Schedule.Timezone)
		if err != nil {
			logger.Error("failed to parse session schedule", slog.String("error", err.Error()))

			return
		}
		template := session.Config{
			ProjectID:   cfg.Schedule.ProjectID,
			TotalRounds: cfg.Schedule.Rounds,
			MinClients:  cfg.Schedule.MinClients,
		}
		ss, err := coordinator.NewSessionScheduler(svc, cronSched, template, 0, logger)
		if err != nil {
			logger.Error("failed to create session scheduler", slog.String("error", err.Error()))

			return
		}
		g.Go(func() error {
			if err := ss.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down coordinator", slog.String("error", err.Error()))
	}
}
