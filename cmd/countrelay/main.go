// Count Relay - MQTT counter-device event relay
//
// The relay subscribes to the counter fleet's MQTT topics, applies count
// changes to SQLite, gates device fleets with RFID badge toggles and fans
// accepted events out to authenticated WebSocket viewers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/countrelay/internal/api"
	"github.com/nerrad567/countrelay/internal/audit"
	"github.com/nerrad567/countrelay/internal/auth"
	"github.com/nerrad567/countrelay/internal/device"
	"github.com/nerrad567/countrelay/internal/hub"
	"github.com/nerrad567/countrelay/internal/infrastructure/config"
	"github.com/nerrad567/countrelay/internal/infrastructure/database"
	"github.com/nerrad567/countrelay/internal/infrastructure/influxdb"
	"github.com/nerrad567/countrelay/internal/infrastructure/logging"
	"github.com/nerrad567/countrelay/internal/infrastructure/mqtt"
	"github.com/nerrad567/countrelay/internal/ownership"
	"github.com/nerrad567/countrelay/internal/relay"
	_ "github.com/nerrad567/countrelay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// statsInterval is how often relay totals are written to InfluxDB.
	statsInterval = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay together and blocks until ctx is cancelled.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting count relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	devices := device.NewStore(db)
	devices.SetLogger(log.Component("device"))
	owners := ownership.NewDirectory(db)
	accessLog := audit.NewSQLiteRepository(db)

	authSvc := auth.NewService(auth.NewUserRepository(db), cfg.Security.JWT.Secret, cfg.Security.JWT.SessionTTLDuration())

	viewers := hub.New(owners)
	viewers.SetLogger(log.Component("hub"))

	gate := relay.NewGate(owners, devices, accessLog, viewers)
	gate.SetLogger(log.Component("gate"))

	router := relay.NewRouter(devices, gate, viewers)
	router.SetLogger(log.Component("router"))

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		router.SetTelemetry(influxClient)
	}

	mqttLog := log.Component("mqtt")
	dial := func(ctx context.Context) (relay.Session, error) {
		session, dialErr := mqtt.Dial(ctx, cfg.MQTT, mqttLog)
		if dialErr != nil {
			return nil, dialErr
		}
		return session, nil
	}
	supervisor := relay.NewSupervisor(dial, router, mqtt.NewTopics(cfg.MQTT.Topic), cfg.MQTT.ReconnectDelay())
	supervisor.SetLogger(log.Component("supervisor"))
	supervisor.SetOnStateChange(func(s relay.State) {
		log.Info("broker session state changed", "state", s.String())
	})

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Auth:     authSvc,
		Devices:  devices,
		Owners:   owners,
		Audit:    accessLog,
		Hub:      viewers,
		Database: db,
		Broker:   supervisor,
		Resetter: supervisor,
		Stats:    router,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		viewers.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return supervisor.Run(gctx)
	})
	if influxClient != nil {
		g.Go(func() error {
			reportStats(gctx, router, viewers, influxClient)
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"topic", cfg.MQTT.Topic,
	)

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("count relay stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses COUNTRELAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COUNTRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux opens the optional telemetry sink. A nil client means
// telemetry is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return client, nil
}

// reportStats writes routing totals and viewer count every statsInterval.
func reportStats(ctx context.Context, router *relay.Router, viewers *hub.Hub, sink *influxdb.Client) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := router.Stats()
			sink.RecordRelayStats(s.Processed, s.Ignored, s.Failed, viewers.ClientCount(), now)
		}
	}
}
