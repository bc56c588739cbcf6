// Gray Logic LightwaveRF Bridge
//
// This is the main entry point for the LightwaveRF bridge. It decodes
// 433 MHz LightwaveRF frames from a receiver on a GPIO line, publishes them
// to the Gray Logic MQTT bus, and transmits commands from Core as configured
// LightwaveRF remotes.
//
// Configuration is read from configs/config.yaml, or the path in
// GRAYLOGIC_CONFIG. "lwrf-bridge rollback" reverts the latest schema
// migration instead of starting the bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-lwrf/migrations"

	"github.com/nerrad567/gray-logic-lwrf/internal/activity"
	"github.com/nerrad567/gray-logic-lwrf/internal/api"
	"github.com/nerrad567/gray-logic-lwrf/internal/bridges/lwrf"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lwrf/internal/lightwaverf"
	"github.com/nerrad567/gray-logic-lwrf/internal/pairing"
	"github.com/nerrad567/gray-logic-lwrf/internal/radio"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entry := run
	if len(os.Args) > 1 && os.Args[1] == "rollback" {
		entry = rollback
	}
	if err := entry(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rollback reverts the most recent schema migration and exits. It is the
// way back after an upgrade whose schema the previous release cannot read.
func rollback(ctx context.Context) error {
	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.GetBusyTimeout(),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Nothing left to do with a close failure

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("migration rolled back", "path", db.Path(), "applied", len(applied), "pending", len(pending))
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting LightwaveRF bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	log.Debug("effective configuration", "config", cfg.Dump())

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.GetBusyTimeout(),
	})
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

	// Pairing registry
	registry := pairing.NewRegistry(pairing.NewSQLiteStore(db, pairing.RegionSize))
	registry.SetLogger(log.Component("pairing"))
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading pairing registry: %w", loadErr)
	}
	if registry.Corrupted() {
		log.Warn("pairing store count out of range, clamped", "capacity", pairing.Capacity)
	}
	log.Info("pairing registry loaded", "paired", registry.Count())

	// Radio and transceiver
	transceiver, closeRadio, err := openTransceiver(cfg, log)
	if err != nil {
		return err
	}
	defer closeRadio()

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
		influxClient = nil
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	opts := lwrf.Options{
		Config:     cfg,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Radio:      transceiver,
		Pairings:   registry,
		Activity:   activity.NewRecorder(db),
		Version:    version,
		Logger:     log.Component("bridge"),
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
		opts.MetricsInterval = cfg.GetMetricsInterval()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		opts.Events = apiServer.Hub()
	}

	bridge, err := lwrf.NewBridge(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	mqttClient.SetOnDisconnect(bridge.BrokerLost)
	mqttClient.SetOnConnect(bridge.BrokerRestored)
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if apiServer != nil {
		apiServer.SetBridge(bridge)
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := bridge.Run(ctx); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	// Deferred cleanup runs in reverse order: API, bridge, InfluxDB, MQTT,
	// radio, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openTransceiver opens the configured radio and sets up the LightwaveRF
// transceiver on it. The returned function closes both.
func openTransceiver(cfg *config.Config, log *logging.Logger) (*lightwaverf.Transceiver, func(), error) {
	rev, err := lightwaverf.RevisionByName(cfg.Radio.Revision)
	if err != nil {
		return nil, nil, fmt.Errorf("selecting protocol revision: %w", err)
	}

	dev, err := radio.Open(radio.Config{
		Driver:   cfg.Radio.Driver,
		Chip:     cfg.Radio.Chip,
		RXLine:   cfg.Radio.RXLine,
		TXLine:   cfg.Radio.TXLine,
		Consumer: cfg.Radio.Consumer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening radio: %w", err)
	}

	var out lightwaverf.Line
	if dev.CanTransmit() {
		out = dev
	}

	transceiver, err := lightwaverf.Setup(lightwaverf.Options{
		Revision: rev,
		Input:    dev,
		Output:   out,
		Logger:   log.Component("lightwaverf"),
	})
	if err != nil {
		_ = dev.Close()
		return nil, nil, fmt.Errorf("setting up transceiver: %w", err)
	}
	log.Info("radio ready",
		"driver", dev.Name(),
		"revision", rev.Name,
		"transmit", out != nil,
	)

	closeFn := func() {
		log.Info("closing radio")
		_ = transceiver.Close()
		if closeErr := dev.Close(); closeErr != nil {
			log.Error("error closing radio", "error", closeErr)
		}
	}
	return transceiver, closeFn, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

const healthCheckTimeout = 10 * time.Second

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements lwrf.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements lwrf.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements lwrf.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
