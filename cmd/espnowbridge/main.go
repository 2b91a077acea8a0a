// ESP-NOW Bridge
//
// This is the main entry point of the bridge. It reads JSON frames from an
// ESP-NOW gateway on a serial port and exposes the nodes behind it as
// devices, sensors and events:
//   - sensors and events are mirrored to MQTT with Home Assistant discovery
//   - trigger bindings survive restarts in SQLite
//   - an HTTP API and WebSocket stream expose live state
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/espnow-bridge/internal/api"
	"github.com/nerrad567/espnow-bridge/internal/bridges/espnow"
	"github.com/nerrad567/espnow-bridge/internal/device"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/config"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/database"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/espnow-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/espnow-bridge/internal/store"
	"github.com/nerrad567/espnow-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when ESPNOW_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// eventLogSize is the number of events kept for /api/v1/events.
	eventLogSize = 200
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ESP-NOW bridge",
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
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

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
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log.Component("device"))
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry loaded", "devices", len(devices.List()))

	snapshots, err := store.New(db.DB, cfg.Store.Key, cfg.SaveDelay())
	if err != nil {
		return fmt.Errorf("creating snapshot store: %w", err)
	}
	snapshots.SetLogger(log.Component("store"))

	bridgeLog := log.Component("espnow")
	nodes := espnow.NewNodeRegistry(devices, bridgeLog)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := espnow.NewMetrics(registry, nodes)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	initial, maxDelay := cfg.SerialBackoff()
	transport, err := espnow.NewSerialTransport(espnow.SerialOptions{
		Port:         cfg.Serial.Port,
		Baud:         cfg.Serial.Baud,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		OnReconnect:  metrics.ObserveReconnect,
		Logger:       log.Component("serial"),
	})
	if err != nil {
		return fmt.Errorf("creating serial transport: %w", err)
	}

	var stateSinks []espnow.StateSink
	var eventSinks []espnow.EventSink

	mqttClient, publisher, err := startMQTT(cfg, metrics, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		stateSinks = append(stateSinks, publisher)
		eventSinks = append(eventSinks, publisher)
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history := espnow.NewHistorySink(influxClient)
		stateSinks = append(stateSinks, history)
		eventSinks = append(eventSinks, history)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	events := api.NewEventLog(nodes, eventLogSize)
	stateSinks = append(stateSinks, hub)
	eventSinks = append(eventSinks, hub, events)

	healthCfg := espnow.HealthReporterConfig{
		BridgeID:  cfg.Site.ID,
		Version:   version,
		Transport: transport,
		Nodes:     nodes,
	}
	if mqttClient != nil {
		healthCfg.Publisher = mqttClient
	}
	health := espnow.NewHealthReporter(healthCfg)
	health.SetLogger(bridgeLog)

	bridge, err := espnow.NewBridge(espnow.BridgeOptions{
		Transport:  transport,
		Nodes:      nodes,
		Entities:   devices,
		Store:      snapshots,
		Logger:     bridgeLog,
		StateSinks: stateSinks,
		EventSinks: eventSinks,
		Metrics:    metrics,
		Health:     health,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := snapshots.Close(closeCtx); closeErr != nil {
			log.Error("error closing snapshot store", "error", closeErr)
		}
	}()
	log.Info("bridge started", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud, "nodes", nodes.Len())

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Nodes:    bridge.Nodes(),
			Triggers: bridge.Triggers(),
			Health:   bridge.Health(),
			Gatherer: registry,
			Hub:      hub,
			Events:   events,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred calls run in reverse order: API, bridge and store,
	// InfluxDB, MQTT, then the database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startMQTT connects to the broker and builds the publisher.
// Both results are nil when MQTT is disabled.
//
// Parameters:
//   - cfg: Application configuration
//   - metrics: Collector for publish results
//   - log: Logger instance
//
// Returns:
//   - *mqtt.Client: Connected client, or nil
//   - *espnow.Publisher: Publisher bound to the client, or nil
//   - error: If connection or subscription fails
func startMQTT(cfg *config.Config, metrics *espnow.Metrics, log *logging.Logger) (*mqtt.Client, *espnow.Publisher, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	topics := mqtt.Topics{DiscoveryPrefix: cfg.Discovery.Prefix}
	publisher, err := espnow.NewPublisher(espnow.PublisherOptions{
		Client:          client,
		Topics:          topics,
		QoS:             byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
		Discovery:       cfg.Discovery.Enabled,
		BreakerFailures: cfg.MQTT.Breaker.MaxFailures,
		BreakerOpen:     time.Duration(cfg.MQTT.Breaker.OpenSeconds) * time.Second,
		Metrics:         metrics,
		Logger:          log.Component("publisher"),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating publisher: %w", err)
	}

	if cfg.Discovery.Enabled {
		if err := client.Subscribe(topics.DiscoveryStatus(), 1, publisher.HandleDiscoveryStatus); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("subscribing to discovery status: %w", err)
		}
	}
	return client, publisher, nil
}

// getConfigPath returns the configuration file path.
// Uses ESPNOW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ESPNOW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	// The serial port is not checked: the bridge reopens it in the
	// background and reports it through health messages.
	return nil
}
