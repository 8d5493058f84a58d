// Kennel Core - IoTail kennel fleet controller
//
// Kennel Core runs the two stateful halves of the IoTail dog kennel
// system: the reservation lifecycle (booking, unlock codes, expiry,
// disinfection) and the per-kennel environmental control loop (heat
// index smoothing, HVAC actuation, owner alerts). Everything else -
// the catalog, push delivery, sensor hardware - is reached through
// narrow clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iotail/kennel-core/internal/api"
	"github.com/iotail/kennel-core/internal/audit"
	"github.com/iotail/kennel-core/internal/catalog"
	"github.com/iotail/kennel-core/internal/climate"
	"github.com/iotail/kennel-core/internal/infrastructure/config"
	"github.com/iotail/kennel-core/internal/infrastructure/database"
	"github.com/iotail/kennel-core/internal/infrastructure/influxdb"
	"github.com/iotail/kennel-core/internal/infrastructure/logging"
	"github.com/iotail/kennel-core/internal/infrastructure/mqtt"
	"github.com/iotail/kennel-core/internal/push"
	"github.com/iotail/kennel-core/internal/reservation"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Secrets (catalog token, MQTT credentials, JWT secret) come from
	// the environment; a local .env file is a development convenience.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	log := logging.Default()
	log.Info("starting Kennel Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Audit database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
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
	if err := db.Init(ctx); err != nil {
		return fmt.Errorf("initialising database schema: %w", err)
	}
	auditRepo := audit.New(db.DB)
	log.Info("audit database ready", "path", cfg.Database.Path)

	// Message bus
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Telemetry store (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, log)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			influxClient.Close()
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// External collaborators
	catalogClient := catalog.New(cfg.Catalog)
	var sink push.Sink = push.Noop{}
	if cfg.Push.Enabled {
		sink = push.NewFCM(cfg.Push)
		log.Info("push delivery enabled", "url", cfg.Push.URL)
	} else {
		log.Info("push delivery disabled")
	}

	topics := mqtt.Topics{Base: cfg.MQTT.BaseTopic}
	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2 by config

	// Reservation scheduler
	scheduler := reservation.New(cfg.Reservation, reservation.Deps{
		Catalog: catalogClient,
		Bus:     mqttClient,
		Push:    sink,
		Store:   reservation.NewSnapshotStore(cfg.Reservation.SnapshotPath),
		Audit:   auditRepo,
		Topics:  topics,
		QoS:     qos,
		Logger:  log,
	})
	if err := scheduler.Recover(ctx); err != nil {
		return fmt.Errorf("recovering reservation state: %w", err)
	}
	go scheduler.Run(ctx)

	// Environmental control loop
	controller := climate.New(cfg.Climate, climate.Deps{
		Reservations: scheduler,
		Catalog:      catalogClient,
		Bus:          mqttClient,
		Push:         sink,
		Audit:        auditRepo,
		Telemetry:    influxClient,
		Topics:       topics,
		QoS:          qos,
		Logger:       log,
	})
	go controller.Run(ctx)

	// Bus subscriptions: sensor telemetry feeds the control loop,
	// kennel status feeds disinfection completion.
	if err := mqttClient.Subscribe(topics.AllKennelSensors(), qos, controller.HandleSensorMessage); err != nil {
		return fmt.Errorf("subscribing to sensor topics: %w", err)
	}
	if err := mqttClient.Subscribe(topics.AllKennelStatuses(), qos, scheduler.HandleStatusMessage); err != nil {
		return fmt.Errorf("subscribing to status topics: %w", err)
	}
	log.Info("bus subscriptions established",
		"sensors", topics.AllKennelSensors(),
		"statuses", topics.AllKennelStatuses(),
	)

	// HTTP API
	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		Security:     cfg.Security,
		Logger:       log,
		Reservations: scheduler,
		Audit:        auditRepo,
		Checks:       checks,
		Version:      version,
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

	// Lifecycle events reach WebSocket clients through the hub.
	scheduler.SetEventObserver(server.Hub().Broadcast)

	// Announce availability to the catalog registry.
	go heartbeatLoop(ctx, cfg, catalogClient, log)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// heartbeatLoop announces this service to the catalog on a fixed
// interval so it shows up in the device registry.
func heartbeatLoop(ctx context.Context, cfg *config.Config, client *catalog.Client, log *logging.Logger) {
	interval := time.Duration(cfg.Catalog.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	send := func() {
		if err := client.Heartbeat(ctx, cfg.Service.ID); err != nil {
			log.Warn("catalog heartbeat failed", "error", err)
		}
	}
	send()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses the KENNELCORE_CONFIG environment variable if set.
func getConfigPath() string {
	if path := os.Getenv("KENNELCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
