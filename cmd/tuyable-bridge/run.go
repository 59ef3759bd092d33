package main

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/nerrad567/tuyable-bridge/migrations"

	"github.com/nerrad567/tuyable-bridge/internal/api"
	"github.com/nerrad567/tuyable-bridge/internal/bridges/tuyable"
	"github.com/nerrad567/tuyable-bridge/internal/device"
	"github.com/nerrad567/tuyable-bridge/internal/devicemanager"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/database"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuyable-bridge/internal/scanner"
)

// run is the actual application logic, separated from main for testability.
//
// Components start in dependency order; deferred cleanups stop them in
// reverse once ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting tuyable bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	stats := registry.GetStats()
	log.Info("device registry initialised",
		"devices", stats.TotalDevices,
		"entities", stats.TotalEntities,
	)
	history := device.NewSQLiteStateHistoryRepository(db.DB)

	credentials := devicemanager.NewCredentialStore(db.DB)
	if seedErr := credentials.Seed(ctx, cfg.Bridge.Devices); seedErr != nil {
		return fmt.Errorf("seeding credentials: %w", seedErr)
	}

	topics := mqtt.NewTopics(cfg.Bridge.TopicPrefix)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", topics.Prefix,
	)

	// Seeded keys are handed to the device manager as retained messages.
	published, err := credentials.PublishCredentials(ctx, mqttClient, topics, mqttClient.QoS())
	if err != nil {
		return fmt.Errorf("publishing credentials: %w", err)
	}
	log.Info("device credentials published", "devices", published)

	// A nil *influxdb.Client must not reach the bridge as a non-nil interface.
	var telemetry tuyable.Telemetry
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
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
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	manager, err := devicemanager.NewManager(devicemanager.ManagerConfig{
		Subscriber: mqttClient,
		Topics:     topics,
		Recorder:   credentials,
		Logger:     log.Component("devicemanager"),
		QoS:        mqttClient.QoS(),
	})
	if err != nil {
		return fmt.Errorf("creating device manager: %w", err)
	}

	bridge, err := tuyable.NewBridge(tuyable.BridgeOptions{
		Config:      cfg.Bridge,
		MQTTClient:  mqttClient,
		Topics:      topics,
		Devices:     manager,
		Registry:    registry,
		History:     history,
		Telemetry:   telemetry,
		Credentials: credentials,
		Version:     version,
		Logger:      log.Component("bridge"),
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
	}()

	// Subscribe only once the bridge listens for ready devices, so retained
	// info messages are not missed.
	if startErr := manager.Start(); startErr != nil {
		return fmt.Errorf("starting device manager: %w", startErr)
	}

	bleScanner := startScanner(ctx, cfg.Scanner, bridge, log)
	if bleScanner != nil {
		defer func() {
			log.Info("stopping scanner")
			bleScanner.Stop()
		}()
	}

	if retention := cfg.GetHistoryRetention(); retention > 0 {
		pruner, pruneErr := device.NewHistoryPruner(history.PruneHistory, retention, cfg.History.PruneSchedule)
		if pruneErr != nil {
			return fmt.Errorf("creating history pruner: %w", pruneErr)
		}
		pruner.SetLogger(log.Component("pruner"))
		pruner.Start(ctx)
		defer func() {
			log.Info("stopping history pruner")
			pruner.Stop()
		}()
	} else {
		log.Info("state history pruning disabled")
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Registry: registry,
			History:  history,
			Bridge:   bridge,
			Manager:  manager,
			HealthChecks: map[string]api.HealthCheckFunc{
				"database": db.HealthCheck,
				"mqtt":     mqttClient.HealthCheck,
			},
			Version: version,
		}
		if bleScanner != nil {
			deps.Scanner = bleScanner
		}
		if influxClient != nil {
			deps.HealthChecks["influxdb"] = influxClient.HealthCheck
		}

		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// startScanner starts the BLE scanner when enabled. A missing or broken
// adapter is logged and the bridge runs without discovery.
func startScanner(ctx context.Context, cfg config.ScannerConfig, bridge *tuyable.Bridge, log *logging.Logger) *scanner.Scanner {
	if !cfg.Enabled {
		log.Info("BLE scanner disabled")
		return nil
	}

	s, err := scanner.New(scanner.Config{
		Adapter:     scanner.NewBluetoothAdapter(),
		MinInterval: cfg.MinInterval,
		Logger:      log.Component("scanner"),
		Handler: func(ctx context.Context, adv scanner.Advertisement) {
			bridge.HandleAdvertisement(ctx, tuyable.Advertisement{
				Address: adv.Address,
				Name:    adv.Name,
				RSSI:    adv.RSSI,
				SeenAt:  adv.SeenAt,
			})
		},
	})
	if err != nil {
		log.Warn("BLE scanner unavailable", "error", err)
		return nil
	}
	if err := s.Start(ctx); err != nil {
		log.Warn("BLE scanner failed to start", "error", err)
		return nil
	}
	log.Info("BLE scanner started", "min_interval", cfg.MinInterval)
	return s
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
