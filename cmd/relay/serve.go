package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-relay/internal/api"
	"github.com/nerrad567/gray-logic-relay/internal/command"
	"github.com/nerrad567/gray-logic-relay/internal/device"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/mailbox"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
	"github.com/nerrad567/gray-logic-relay/internal/sweeper"
)

// serveCmd runs the relay until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay API and sweeper",
	Long: `Start the relay.

The server will:
  - Load configuration (a missing default config file means built-in defaults)
  - Open the store, applying SQLite migrations
  - Connect to MQTT and InfluxDB if enabled
  - Serve the HTTP API and run the retention sweeper

The server runs until interrupted (Ctrl+C) or receives SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		path, explicit := configPath(cmd)
		return run(ctx, path, explicit)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// run is the actual application logic, separated from the command for
// testability. It returns nil on clean shutdown.
func run(ctx context.Context, path string, explicit bool) error {
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		logging.Default().Error("configuration failed", "path", path, "error", err)
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting Gray Logic Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
		"driver", cfg.Database.Driver,
	)

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store")
		if closeErr := store.close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	registry := device.NewRegistry(store.devices, cfg.Relay.OfflineAfter)
	registry.SetLogger(log.Component("device"))
	queue := command.NewQueue(store.commands)
	queue.SetLogger(log.Component("command"))
	box := mailbox.New(store.responses)
	box.SetLogger(log.Component("mailbox"))

	svc := relay.NewService(registry, queue, box, relay.Config{
		PollLimit:   cfg.Relay.PollLimit,
		ReadLimit:   cfg.Relay.ReadLimit,
		ResponseTTL: cfg.Relay.ResponseTTL,
	})
	svc.SetLogger(log.Component("relay"))

	sweepCfg := sweeper.Config{
		Interval:     cfg.Relay.CleanupInterval,
		CommandTTL:   cfg.Relay.CommandTTL,
		ResponseTTL:  cfg.Relay.ResponseTTL,
		OfflineAfter: registry.OfflineAfter(),
		Commands:     queue,
		Responses:    box,
		Devices:      registry,
	}
	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log.Component("api"),
		Service: svc,
		Store:   store.health,
		Pool:    store.pool,
		Version: version,
	}

	// MQTT and InfluxDB are optional; the relay serves without them.
	if mqttClient := connectMQTT(cfg, log); mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		events := mqtt.NewEventPublisher(mqttClient)
		svc.SetPresencePublisher(events)
		sweepCfg.Events = events
		deps.MQTT = mqttClient
	}

	if influxClient := connectInfluxDB(ctx, cfg, log); influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		svc.SetMetrics(influxClient)
		sweepCfg.Metrics = influxClient
		deps.InfluxDB = influxClient
	}

	if err := store.health.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}

	server, err := api.New(deps)
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
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("API server health check: %w", err)
	}

	sw, err := sweeper.New(sweepCfg)
	if err != nil {
		return fmt.Errorf("creating sweeper: %w", err)
	}
	sw.SetLogger(log.Component("sweeper"))
	sw.Start(ctx)
	defer sw.Stop()

	log.Info("initialisation complete, waiting for shutdown signal",
		"cleanup_interval", sw.Interval().String(),
		"offline_after", registry.OfflineAfter().String(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// sweeper, API server, InfluxDB, MQTT, store.
	return nil
}

// connectMQTT connects to the broker when enabled. A failed connection is
// logged and the relay runs without presence events.
func connectMQTT(cfg *config.Config, log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without events", "error", err)
		return nil
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client
}

// connectInfluxDB connects when enabled. A failed connection is logged and
// the relay runs without metrics.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without metrics", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})

	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}
