// FermentWatch keeps home fermentation vessels at their target temperature.
//
// Every cycle it reads each project's sensor through the automation hub,
// records the reading, and switches the project's heating outlet when the
// vessel is too cold. Samples and outlet changes go to InfluxDB, live
// readings to MQTT, and an HTTP API serves configuration, manual commands
// and history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/fermentwatch/migrations"

	"github.com/nerrad567/fermentwatch/internal/api"
	"github.com/nerrad567/fermentwatch/internal/audit"
	"github.com/nerrad567/fermentwatch/internal/control"
	"github.com/nerrad567/fermentwatch/internal/device"
	"github.com/nerrad567/fermentwatch/internal/hub"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/config"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/database"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/logging"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/fermentwatch/internal/project"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// mqttConnectBudget bounds start-up retries against the broker.
const mqttConnectBudget = 2 * time.Minute

// commandTimeout bounds a manual outlet command received over MQTT.
const commandTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, starts the control loop and the API, and
// blocks until ctx is cancelled. Start-up failures are returned; nothing
// after start-up is fatal.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting FermentWatch",
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
	log.Info("configuration loaded",
		"path", configPath,
		"poll_interval", cfg.PollInterval(),
		"hub_timeout", cfg.HubTimeout(),
	)

	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log)
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", devices.GetDeviceCount())

	projects := project.NewSQLiteRepository(db.DB)

	hubClient, err := hub.New(hub.Config{
		BaseURL:            cfg.Hub.URL,
		Token:              cfg.Hub.Token,
		Timeout:            cfg.HubTimeout(),
		BreakerMaxFailures: cfg.Hub.Breaker.MaxFailures,
		BreakerOpenFor:     cfg.BreakerOpenFor(),
		Logger:             log,
	})
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}
	if hubErr := hubClient.HealthCheck(ctx); hubErr != nil {
		// The loop tolerates an absent hub; readings resume once it answers.
		log.Warn("automation hub not reachable at start-up", "url", cfg.Hub.URL, "error", hubErr)
	}

	// Optional collaborators stay nil interfaces when disabled.
	var (
		recorder  control.Recorder
		history   api.History
		publisher control.Publisher
	)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = connectInflux(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		recorder, history = influxClient, influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, samples will not be recorded")
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		publisher = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, live telemetry will not be published")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := control.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	loop, err := control.NewLoop(control.Deps{
		Projects:    projects,
		Devices:     devices,
		Hub:         hubClient,
		Recorder:    recorder,
		Publisher:   publisher,
		Metrics:     metrics,
		Logger:      log,
		Interval:    cfg.PollInterval(),
		CallTimeout: cfg.HubTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating control loop: %w", err)
	}

	journal := audit.NewSQLiteRepository(db.DB)

	if mqttClient != nil {
		if subErr := mqttClient.SubscribeOutletCommands(outletCommandHandler(ctx, loop, journal, log)); subErr != nil {
			log.Warn("manual outlet commands over MQTT unavailable", "error", subErr)
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("starting control loop: %w", err)
	}
	defer loop.Stop()
	log.Info("control loop started", "interval", cfg.PollInterval())

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Projects: projects,
		Devices:  devices,
		Loop:     loop,
		History:  history,
		Audit:    journal,
		Gatherer: registry,
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

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// No new cycles start after Stop; the in-flight one finishes first.
	loop.Stop()

	log.Info("FermentWatch stopped")
	return nil
}

// getConfigPath returns FERMENTWATCH_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("FERMENTWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startupBackOff returns an exponential schedule that gives up after
// budget or when ctx is done. Unset delays fall back to one second.
func startupBackOff(ctx context.Context, initial, maxInterval, budget time.Duration) backoff.BackOffContext {
	if initial <= 0 {
		initial = time.Second
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = budget
	return backoff.WithContext(bo, ctx)
}

// connectInflux retries the InfluxDB ping until it answers or the
// configured connect timeout runs out.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	var client *influxdb.Client
	op := func() error {
		c, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn("InfluxDB not ready, retrying", "error", err, "retry_in", next)
	}

	bo := startupBackOff(ctx, time.Second, 10*time.Second, cfg.InfluxConnectTimeout())
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return client, nil
}

// connectMQTT retries the broker connection using the configured reconnect
// delays. Once connected, paho handles reconnection itself.
func connectMQTT(ctx context.Context, cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	var client *mqtt.Client
	op := func() error {
		c, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn("MQTT broker not ready, retrying", "error", err, "retry_in", next)
	}

	bo := startupBackOff(ctx,
		time.Duration(cfg.MQTT.Reconnect.InitialDelay)*time.Second,
		time.Duration(cfg.MQTT.Reconnect.MaxDelay)*time.Second,
		mqttConnectBudget,
	)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}
	return client, nil
}

// outletCommandHandler routes MQTT outlet commands to the loop's manual path
// and journals the ones that succeed.
func outletCommandHandler(ctx context.Context, loop *control.Loop, journal audit.Repository, log *logging.Logger) mqtt.OutletCommandHandler {
	return func(projectID string, on bool) error {
		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		if err := loop.SetOutletManual(cmdCtx, projectID, on); err != nil {
			return err
		}
		if journal == nil {
			return nil
		}
		entry := &audit.Entry{
			Action:     audit.ActionOutlet,
			EntityType: audit.EntityProject,
			EntityID:   projectID,
			Source:     audit.SourceMQTT,
			Details:    map[string]any{"on": on},
		}
		if err := journal.Create(cmdCtx, entry); err != nil {
			log.Warn("failed to journal outlet command", "project_id", projectID, "error", err)
		}
		return nil
	}
}

// healthCheck verifies the infrastructure connections. Disabled components
// are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
