// rvcbridge translates RV-C traffic on a CAN bus into MQTT messages for a
// home-automation hub, and hub commands back into RV-C dimmer frames.
//
// Configuration is read from --config, RVCBRIDGE_CONFIG, or
// configs/config.yaml, in that order.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rvc-bridge/internal/bridge"
	"github.com/nerrad567/rvc-bridge/internal/canbus"
	"github.com/nerrad567/rvc-bridge/internal/devices"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/database"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/rvc-bridge/internal/rvc"
	"github.com/nerrad567/rvc-bridge/internal/watchdog"
	"github.com/nerrad567/rvc-bridge/migrations"
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
	configEnvVar      = "RVCBRIDGE_CONFIG"

	// sightingReportTimeout bounds the shutdown sightings query.
	sightingReportTimeout = 5 * time.Second
)

// options holds parsed command-line flags.
type options struct {
	configPath  string
	debug       bool
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("rvcbridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("rvcbridge", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (default $"+configEnvVar+" or "+defaultConfigPath+")")
	fs.BoolVarP(&opts.debug, "debug", "d", false, "force debug logging")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// resolveConfigPath picks the flag value, then the environment, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(configEnvVar); p != "" {
		return p
	}
	return defaultConfigPath
}

// run wires the bridge and blocks until ctx is cancelled, the capture source
// ends, or a fatal error occurs.
func run(ctx context.Context, opts options) error {
	log := logging.Default()

	configPath := resolveConfigPath(opts.configPath)
	log.Debug("loading configuration", "path", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, closeLog, err := logging.New(cfg.Logging, version, opts.debug)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer closeLog() //nolint:errcheck // Nothing useful to do on shutdown

	log.Info("starting rvcbridge",
		"version", version,
		"commit", commit,
		"config", configPath,
		"bridge_id", cfg.Bridge.ID,
	)

	registry, err := rvc.LoadRegistry(cfg.Spec.RegistryFile)
	if err != nil {
		return fmt.Errorf("loading spec registry: %w", err)
	}
	directory, err := devices.Load(cfg.Spec.DevicesFile, devices.Options{TopicBase: cfg.Bridge.TopicBase})
	if err != nil {
		return fmt.Errorf("loading device directory: %w", err)
	}
	log.Info("spec loaded", "dgns", registry.Len(), "devices", directory.Len())

	source, err := newSource(cfg.CAN, log.Component("canbus"))
	if err != nil {
		return err
	}

	mqttClient, err := mqtt.ConnectWithLogger(ctx, cfg.MQTT, log.Component("mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
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
	broker := &mqttAdapter{client: mqttClient}

	var recorder bridge.SightingRecorder
	if cfg.Database.Enabled {
		rec, closeDB, dbErr := openRecorder(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer closeDB()
		recorder = rec
	}

	stats := &bridge.Stats{}
	sink := canbus.NewCansendSink(cfg.CAN.CansendBinary, cfg.CAN.Interface)
	sink.SetLogger(log.Component("cansend"))

	b, err := bridge.New(bridge.Options{
		Config:     bridgeConfig(cfg),
		Decoder:    rvc.NewDecoder(registry),
		Directory:  directory,
		MQTTClient: broker,
		Sink:       sink,
		Recorder:   recorder,
		Stats:      stats,
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer b.Stop()

	mqttClient.SetOnConnect(func() { b.Republish("mqtt reconnect") })

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer influxClient.Close() //nolint:errcheck // Close flushes; it never fails
		influxClient.SetOnError(func(writeErr error) {
			log.Warn("InfluxDB write failed", "error", writeErr)
		})

		exporter := bridge.NewStatsExporter(stats, influxClient, cfg.Bridge.ID, cfg.GetStatsInterval())
		g.Go(func() error { return exporter.Run(gctx) })
		log.Info("statistics export enabled", "url", cfg.InfluxDB.URL, "interval", cfg.GetStatsInterval())
	}

	// The startup handshake always runs; periodic heartbeats only when enabled.
	wd, err := watchdog.New(watchdogConfig(cfg), broker, watchdog.SystemdNotifier{})
	if err != nil {
		return fmt.Errorf("creating watchdog: %w", err)
	}
	wd.SetLogger(log.Component("watchdog"))
	if err := wd.Start(ctx); err != nil {
		return fmt.Errorf("broker handshake: %w", err)
	}
	if cfg.Watchdog.Enabled {
		g.Go(func() error { return wd.Run(gctx) })
		log.Info("watchdog enabled", "interval", wd.Interval())
	}

	// The capture source may block in a read that ignores cancellation
	// (stdin), so it is not waited for on shutdown.
	sourceDone := make(chan error, 1)
	go func() { sourceDone <- source.Run(gctx, b.HandleLine) }()
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case srcErr := <-sourceDone:
			if srcErr != nil {
				return fmt.Errorf("capture source: %w", srcErr)
			}
			log.Info("capture source ended")
			stopRun()
			return nil
		}
	})

	log.Info("rvcbridge running", "source", cfg.CAN.Source, "interface", cfg.CAN.Interface)

	err = g.Wait()

	s := b.Stats()
	log.Info("shutting down",
		"frames_received", s.FramesReceived,
		"frames_decoded", s.FramesDecoded,
		"frames_sent", s.FramesSent,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSource builds the configured capture source.
func newSource(cfg config.CANConfig, log *logging.Logger) (canbus.Source, error) {
	switch cfg.Source {
	case config.SourceCandump:
		src := canbus.NewCandumpSource(canbus.CandumpConfig{
			Binary:             cfg.CandumpBinary,
			Interface:          cfg.Interface,
			RestartDelay:       time.Duration(cfg.RestartDelay) * time.Second,
			MaxRestartAttempts: cfg.MaxRestartAttempts,
		})
		src.SetLogger(log)
		return src, nil
	case config.SourceSerial:
		src := canbus.NewSerialSource(canbus.SerialConfig{Port: cfg.SerialPort, BaudRate: cfg.SerialBaud})
		src.SetLogger(log)
		return src, nil
	case config.SourceStdin:
		return canbus.NewReaderSource("stdin", os.Stdin), nil
	case config.SourceFile:
		src, err := canbus.OpenFileSource(cfg.File)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: %q", canbus.ErrUnknownSource, cfg.Source)
	}
}

// openRecorder opens the sightings database, applies migrations and starts
// the recorder. The returned func stops the recorder and closes the database.
func openRecorder(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*bridge.Recorder, func(), error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	rec := bridge.NewRecorder(db.DB)
	rec.SetLogger(log.Component("recorder"))
	if err := rec.Start(); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("starting recorder: %w", err)
	}
	log.Info("sighting recorder enabled", "path", db.Path())

	return rec, func() {
		rec.Stop()

		reportCtx, cancel := context.WithTimeout(context.Background(), sightingReportTimeout)
		logSightings(reportCtx, rec, log.Component("recorder"))
		cancel()

		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}, nil
}

// sightingReport is the part of the recorder read by the shutdown summary.
type sightingReport interface {
	Count(ctx context.Context) (int, error)
	Unmatched(ctx context.Context) ([]bridge.SightingRecord, error)
}

// logSightings logs how much of the bus was seen and every (DGN, instance,
// source) that no device config claimed, so operators can extend devices.yml.
func logSightings(ctx context.Context, rec sightingReport, log *logging.Logger) {
	total, err := rec.Count(ctx)
	if err != nil {
		log.Warn("reading sightings failed", "error", err)
		return
	}
	unmatched, err := rec.Unmatched(ctx)
	if err != nil {
		log.Warn("reading unmatched sightings failed", "error", err)
		return
	}

	log.Info("bus sightings", "total", total, "unmatched", len(unmatched))
	for _, s := range unmatched {
		log.Info("unmatched sighting",
			"dgn", s.DGN,
			"instance", s.Instance,
			"source", fmt.Sprintf("%02X", s.Source),
			"name", s.Name,
			"messages", s.MessageCount,
			"last_seen", s.LastSeen.Format(time.RFC3339),
		)
	}
}

// bridgeConfig maps the file config onto the bridge's own settings.
func bridgeConfig(cfg *config.Config) bridge.Config {
	return bridge.Config{
		ID:                  cfg.Bridge.ID,
		DiscoveryPrefix:     cfg.HomeAssistant.DiscoveryPrefix,
		HubStatusTopic:      cfg.HomeAssistant.StatusTopic,
		StatusTopic:         cfg.MQTT.StatusTopic,
		QoS:                 byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		PublishReadings:     cfg.Bridge.PublishReadings,
		ReadingPrefix:       cfg.Bridge.ReadingPrefix,
		PublishOnChangeOnly: cfg.Bridge.PublishOnChangeOnly,
		CommandTimeout:      cfg.GetCommandTimeout(),
		Encoder: bridge.EncoderConfig{
			Priority:          uint8(cfg.Bridge.Priority),      //nolint:gosec // validated 0-7
			SourceAddress:     uint8(cfg.Bridge.SourceAddress), //nolint:gosec // validated 0-255
			DefaultBrightness: cfg.Bridge.DefaultBrightness,
		},
	}
}

// watchdogConfig maps the file config onto watchdog settings. An interval of
// zero follows the systemd unit's WatchdogSec when one is set.
func watchdogConfig(cfg *config.Config) watchdog.Config {
	interval := cfg.GetWatchdogInterval()
	if interval <= 0 {
		if d, ok := watchdog.SystemdInterval(); ok {
			interval = d
		}
	}
	return watchdog.Config{
		CheckTopic:        cfg.MQTT.CheckTopic,
		QoS:               byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		Interval:          interval,
		AckTicks:          cfg.Watchdog.AckTicks,
		TickDuration:      cfg.GetWatchdogTick(),
		StartupAttempts:   cfg.Watchdog.StartupAttempts,
		StartupRetryDelay: time.Duration(cfg.Watchdog.StartupRetryDelay) * time.Second,
	}
}

// mqttAdapter adapts *mqtt.Client to the handler signature used by the
// bridge and the watchdog, which never return errors from a delivery.
type mqttAdapter struct {
	client *mqtt.Client
}

func (a *mqttAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
