// Command layer-threshold watches pointer motion on evdev devices and
// temporarily activates a keymap layer once motion crosses a threshold.
// Layer changes are published to MQTT, shown on a GPIO LED and served over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/layer-threshold/internal/clock"
	"github.com/sweeney/layer-threshold/internal/config"
	"github.com/sweeney/layer-threshold/internal/gpio"
	"github.com/sweeney/layer-threshold/internal/input"
	"github.com/sweeney/layer-threshold/internal/keymap"
	"github.com/sweeney/layer-threshold/internal/logging"
	"github.com/sweeney/layer-threshold/internal/logic"
	"github.com/sweeney/layer-threshold/internal/mqtt"
	"github.com/sweeney/layer-threshold/internal/status"
	"github.com/sweeney/layer-threshold/internal/web"
)

const (
	defaultConfigPath = "/etc/layer-threshold.yaml"

	// statusInterval is how often the tracker is refreshed and the
	// heartbeat checked.
	statusInterval = time.Second

	eventQueue  = 256
	changeQueue = 64
)

type options struct {
	configPath  string
	listDevices bool
	printConfig bool
	overrides   config.FlagOverrides
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses the command line. Only flags that were given override
// the config file.
func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("layer-threshold", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "YAML configuration file")
	broker := fs.String("broker", "", "MQTT broker address, overrides mqtt.broker (empty disables)")
	httpAddr := fs.String("http", "", "HTTP status address, overrides http.addr (empty disables)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn or error")
	heartbeat := fs.Duration("heartbeat", 0, "Heartbeat interval, overrides heartbeat_ms (0 disables)")
	listDevices := fs.Bool("list-devices", false, "List input devices and exit")
	printConfig := fs.Bool("print-config", false, "Print the effective configuration and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{
		configPath:  *configPath,
		listDevices: *listDevices,
		printConfig: *printConfig,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			opts.overrides.Broker = broker
		case "http":
			opts.overrides.HTTPAddr = httpAddr
		case "log-level":
			opts.overrides.LogLevel = logLevel
		case "heartbeat":
			ms := int(heartbeat.Milliseconds())
			opts.overrides.HeartbeatMS = &ms
		}
	})
	return opts, nil
}

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.LoadConfigFile(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	opts.overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config %s: %w", opts.configPath, err)
	}
	return cfg, nil
}

func run(opts options) error {
	if opts.listDevices {
		devices, err := input.ListDevices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Printf("%s\t%s\n", d.Path, d.Name)
		}
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if opts.printConfig {
		b, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		os.Stdout.Write(b)
		return nil
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	clk := clock.Real{}
	eng := buildEngine(cfg, clk, logger)
	changes := make(chan keymap.Change, changeQueue)
	eng.keymap.OnChange(forwardChanges(changes, logger))

	// Open input devices
	readers := make([]input.Reader, 0, len(cfg.Devices))
	defer func() {
		// Pump closes readers on a normal exit; this covers early returns.
		for _, r := range readers {
			r.Close()
		}
	}()
	for _, dev := range cfg.Devices {
		r, err := input.OpenDevice(dev.Path, dev.Grab)
		if err != nil {
			return fmt.Errorf("init input: %w", err)
		}
		logger.Info("opened input device", "path", dev.Path, "name", r.Name(), "grab", dev.Grab, "processors", len(dev.Processors))
		readers = append(readers, r)
	}

	// Initialize indicator LED
	var indicator gpio.Indicator = gpio.Nop{}
	if cfg.Indicator.Pin >= 0 {
		led, err := gpio.NewRealIndicator(cfg.Indicator.Chip, cfg.Indicator.Pin)
		if err != nil {
			return fmt.Errorf("init indicator: %w", err)
		}
		indicator = led
	}
	defer indicator.Close()

	// Initialize MQTT
	var publisher *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		publisher, err = mqtt.NewRealPublisher(mqtt.Options{Broker: cfg.MQTT.Broker, ClientID: cfg.MQTT.ClientID}, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg), nil)

	// Start HTTP status server
	var notify func()
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		notify = srv.Notify
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan input.Event, eventQueue)
	pumpErr := make(chan error, 1)
	pumpReaders := readers
	readers = nil
	go func() {
		pumpErr <- input.Pump(ctx, pumpReaders, events, logger)
	}()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("started",
		"controllers", len(cfg.Controllers),
		"devices", len(cfg.Devices),
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat())

	d := loopDeps{
		engine:    eng,
		events:    events,
		changes:   changes,
		pumpErr:   pumpErr,
		indicator: indicator,
		tracker:   tracker,
		notify:    notify,
		heartbeat: cfg.Heartbeat(),
		now:       clk.Now,
		tick:      ticker.C,
		sig:       sigCh,
		logger:    logger,
	}
	if publisher != nil {
		d.publisher = publisher
		d.mqttStatus = publisher
	}
	return runLoop(d)
}

func statusConfig(cfg config.Config) status.Config {
	devices := make([]string, len(cfg.Devices))
	for i, d := range cfg.Devices {
		devices[i] = d.Path
	}
	return status.Config{
		HeartbeatMs: int64(cfg.HeartbeatMS),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		Devices:     devices,
	}
}

// loopDeps is everything runLoop reads from or writes to. publisher,
// mqttStatus, tracker and notify may be nil.
type loopDeps struct {
	engine     *engine
	events     <-chan input.Event
	changes    <-chan keymap.Change
	pumpErr    <-chan error
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	indicator  gpio.Indicator
	tracker    *status.Tracker
	notify     func()
	heartbeat  time.Duration
	now        func() time.Time
	tick       <-chan time.Time
	sig        <-chan os.Signal
	logger     *slog.Logger
}

// runLoop is the daemon's single event loop. Input events are dispatched
// to the controllers in arrival order; layer changes they cause come back
// on d.changes and are fanned out to MQTT, the LED, the tracker and the
// WebSocket clients. It returns nil on SIGINT/SIGTERM and an error when
// input is lost.
func runLoop(d loopDeps) error {
	hb := logic.NewHeartbeat(d.now())

	d.publishSystem("STARTUP", "", true)

	for {
		select {
		case s := <-d.sig:
			d.logger.Info("shutting down", "signal", s.String())
			d.drainChanges()
			d.publishSystem("SHUTDOWN", signalName(s), true)
			return nil

		case err := <-d.pumpErr:
			d.logger.Error("input lost", "error", err)
			d.drainChanges()
			d.publishSystem("SHUTDOWN", "INPUT_LOST", true)
			if err == nil {
				err = input.ErrNoReaders
			}
			return fmt.Errorf("input: %w", err)

		case ev := <-d.events:
			if ev.Kind == input.KindKey && ev.Key.Time.IsZero() {
				ev.Key.Time = d.now()
			}
			d.engine.dispatch(ev)

		case c := <-d.changes:
			d.handleChange(c)

		case <-d.tick:
			t := d.now()
			d.refresh()

			if hbData := hb.Check(t, d.heartbeat); hbData != nil {
				d.logger.Info("heartbeat", "uptime", hbData.Uptime.Truncate(time.Second))
				d.publishSystem("HEARTBEAT", "", false)
			}
		}
	}
}

func (d loopDeps) handleChange(c keymap.Change) {
	d.logger.Info("layer change", "layer", c.Layer, "active", c.Active, "active_layers", c.Layers)

	if d.publisher != nil {
		if err := d.publisher.Publish(c); err != nil {
			// Don't crash on publish failure
			d.logger.Warn("publish error", "error", err)
		}
	}

	if err := d.indicator.Set(nonDefaultActive(c.Layers)); err != nil {
		d.logger.Warn("indicator error", "error", err)
	}

	if d.tracker != nil {
		d.tracker.RecordChange(c)
	}
	d.refresh()

	if d.notify != nil {
		d.notify()
	}
}

// drainChanges handles every queued layer change without blocking.
func (d loopDeps) drainChanges() {
	for {
		select {
		case c := <-d.changes:
			d.handleChange(c)
		default:
			return
		}
	}
}

// refresh updates the tracker for HTTP consumers.
func (d loopDeps) refresh() {
	if d.tracker == nil {
		return
	}
	d.tracker.Update(d.engine.states())
	d.tracker.SetKeyEvents(d.engine.keys.Published())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// publishSystem publishes a lifecycle event carrying the full status.
func (d loopDeps) publishSystem(event, reason string, retained bool) {
	if d.publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{
		Timestamp: d.now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if d.tracker != nil {
		d.refresh()
		ev.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.logger.Warn("failed to publish system event", "event", event, "error", err)
		return
	}
	d.logger.Info("published system event", "event", event)
}

func nonDefaultActive(layers []uint8) bool {
	for _, l := range layers {
		if l != keymap.DefaultLayer {
			return true
		}
	}
	return false
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
