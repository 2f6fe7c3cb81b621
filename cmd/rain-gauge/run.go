package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/rain-gauge/internal/archive"
	"github.com/sweeney/rain-gauge/internal/config"
	"github.com/sweeney/rain-gauge/internal/gpio"
	"github.com/sweeney/rain-gauge/internal/metrics"
	"github.com/sweeney/rain-gauge/internal/mqtt"
	"github.com/sweeney/rain-gauge/internal/rain"
	"github.com/sweeney/rain-gauge/internal/status"
	"github.com/sweeney/rain-gauge/internal/store"
	"github.com/sweeney/rain-gauge/internal/timesource"
	"github.com/sweeney/rain-gauge/internal/tip"
	"github.com/sweeney/rain-gauge/internal/web"
	"github.com/sweeney/rain-gauge/internal/wow"
)

var runFlags struct {
	chip       string
	pin        int
	debounce   time.Duration
	poll       time.Duration
	checkpoint time.Duration
	mmPerTip   float64
	storage    string
	path       string
	rtc        string
	broker     string
	httpAddr   string
	archive    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rain gauge daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return run(cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.chip, "chip", "", "GPIO chip")
	f.IntVar(&runFlags.pin, "pin", 0, "BCM line of the reed switch")
	f.DurationVar(&runFlags.debounce, "debounce", 0, "Debounce window")
	f.DurationVar(&runFlags.poll, "poll", 0, "Run loop polling interval")
	f.DurationVar(&runFlags.checkpoint, "checkpoint", 0, "Periodic checkpoint interval")
	f.Float64Var(&runFlags.mmPerTip, "mm-per-tip", 0, "Calibration, mm of rain per tip")
	f.StringVar(&runFlags.storage, "storage", "", "Storage kind (file, eeprom, memory)")
	f.StringVar(&runFlags.path, "storage-path", "", "Storage file path")
	f.StringVar(&runFlags.rtc, "rtc", "", "RTC kind (system, ds3231)")
	f.StringVar(&runFlags.broker, "broker", "", "MQTT broker address")
	f.StringVar(&runFlags.httpAddr, "http", "", "HTTP status address")
	f.StringVar(&runFlags.archive, "archive", "", "SQLite archive path")
}

// applyRunFlags overrides config fields with flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("chip") {
		cfg.Sensor.Chip = runFlags.chip
	}
	if f.Changed("pin") {
		cfg.Sensor.Pin = runFlags.pin
	}
	if f.Changed("debounce") {
		cfg.Sensor.Debounce = runFlags.debounce
	}
	if f.Changed("poll") {
		cfg.Poll = runFlags.poll
	}
	if f.Changed("checkpoint") {
		cfg.CheckpointInterval = runFlags.checkpoint
	}
	if f.Changed("mm-per-tip") {
		cfg.Sensor.MMPerTip = runFlags.mmPerTip
	}
	if f.Changed("storage") {
		cfg.Storage.Kind = runFlags.storage
	}
	if f.Changed("storage-path") {
		cfg.Storage.Path = runFlags.path
	}
	if f.Changed("rtc") {
		cfg.Time.RTC = runFlags.rtc
	}
	if f.Changed("broker") {
		cfg.MQTT.Broker = runFlags.broker
	}
	if f.Changed("http") {
		cfg.HTTP.Addr = runFlags.httpAddr
	}
	if f.Changed("archive") {
		cfg.Archive.Path = runFlags.archive
	}
}

func run(cfg *config.Config) error {
	logger.Infof("Starting rain gauge [%v]", version)

	clk := clockwork.NewRealClock()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	fallback, err := cfg.FallbackTime()
	if err != nil {
		return err
	}

	b := newBuses()
	defer b.Close()

	// Time first: the store needs today's day-of-month.
	rtc := openClock(cfg.Time, b, clk)
	ref := timesource.NewSystemReference(clk)
	wall := timesource.New(rtc, clk, fallback, loc)
	if err := wall.Init(ref); err != nil {
		logger.Errorf("time source init failed, attribution may be wrong until the clock recovers [%v]", err)
	}

	dev, closeDev, volatile := openStorage(cfg.Storage, b)
	defer closeDev()
	st := store.New(dev)

	now := wall.Now()
	rec, loadErr := st.Load(now.Day())
	if loadErr != nil {
		logger.Errorf("storage load failed, running volatile-only until a checkpoint succeeds [%v]", loadErr)
	}
	logger.Infof("recovered today=%.2fmm yesterday=%.2fmm day=%d cold_start=%v", rec.Today, rec.Yesterday, rec.LastDay, rec.ColdStart)

	acc := rain.NewAccumulator(cfg.Sensor.MMPerTip)
	acc.Restore(float64(rec.Today), float64(rec.Yesterday), now)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	tracker := status.NewTracker(clk, status.Config{
		PollMs:       cfg.Poll.Milliseconds(),
		DebounceMs:   cfg.Sensor.Debounce.Milliseconds(),
		CheckpointMs: cfg.CheckpointInterval.Milliseconds(),
		MMPerTip:     cfg.Sensor.MMPerTip,
		Storage:      cfg.Storage.Kind,
		RTC:          cfg.Time.RTC,
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
	})
	storageOK := loadErr == nil && !volatile
	tracker.SetStorage(storageOK, now)
	m.StorageOK.Set(boolGauge(storageOK))

	// Publisher
	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.BufferSize)
		if err != nil {
			logger.Errorf("mqtt disabled [%v]", err)
		} else {
			publisher, mqttStatus = p, p
		}
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var arch *archive.Archive
	if cfg.Archive.Path != "" {
		arch, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			logger.Errorf("archive disabled [%v]", err)
			arch = nil
		} else {
			defer arch.Close()
		}
	}

	var uploader *wow.Client
	if cfg.WOW.Enabled {
		uploader = wow.NewClient(wow.Config{
			URL:          cfg.WOW.URL,
			SiteID:       cfg.WOW.SiteID,
			AuthKey:      cfg.WOW.AuthKey,
			SoftwareType: "rain-gauge-" + version,
		})
		go uploader.Run(ctx)
	}

	// HTTP status server
	if cfg.HTTP.Addr != "" {
		var history web.History
		if arch != nil {
			history = arch
		}
		srv := web.New(cfg.HTTP.Addr, tracker, history, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("http server error [%v]", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Tip input last, once everything that consumes tips is ready.
	counter := tip.NewCounter(cfg.Sensor.Debounce)
	edges := gpio.NewRealEdgeSource(cfg.Sensor.Chip, cfg.Sensor.Pin)
	if err := edges.Start(counter.OnEdge); err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer edges.Close()

	l := &loop{
		clk:         clk,
		wall:        wall,
		ref:         ref,
		counter:     counter,
		acc:         acc,
		store:       st,
		ckpt:        rain.NewCheckpointer(cfg.CheckpointInterval, clk.Now()),
		publisher:   publisher,
		mqttStatus:  mqttStatus,
		tracker:     tracker,
		metrics:     m,
		resyncOnDay: cfg.Time.ResyncOnDayRollover,
		storageOK:   storageOK,
		volatile:    volatile,
	}
	if arch != nil {
		l.archive = arch
	}
	if uploader != nil {
		l.wow = uploader
	}

	l.publishStartup()
	logger.Infof("started: chip=%s pin=%d debounce=%v poll=%v checkpoint=%v mm_per_tip=%v",
		cfg.Sensor.Chip, cfg.Sensor.Pin, cfg.Sensor.Debounce, cfg.Poll, cfg.CheckpointInterval, cfg.Sensor.MMPerTip)

	ticker := clk.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(ticker.Chan(), sigCh)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// discardPublisher stands in when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(rain.Event) error             { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
