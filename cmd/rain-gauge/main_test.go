package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/rain-gauge/internal/config"
	"github.com/sweeney/rain-gauge/internal/gpio"
	"github.com/sweeney/rain-gauge/internal/metrics"
	"github.com/sweeney/rain-gauge/internal/mqtt"
	"github.com/sweeney/rain-gauge/internal/rain"
	"github.com/sweeney/rain-gauge/internal/status"
	"github.com/sweeney/rain-gauge/internal/store"
	"github.com/sweeney/rain-gauge/internal/timesource"
	"github.com/sweeney/rain-gauge/internal/tip"
)

const mmPerTip = rain.DefaultMMPerTip

type fakeRecorder struct {
	mu    sync.Mutex
	hours map[time.Time]float64
	days  map[time.Time]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{hours: map[time.Time]float64{}, days: map[time.Time]float64{}}
}

func (r *fakeRecorder) RecordHour(_ context.Context, start time.Time, mm float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hours[start] = mm
	return nil
}

func (r *fakeRecorder) RecordDay(_ context.Context, date time.Time, mm float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days[date] = mm
	return nil
}

type fakeSubmitter struct {
	events []rain.Event
}

func (s *fakeSubmitter) Submit(e rain.Event) bool {
	s.events = append(s.events, e)
	return true
}

// harness wires a loop to fakes. Wall time follows clk through the fake RTC.
type harness struct {
	clk     *clockwork.FakeClock
	start   time.Time
	rtc     *timesource.FakeRTC
	dev     *store.MemDevice
	st      *store.Store
	pub     *mqtt.FakePublisher
	edges   *gpio.FakeEdgeSource
	archive *fakeRecorder
	wow     *fakeSubmitter
	m       *metrics.Metrics
	tracker *status.Tracker
	l       *loop
}

func newHarness(t *testing.T, start time.Time, interval time.Duration) *harness {
	t.Helper()

	clk := clockwork.NewFakeClockAt(start)
	rtc := timesource.NewFakeRTC(clk, start)
	wall := timesource.New(rtc, clk, time.Time{}, time.UTC)
	require.NoError(t, wall.Init(nil))

	dev := store.NewMemDevice(store.RecordSize)
	st := store.New(dev)
	rec, err := st.Load(start.Day())
	require.NoError(t, err)
	dev.ResetWrites()

	acc := rain.NewAccumulator(mmPerTip)
	acc.Restore(float64(rec.Today), float64(rec.Yesterday), wall.Now())

	counter := tip.NewCounter(200 * time.Millisecond)
	edges := gpio.NewFakeEdgeSource()
	require.NoError(t, edges.Start(counter.OnEdge))

	m := metrics.NewMetrics(prometheus.NewRegistry())
	tracker := status.NewTracker(clk, status.Config{})
	pub := mqtt.NewFakePublisher()
	arch := newFakeRecorder()
	up := &fakeSubmitter{}

	l := &loop{
		clk:       clk,
		wall:      wall,
		counter:   counter,
		acc:       acc,
		store:     st,
		ckpt:      rain.NewCheckpointer(interval, clk.Now()),
		publisher: pub,
		tracker:   tracker,
		metrics:   m,
		archive:   arch,
		wow:       up,
		storageOK: true,
	}

	return &harness{
		clk:     clk,
		start:   start,
		rtc:     rtc,
		dev:     dev,
		st:      st,
		pub:     pub,
		edges:   edges,
		archive: arch,
		wow:     up,
		m:       m,
		tracker: tracker,
		l:       l,
	}
}

// advance moves time forward by d and runs one poll.
func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
	h.l.step()
}

// millis is the monotonic edge timestamp for the current instant.
func (h *harness) millis() int64 {
	return h.clk.Since(h.start).Milliseconds()
}

// tip delivers one edge at the current monotonic instant.
func (h *harness) tip() {
	h.edges.Edge(h.millis())
}

func (h *harness) saves() int {
	n := 0
	for _, off := range h.dev.WriteOffsets() {
		if off == store.OffsetTotal {
			n++
		}
	}
	return n
}

func (h *harness) record(t *testing.T) store.Record {
	t.Helper()
	rec, err := h.st.Inspect()
	require.NoError(t, err)
	return rec
}

func TestStepCreditsTipsToCurrentHour(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC), 5*time.Minute)

	for i := 0; i < 5; i++ {
		h.tip()
		h.clk.Advance(time.Second)
	}
	h.advance(0)

	snap := h.l.acc.Snapshot()
	assert.InDelta(t, 5*mmPerTip, snap.PerHour[10], 1e-9)
	assert.InDelta(t, 5*mmPerTip, snap.Today, 1e-9)
	assert.Equal(t, uint64(5), snap.TotalTips)
	assert.Equal(t, 5.0, testutil.ToFloat64(h.m.Tips))
	assert.Equal(t, 0, h.saves(), "tips alone must not write storage")

	st := h.tracker.Snapshot()
	assert.InDelta(t, 5*mmPerTip, st.Rain.Today, 1e-9)
	assert.True(t, st.TimeValid)
}

func TestBouncesAreNotCredited(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC), 5*time.Minute)

	ms := h.millis()
	h.edges.Edges(ms, ms+5, ms+40, ms+150)
	h.advance(time.Second)

	assert.Equal(t, mmPerTip, h.l.acc.Today())
	assert.Equal(t, 3.0, testutil.ToFloat64(h.m.BouncesRejected))
	assert.Equal(t, uint64(3), h.tracker.Snapshot().Bounces)
}

func TestPeriodicCheckpointWithinOneHour(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)

	// 30 minutes of continuous rain, one tip per second.
	for i := 0; i < 1800; i++ {
		h.tip()
		h.advance(time.Second)
	}

	assert.Equal(t, 6, h.saves())
	assert.Equal(t, 6.0, testutil.ToFloat64(h.m.Checkpoints.WithLabelValues(metrics.ReasonPeriodic)))

	rec := h.record(t)
	assert.InDelta(t, 1800*mmPerTip, float64(rec.Total), 0.01)
	assert.Equal(t, int32(14), rec.Day)
}

func TestPeriodicCheckpointCountAcrossMidnight(t *testing.T) {
	const interval = 5 * time.Minute
	const duration = 2 * time.Hour
	h := newHarness(t, time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC), interval)

	for i := 0; i < int(duration/time.Second); i++ {
		h.tip()
		h.advance(time.Second)
	}

	periodic := testutil.ToFloat64(h.m.Checkpoints.WithLabelValues(metrics.ReasonPeriodic))
	rollover := testutil.ToFloat64(h.m.Checkpoints.WithLabelValues(metrics.ReasonRollover))

	assert.Equal(t, 1.0, rollover)
	assert.InDelta(t, float64(duration/interval), periodic, 1)
	assert.Equal(t, int(periodic+rollover), h.saves())
}

func TestDayRolloverPersistsZeroForNewDay(t *testing.T) {
	start := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	h := newHarness(t, start, 5*time.Minute)
	h.l.acc.Restore(3.5, 0, start)

	h.advance(2 * time.Minute) // 00:01 on the 15th

	snap := h.l.acc.Snapshot()
	assert.Equal(t, 3.5, snap.Yesterday)
	assert.Equal(t, 0.0, snap.Today)
	assert.Equal(t, [rain.HoursPerDay]float64{}, snap.PerHour)
	assert.Equal(t, 15, snap.LastCheckedDay)

	require.Equal(t, 1, h.saves())
	rec := h.record(t)
	assert.Equal(t, float32(0), rec.Total)
	assert.Equal(t, int32(15), rec.Day)

	require.Len(t, h.pub.Events, 1)
	e := h.pub.Events[0]
	assert.Equal(t, rain.EventDayRollover, e.Type)
	assert.Equal(t, 23, e.CompletedHour)
	assert.Equal(t, 0.0, e.LastHour, "restored total is not rain in the boot hour")
	assert.Equal(t, 3.5, e.Yesterday)

	mm, ok := h.archive.hours[time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)]
	require.True(t, ok, "hour 23 is archived")
	assert.Equal(t, 0.0, mm)
	assert.Equal(t, 3.5, h.archive.days[time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)])
	require.Len(t, h.wow.events, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Rollovers.WithLabelValues("day")))
}

func TestHourRolloverAfterRestartReportsOnlyNewRain(t *testing.T) {
	start := time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)
	h := newHarness(t, start, 5*time.Minute)
	h.l.acc.Restore(10, 0, start)

	h.tip()
	h.advance(time.Second)
	h.advance(30 * time.Minute) // 15:00:01

	require.Len(t, h.pub.Events, 1)
	e := h.pub.Events[0]
	assert.Equal(t, rain.EventHourRollover, e.Type)
	assert.InDelta(t, mmPerTip, e.LastHour, 1e-9)
	assert.InDelta(t, 10+mmPerTip, e.Today, 1e-9)

	assert.InDelta(t, mmPerTip, h.archive.hours[time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)], 1e-9)
	require.Len(t, h.wow.events, 1)
	assert.InDelta(t, mmPerTip, h.wow.events[0].LastHour, 1e-9)
}

func TestDayRolloverRestartsCheckpointInterval(t *testing.T) {
	start := time.Date(2026, 3, 14, 23, 58, 0, 0, time.UTC)
	h := newHarness(t, start, 5*time.Minute)

	h.advance(3 * time.Minute) // rollover at 00:01, 3 minutes into the interval
	require.Equal(t, 1, h.saves())

	h.advance(3 * time.Minute) // 6 minutes since start, 3 since the rollover save
	assert.Equal(t, 1, h.saves())

	h.advance(2 * time.Minute)
	assert.Equal(t, 2, h.saves())
}

func TestTipBeforeMidnightDrainedAfterCountsForNewDay(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC), 5*time.Minute)
	h.advance(0)

	h.tip()
	h.advance(1500 * time.Millisecond) // 00:00:00.5, drained after the rollover

	assert.Equal(t, 0.0, h.l.acc.Yesterday())
	assert.Equal(t, mmPerTip, h.l.acc.Today())
	assert.Equal(t, mmPerTip, h.l.acc.Snapshot().PerHour[0])
}

func TestTipDrainedBeforeMidnightCountsForOldDay(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC), 5*time.Minute)

	h.tip()
	h.advance(500 * time.Millisecond) // 23:59:59.5
	h.advance(time.Second)            // 00:00:00.5

	assert.Equal(t, mmPerTip, h.l.acc.Yesterday())
	assert.Equal(t, 0.0, h.l.acc.Today())
}

func TestHourRolloverDoesNotCheckpoint(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 59, 0, 0, time.UTC), 5*time.Minute)

	h.tip()
	h.advance(time.Second)
	h.advance(2 * time.Minute)

	assert.Equal(t, 0, h.saves())
	require.Len(t, h.pub.Events, 1)
	e := h.pub.Events[0]
	assert.Equal(t, rain.EventHourRollover, e.Type)
	assert.Equal(t, 10, e.CompletedHour)
	assert.Equal(t, mmPerTip, e.LastHour)
	assert.Equal(t, mmPerTip, e.Today)

	assert.Equal(t, mmPerTip, h.archive.hours[time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)])
	assert.Empty(t, h.archive.days)
	assert.Len(t, h.wow.events, 1)
}

func TestCheckpointFailureIsReportedOnce(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	h.dev.WriteError = errors.New("i2c: nack")

	h.advance(5 * time.Minute)
	h.advance(5 * time.Minute)

	assert.Equal(t, []string{mqtt.EventCheckpointFailed}, h.pub.SystemEventNames())
	assert.Equal(t, "write total: i2c: nack", h.pub.SystemEvents[0].Reason)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.m.CheckpointErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.m.StorageOK))
	assert.False(t, h.tracker.Snapshot().StorageOK)

	// The next periodic checkpoint is the retry.
	h.dev.WriteError = nil
	h.tip()
	h.advance(5 * time.Minute)

	assert.Equal(t, 1, h.saves())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.StorageOK))
	assert.True(t, h.tracker.Snapshot().StorageOK)
	assert.InDelta(t, mmPerTip, float64(h.record(t).Total), 1e-6)
}

func TestVolatileStoreReportsStorageNotOK(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	h.l.volatile = true
	h.l.storageOK = false

	h.tip()
	h.advance(5 * time.Minute)

	assert.Equal(t, 1, h.saves(), "totals are still kept in the in-memory record")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Checkpoints.WithLabelValues(metrics.ReasonPeriodic)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.m.StorageOK))
	assert.False(t, h.tracker.Snapshot().StorageOK)
	assert.Empty(t, h.pub.SystemEvents, "a volatile store is not a checkpoint failure")
}

func TestPublishErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 59, 0, 0, time.UTC), 5*time.Minute)
	h.pub.PublishError = errors.New("broker down")

	h.advance(2 * time.Minute)
	h.tip()
	h.advance(time.Second)

	assert.Empty(t, h.pub.Events)
	assert.Equal(t, mmPerTip, h.l.acc.Today())
}

func TestDayRolloverResyncsTime(t *testing.T) {
	start := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	ref := time.Date(2026, 3, 15, 0, 1, 30, 0, time.UTC)

	h := newHarness(t, start, 5*time.Minute)
	h.l.resyncOnDay = true
	h.l.ref = timesource.FakeReference{Time: ref, OK: true}

	h.advance(2 * time.Minute)

	require.Len(t, h.rtc.Sets, 1)
	assert.Equal(t, ref, h.rtc.Sets[0])
}

func TestDayRolloverSkipsResyncWithoutReference(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC), 5*time.Minute)
	h.l.resyncOnDay = true
	h.l.ref = timesource.FakeReference{}

	h.advance(2 * time.Minute)

	assert.Empty(t, h.rtc.Sets)
	assert.Len(t, h.pub.Events, 1)
}

func TestPublishStartup(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)

	h.l.publishStartup()

	require.Len(t, h.pub.SystemEvents, 1)
	se := h.pub.SystemEvents[0]
	assert.Equal(t, mqtt.EventStartup, se.Event)
	assert.True(t, se.Retained)
	assert.Contains(t, string(h.pub.SystemPayloads[0]), `"event":"STARTUP"`)
}

// runLoop drives loop.run with nTicks polls and then signal.
func runLoop(t *testing.T, h *harness, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.l.run(tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunShutdownWritesFinalCheckpoint(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	h.edges.Edges(0, 1000, 2000)

	err := runLoop(t, h, 3, syscall.SIGTERM)
	require.NoError(t, err)

	require.Equal(t, 1, h.saves())
	rec := h.record(t)
	assert.InDelta(t, 3*mmPerTip, float64(rec.Total), 1e-6)
	assert.Equal(t, int32(14), rec.Day)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.Checkpoints.WithLabelValues(metrics.ReasonShutdown)))

	require.Len(t, h.pub.SystemEvents, 1)
	se := h.pub.SystemEvents[0]
	assert.Equal(t, mqtt.EventShutdown, se.Event)
	assert.Equal(t, "SIGTERM", se.Reason)
	assert.True(t, se.Retained)
}

func TestRunShutdownDrainsPendingTips(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	h.edges.Edges(0, 1000)

	// No polls before the signal: the tips are only drained at shutdown.
	err := runLoop(t, h, 0, syscall.SIGINT)
	require.NoError(t, err)

	assert.InDelta(t, 2*mmPerTip, float64(h.record(t).Total), 1e-6)
	require.Len(t, h.pub.SystemEvents, 1)
	assert.Equal(t, "SIGINT", h.pub.SystemEvents[0].Reason)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestInspectUninitialized(t *testing.T) {
	var buf bytes.Buffer
	err := inspect(&buf, store.New(store.NewMemDevice(store.RecordSize)))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "valid: false")
	assert.Contains(t, buf.String(), "not initialized")
}

func TestInspectValidRecord(t *testing.T) {
	st := store.New(store.NewMemDevice(store.RecordSize))
	_, err := st.Load(11)
	require.NoError(t, err)
	require.NoError(t, st.Save(2.2, 11))

	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, st))

	out := buf.String()
	assert.Contains(t, out, "total: 2.20 mm")
	assert.Contains(t, out, "day:   11")
	assert.Contains(t, out, "magic: 0x4E494152 (valid: true)")
	assert.NotContains(t, out, "not initialized")
}

func TestInspectReadError(t *testing.T) {
	dev := store.NewMemDevice(store.RecordSize)
	dev.ReadError = errors.New("bus error")

	var buf bytes.Buffer
	assert.Error(t, inspect(&buf, store.New(dev)))
}

func TestShowConfigPrintsWithoutSaving(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, showConfig(&buf, config.Default(), ""))

	assert.Contains(t, buf.String(), "checkpoint_interval")
}

func TestShowConfigSaveWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "rain-gauge.yaml")
	cfg := config.Default()
	cfg.Sensor.Pin = 22
	cfg.Storage.Kind = config.StorageMemory

	var buf bytes.Buffer
	require.NoError(t, showConfig(&buf, cfg, path))

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(saved))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 22, loaded.Sensor.Pin)
	assert.Equal(t, config.StorageMemory, loaded.Storage.Kind)
}
