package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"

	"github.com/sweeney/rain-gauge/internal/metrics"
	"github.com/sweeney/rain-gauge/internal/mqtt"
	"github.com/sweeney/rain-gauge/internal/rain"
	"github.com/sweeney/rain-gauge/internal/status"
	"github.com/sweeney/rain-gauge/internal/store"
	"github.com/sweeney/rain-gauge/internal/timesource"
	"github.com/sweeney/rain-gauge/internal/tip"
)

// archiveTimeout bounds a single archive write from the run loop.
const archiveTimeout = 2 * time.Second

// recorder is the part of the archive the run loop writes to.
type recorder interface {
	RecordHour(ctx context.Context, start time.Time, mm float64) error
	RecordDay(ctx context.Context, date time.Time, mm float64) error
}

// submitter queues rollover observations for upload.
type submitter interface {
	Submit(e rain.Event) bool
}

// loop owns the accumulator and the store. Everything else only reads
// what it publishes.
type loop struct {
	clk  clockwork.Clock // monotonic, for checkpoint spacing
	wall *timesource.Source
	ref  timesource.Reference

	counter *tip.Counter
	acc     *rain.Accumulator
	store   *store.Store
	ckpt    *rain.Checkpointer

	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // optional
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	archive    recorder  // optional
	wow        submitter // optional

	resyncOnDay bool
	storageOK   bool
	volatile    bool // store is held in memory and lost on restart
}

func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logger.Infof("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil

		case <-tick:
			l.step()
		}
	}
}

// step is one poll: rollover check first, so tips drained just after a
// boundary land in the new hour or day, then drain, then the periodic
// checkpoint.
func (l *loop) step() {
	now := l.wall.Now()

	for _, e := range l.acc.Tick(now) {
		l.handleEvent(e)
	}

	if n := l.counter.Drain(); n > 0 {
		l.acc.AddTips(n, now)
		l.metrics.Tips.Add(float64(n))
		logger.Debugf("tips: %d, today=%.2fmm", n, l.acc.Today())
	}

	if l.ckpt.Due(l.clk.Now()) {
		l.checkpoint(metrics.ReasonPeriodic)
	}

	l.refreshStatus(now)
}

func (l *loop) handleEvent(e rain.Event) {
	l.metrics.ObserveEvent(e)

	switch e.Type {
	case rain.EventDayRollover:
		logger.Infof("day rollover: yesterday=%.2fmm last_hour=%.2fmm day=%d", e.Yesterday, e.LastHour, e.Day)
		// Persist the zeroed day before anything else can fail.
		l.checkpoint(metrics.ReasonRollover)
		l.ckpt.Mark(l.clk.Now())
		if l.resyncOnDay {
			l.resync()
		}
	case rain.EventHourRollover:
		logger.Infof("hour rollover: %02d:00 %.2fmm, today=%.2fmm", e.CompletedHour, e.LastHour, e.Today)
	}

	if err := l.publisher.Publish(e); err != nil {
		logger.Warnf("publish error [%v]", err)
	}
	if l.wow != nil {
		l.wow.Submit(e)
	}
	l.record(e)
}

// record archives the completed hour, and at a day rollover the completed day.
func (l *loop) record(e rain.Event) {
	if l.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	t := e.Timestamp
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if e.Type == rain.EventDayRollover {
		day = day.AddDate(0, 0, -1)
	}
	hourStart := day.Add(time.Duration(e.CompletedHour) * time.Hour)

	if err := l.archive.RecordHour(ctx, hourStart, e.LastHour); err != nil {
		logger.Errorf("archive hour failed [%v]", err)
	}
	if e.Type == rain.EventDayRollover {
		if err := l.archive.RecordDay(ctx, day, e.Yesterday); err != nil {
			logger.Errorf("archive day failed [%v]", err)
		}
	}
}

// checkpoint saves today's total. A failure is not retried here; the next
// periodic checkpoint is the retry.
func (l *loop) checkpoint(reason string) {
	wallNow := l.wall.Now()
	day := l.acc.LastCheckedDay()
	if day == rain.Unset {
		day = wallNow.Day()
	}

	err := l.store.Save(float32(l.acc.Today()), day)
	l.metrics.ObserveCheckpoint(reason, err)

	if l.volatile {
		if err != nil {
			logger.Errorf("checkpoint (%s) failed on volatile store [%v]", reason, err)
		} else {
			logger.Warnf("checkpoint (%s) held in memory only: today=%.2fmm day=%d", reason, l.acc.Today(), day)
		}
		l.metrics.StorageOK.Set(0)
		l.tracker.SetStorage(false, wallNow)
		return
	}
	l.tracker.SetStorage(err == nil, wallNow)

	if err != nil {
		logger.Errorf("checkpoint (%s) failed [%v]", reason, err)
		if l.storageOK {
			// Report the transition to failing, not every retry.
			l.publishSystem(mqtt.EventCheckpointFailed, err.Error(), false)
		}
		l.storageOK = false
		return
	}
	if !l.storageOK {
		logger.Info("storage recovered")
	}
	l.storageOK = true
	logger.Debugf("checkpoint (%s): today=%.2fmm day=%d", reason, l.acc.Today(), day)
}

func (l *loop) resync() {
	if l.ref == nil {
		return
	}
	t, ok := l.ref.Reference()
	if !ok {
		logger.Warn("time resync skipped, no reliable reference")
		return
	}
	if err := l.wall.Resync(t); err != nil {
		logger.Warnf("time resync failed, keeping rtc [%v]", err)
		return
	}
	logger.Infof("time resynced to %s", t.Format(time.RFC3339))
}

func (l *loop) refreshStatus(now time.Time) {
	snap := l.acc.Snapshot()
	valid := l.wall.Valid()
	rejected := l.counter.Rejected()

	l.metrics.ObserveSnapshot(snap)
	l.metrics.SetTimeValid(valid)
	l.metrics.BouncesRejected.Set(float64(rejected))

	l.tracker.Update(snap, now, rejected)
	l.tracker.SetTimeValid(valid)
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) publishStartup() {
	l.refreshStatus(l.wall.Now())
	l.publishSystem(mqtt.EventStartup, "", true)
}

// shutdown drains any last tips, writes a final checkpoint and announces
// the shutdown.
func (l *loop) shutdown(reason string) {
	now := l.wall.Now()
	for _, e := range l.acc.Tick(now) {
		l.handleEvent(e)
	}
	if n := l.counter.Drain(); n > 0 {
		l.acc.AddTips(n, now)
		l.metrics.Tips.Add(float64(n))
	}
	l.checkpoint(metrics.ReasonShutdown)
	l.refreshStatus(now)
	l.publishSystem(mqtt.EventShutdown, reason, true)
}

func (l *loop) publishSystem(event, reason string, retained bool) {
	snap := l.tracker.Snapshot()
	e := mqtt.SystemEvent{
		Timestamp:  l.wall.Now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.publisher.PublishSystem(e); err != nil {
		logger.Warnf("failed to publish %s event [%v]", event, err)
		return
	}
	logger.Infof("published %s event", event)
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
