// Package metrics holds the Prometheus instruments for the rain gauge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/rain-gauge/internal/rain"
)

const namespace = "rain_gauge"

// Checkpoint reasons.
const (
	ReasonPeriodic = "periodic"
	ReasonRollover = "rollover"
	ReasonShutdown = "shutdown"
)

// Metrics holds the gauge and counters for the daemon.
type Metrics struct {
	RainToday     prometheus.Gauge
	RainYesterday prometheus.Gauge
	RainLastHour  prometheus.Gauge

	Tips             prometheus.Counter
	BouncesRejected  prometheus.Gauge
	Checkpoints      *prometheus.CounterVec // labels: reason={periodic,rollover,shutdown}
	CheckpointErrors prometheus.Counter
	Rollovers        *prometheus.CounterVec // labels: kind={hour,day}
	StorageOK        prometheus.Gauge
	TimeValid        prometheus.Gauge
}

// NewMetrics creates all instruments and registers them with reg. A nil
// reg uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		RainToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_day_mm",
			Help:      "Rain total since local midnight, mm.",
		}),
		RainYesterday: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_yesterday_mm",
			Help:      "Rain total for the previous day, mm.",
		}),
		RainLastHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_last_hour_mm",
			Help:      "Rain total for the last completed hour, mm.",
		}),
		Tips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tips_total",
			Help:      "Debounced bucket tips counted since start.",
		}),
		BouncesRejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bounces_rejected",
			Help:      "Edges dropped inside the debounce window since start.",
		}),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Successful writes to persistent storage by reason.",
		}, []string{"reason"}),
		CheckpointErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_errors_total",
			Help:      "Failed writes to persistent storage.",
		}),
		Rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollovers_total",
			Help:      "Hour and day rollovers observed.",
		}, []string{"kind"}),
		StorageOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_ok",
			Help:      "1 when the last storage operation succeeded.",
		}),
		TimeValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "time_valid",
			Help:      "1 when the wall clock has been set from the RTC or a reference.",
		}),
	}

	reg.MustRegister(
		m.RainToday,
		m.RainYesterday,
		m.RainLastHour,
		m.Tips,
		m.BouncesRejected,
		m.Checkpoints,
		m.CheckpointErrors,
		m.Rollovers,
		m.StorageOK,
		m.TimeValid,
	)

	return m
}

// ObserveSnapshot sets the rainfall gauges from s.
func (m *Metrics) ObserveSnapshot(s rain.Snapshot) {
	m.RainToday.Set(s.Today)
	m.RainYesterday.Set(s.Yesterday)
	m.RainLastHour.Set(s.LastHour)
}

// ObserveEvent counts a rollover.
func (m *Metrics) ObserveEvent(e rain.Event) {
	switch e.Type {
	case rain.EventDayRollover:
		m.Rollovers.WithLabelValues("day").Inc()
	case rain.EventHourRollover:
		m.Rollovers.WithLabelValues("hour").Inc()
	}
}

// ObserveCheckpoint counts a checkpoint attempt and records storage health.
func (m *Metrics) ObserveCheckpoint(reason string, err error) {
	if err != nil {
		m.CheckpointErrors.Inc()
		m.StorageOK.Set(0)
		return
	}
	m.Checkpoints.WithLabelValues(reason).Inc()
	m.StorageOK.Set(1)
}

// SetTimeValid records whether the wall clock is trustworthy.
func (m *Metrics) SetTimeValid(ok bool) {
	m.TimeValid.Set(boolToFloat(ok))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
