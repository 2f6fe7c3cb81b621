package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Ready         bool          `json:"ready"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Rain          RainJSON      `json:"rain"`
	Storage       StorageStatus `json:"storage"`
	Time          TimeStatus    `json:"time"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// RainJSON is the JSON representation of the accumulator snapshot.
// Volumes are in mm, rounded to 0.01.
type RainJSON struct {
	Today       float64   `json:"today_mm"`
	Yesterday   float64   `json:"yesterday_mm"`
	LastHour    float64   `json:"last_hour_mm"`
	Hourly      []float64 `json:"hourly_mm"`
	CurrentHour int       `json:"current_hour"`
	CurrentDay  int       `json:"current_day"`
	Tips        uint64    `json:"tips"`
	Bounces     uint64    `json:"bounces_rejected"`
}

// StorageStatus reports persistent storage health.
type StorageStatus struct {
	OK             bool   `json:"ok"`
	Kind           string `json:"kind"`
	LastCheckpoint string `json:"last_checkpoint,omitempty"`
}

// TimeStatus reports wall clock health.
type TimeStatus struct {
	Valid bool   `json:"valid"`
	RTC   string `json:"rtc"`
	Wall  string `json:"wall,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64   `json:"poll_ms"`
	DebounceMs   int64   `json:"debounce_ms"`
	CheckpointMs int64   `json:"checkpoint_ms"`
	MMPerTip     float64 `json:"mm_per_tip"`
	HTTPAddr     string  `json:"http_addr"`
}

// Round2 rounds mm to two decimals for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	hourly := make([]float64, len(snap.Rain.PerHour))
	for i, v := range snap.Rain.PerHour {
		hourly[i] = Round2(v)
	}

	return StatusInner{
		Ready:         snap.TimeValid && snap.StorageOK,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Rain: RainJSON{
			Today:       Round2(snap.Rain.Today),
			Yesterday:   Round2(snap.Rain.Yesterday),
			LastHour:    Round2(snap.Rain.LastHour),
			Hourly:      hourly,
			CurrentHour: snap.Rain.LastCheckedHour,
			CurrentDay:  snap.Rain.LastCheckedDay,
			Tips:        snap.Rain.TotalTips,
			Bounces:     snap.Bounces,
		},
		Storage: StorageStatus{
			OK:             snap.StorageOK,
			Kind:           snap.Config.Storage,
			LastCheckpoint: formatTime(snap.LastCheckpoint),
		},
		Time: TimeStatus{
			Valid: snap.TimeValid,
			RTC:   snap.Config.RTC,
			Wall:  formatTime(snap.WallTime),
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			DebounceMs:   snap.Config.DebounceMs,
			CheckpointMs: snap.Config.CheckpointMs,
			MMPerTip:     snap.Config.MMPerTip,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
