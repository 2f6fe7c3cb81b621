// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/rain-gauge/internal/rain"
)

// Topic is the MQTT topic for rollover events.
const Topic = "weather/rain/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "weather/rain/system"

// System event names.
const (
	EventStartup          = "STARTUP"
	EventShutdown         = "SHUTDOWN"
	EventCheckpointFailed = "CHECKPOINT_FAILED"
	EventOffline          = "OFFLINE"
	EventReconnected      = "RECONNECTED"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a rollover event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event rain.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "CHECKPOINT_FAILED"
	Reason     string // e.g., "SIGTERM", or the storage error
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Rain RainPayload `json:"rain"`
}

// RainPayload contains the rollover details. Volumes are mm.
type RainPayload struct {
	Timestamp     string  `json:"timestamp"`
	Event         string  `json:"event"`
	CompletedHour int     `json:"completed_hour"`
	LastHour      float64 `json:"last_hour_mm"`
	Today         float64 `json:"today_mm"`
	Yesterday     float64 `json:"yesterday_mm"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatPayload creates the JSON payload for a rollover event.
func FormatPayload(event rain.Event) ([]byte, error) {
	payload := Payload{
		Rain: RainPayload{
			Timestamp:     event.Timestamp.UTC().Format(time.RFC3339),
			Event:         string(event.Type),
			CompletedHour: event.CompletedHour,
			LastHour:      round2(event.LastHour),
			Today:         round2(event.Today),
			Yesterday:     round2(event.Yesterday),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
