package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	LayerActive   bool             `json:"layer_active"`
	ActiveLayers  []int            `json:"active_layers"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Counts        CountsJSON       `json:"layer_changes"`
	KeyEvents     uint64           `json:"key_events"`
	LastChange    *ChangeJSON      `json:"last_change,omitempty"`
	Controllers   []ControllerJSON `json:"controllers"`
	Config        ConfigJSON       `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of layer change counts.
type CountsJSON struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

// ChangeJSON is the JSON representation of the last layer change.
type ChangeJSON struct {
	Layer     int    `json:"layer"`
	Active    bool   `json:"active"`
	Timestamp string `json:"timestamp"`
}

// ControllerJSON is the JSON representation of one controller.
type ControllerJSON struct {
	Name         string    `json:"name"`
	LayerActive  bool      `json:"layer_active"`
	ActiveLayer  int       `json:"active_layer"`
	AccumulatedX int64     `json:"accumulated_x"`
	AccumulatedY int64     `json:"accumulated_y"`
	LastKey      string    `json:"last_key_activity,omitempty"`
	Stats        StatsJSON `json:"stats"`
}

// StatsJSON is the JSON representation of controller statistics.
type StatsJSON struct {
	Activations          int `json:"activations"`
	Renewals             int `json:"renewals"`
	TimeoutDeactivations int `json:"timeout_deactivations"`
	KeyDeactivations     int `json:"key_deactivations"`
	WindowResets         int `json:"window_resets"`
	SuppressedMotion     int `json:"suppressed_motion"`
	IgnoredMotion        int `json:"ignored_motion"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs int64    `json:"heartbeat_ms"`
	Broker      string   `json:"broker"`
	HTTPAddr    string   `json:"http_addr"`
	Devices     []string `json:"devices"`
}

func buildInner(snap Snapshot) StatusInner {
	layers := make([]int, len(snap.ActiveLayers))
	for i, l := range snap.ActiveLayers {
		layers[i] = int(l)
	}

	controllers := make([]ControllerJSON, len(snap.Controllers))
	for i, c := range snap.Controllers {
		cj := ControllerJSON{
			Name:         c.Name,
			LayerActive:  c.LayerActive,
			ActiveLayer:  int(c.ActiveLayer),
			AccumulatedX: c.AccumulatedX,
			AccumulatedY: c.AccumulatedY,
			Stats: StatsJSON{
				Activations:          c.Stats.Activations,
				Renewals:             c.Stats.Renewals,
				TimeoutDeactivations: c.Stats.TimeoutDeactivations,
				KeyDeactivations:     c.Stats.KeyDeactivations,
				WindowResets:         c.Stats.WindowResets,
				SuppressedMotion:     c.Stats.SuppressedMotion,
				IgnoredMotion:        c.Stats.IgnoredMotion,
			},
		}
		if !c.LastActivity.IsZero() {
			cj.LastKey = c.LastActivity.UTC().Format(time.RFC3339Nano)
		}
		controllers[i] = cj
	}

	devices := snap.Config.Devices
	if devices == nil {
		devices = []string{}
	}

	inner := StatusInner{
		LayerActive:   snap.LayerActive(),
		ActiveLayers:  layers,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{On: snap.Counts.On, Off: snap.Counts.Off},
		KeyEvents:     snap.KeyEvents,
		Controllers:   controllers,
		Config: ConfigJSON{
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Devices:     devices,
		},
	}

	if snap.LastChange != nil {
		inner.LastChange = &ChangeJSON{
			Layer:     int(snap.LastChange.Layer),
			Active:    snap.LastChange.Active,
			Timestamp: snap.LastChange.Time.UTC().Format(time.RFC3339),
		}
	}

	return inner
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
