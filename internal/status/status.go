// Package status provides a thread-safe status tracker for the layer-threshold daemon.
// It is read by the HTTP handlers and used to build MQTT lifecycle payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/layer-threshold/internal/keymap"
	"github.com/sweeney/layer-threshold/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Devices     []string
}

// LayerCounts counts layer transitions since start-up.
type LayerCounts struct {
	On  int
	Off int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Controllers   []logic.State
	ActiveLayers  []uint8
	Counts        LayerCounts
	LastChange    *keymap.Change
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	KeyEvents     uint64
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// LayerActive reports whether any non-default layer is active.
func (s Snapshot) LayerActive() bool {
	for _, l := range s.ActiveLayers {
		if l != keymap.DefaultLayer {
			return true
		}
	}
	return false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// now stamps snapshots; nil means time.Now.
func NewTracker(startTime time.Time, cfg Config, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		snap: Snapshot{
			StartTime:    startTime,
			ActiveLayers: []uint8{keymap.DefaultLayer},
			Config:       cfg,
		},
		now: now,
	}
}

// Update replaces the controller states.
// Called from runLoop on every tick and after every layer change.
func (t *Tracker) Update(controllers []logic.State) {
	cp := make([]logic.State, len(controllers))
	copy(cp, controllers)

	t.mu.Lock()
	t.snap.Controllers = cp
	t.mu.Unlock()
}

// RecordChange stores a layer transition and bumps the counters.
func (t *Tracker) RecordChange(c keymap.Change) {
	c.Layers = append([]uint8(nil), c.Layers...)

	t.mu.Lock()
	t.snap.ActiveLayers = c.Layers
	t.snap.LastChange = &c
	if c.Active {
		t.snap.Counts.On++
	} else {
		t.snap.Counts.Off++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetKeyEvents sets the number of key events delivered to the controllers.
func (t *Tracker) SetKeyEvents(n uint64) {
	t.mu.Lock()
	t.snap.KeyEvents = n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
