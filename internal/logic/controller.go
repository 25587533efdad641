package logic

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/layer-threshold/internal/clock"
)

// Controller activates a layer once accumulated pointer motion crosses a
// threshold, and releases it after an idle timeout or a key press.
//
// All methods and timer callbacks serialize on mu. Timer callbacks may run
// on their own goroutines, so every slot carries a generation number and a
// callback whose generation no longer matches is discarded.
type Controller struct {
	name     string
	cfg      Config
	excluded map[uint32]struct{}
	clock    clock.Clock
	layers   LayerControl
	logger   *slog.Logger

	mu           sync.Mutex
	accX         int64
	accY         int64
	layerActive  bool
	activeLayer  uint8
	lastActivity time.Time
	disable      timerSlot
	reset        timerSlot
	stats        Stats
}

// timerSlot holds at most one pending timer of a kind.
type timerSlot struct {
	timer clock.Timer
	gen   uint64
}

// NewController creates a controller in the Inactive/Idle(0) state.
// A nil logger uses slog.Default().
func NewController(name string, cfg Config, clk clock.Clock, layers LayerControl, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[uint32]struct{}, len(cfg.ExcludedPositions))
	for _, p := range cfg.ExcludedPositions {
		excluded[p] = struct{}{}
	}
	return &Controller{
		name:     name,
		cfg:      cfg,
		excluded: excluded,
		clock:    clk,
		layers:   layers,
		logger:   logger.With("controller", name),
	}
}

// Name returns the controller's configured name.
func (c *Controller) Name() string {
	return c.name
}

// HandleMotion handles one pointer event. X and Y deltas accumulate
// towards the threshold; every other event (wheel, buttons) adds nothing
// but still keeps the window open and renews an active layer. The event
// is never consumed.
func (c *Controller) HandleMotion(ev MotionEvent, layer uint8, timeout time.Duration) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A zero lastActivity means no key has been seen since start, so the
	// gate is open from boot rather than for RequirePriorIdle after it.
	now := c.clock.Now()
	if c.cfg.RequirePriorIdle > 0 && !c.lastActivity.IsZero() &&
		now.Sub(c.lastActivity) < c.cfg.RequirePriorIdle {
		c.stats.SuppressedMotion++
		return Continue
	}

	switch ev.Axis {
	case AxisX:
		c.accX += abs(ev.Delta)
	case AxisY:
		c.accY += abs(ev.Delta)
	default:
		c.stats.IgnoredMotion++
	}
	total := c.accX + c.accY

	c.logger.Debug("pointer event", "axis", ev.Axis, "delta", ev.Delta, "total", total,
		"threshold", c.cfg.Threshold, "layer_active", c.layerActive)

	c.arm(&c.reset, c.cfg.ThresholdTime, c.onResetTimer)

	if c.layerActive {
		c.arm(&c.disable, timeout, c.onDisableTimer)
		c.stats.Renewals++
		return Continue
	}

	if total >= c.cfg.Threshold {
		c.logger.Debug("threshold exceeded, activating layer", "layer", layer, "total", total)
		c.layers.Activate(layer)
		c.layerActive = true
		c.activeLayer = layer
		c.accX = 0
		c.accY = 0
		c.arm(&c.disable, timeout, c.onDisableTimer)
		c.stats.Activations++
	}

	return Continue
}

// HandleKey records key activity for the idle gate and breaks an active
// layer on any press of a position that is not excluded.
func (c *Controller) HandleKey(ev KeyEvent) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastActivity = ev.Time

	if !ev.Pressed || !c.layerActive {
		return Continue
	}
	if _, ok := c.excluded[ev.Position]; ok {
		return Continue
	}

	c.cancel(&c.disable)
	c.logger.Debug("key press, deactivating layer", "layer", c.activeLayer, "position", ev.Position)
	c.deactivateLocked()
	c.stats.KeyDeactivations++
	return Continue
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Name:         c.name,
		LayerActive:  c.layerActive,
		ActiveLayer:  c.activeLayer,
		AccumulatedX: c.accX,
		AccumulatedY: c.accY,
		LastActivity: c.lastActivity,
		Stats:        c.stats,
	}
}

// onDisableTimer is the disable timer callback. Called with mu held.
// A no-op when the layer was already released by a key press.
func (c *Controller) onDisableTimer() {
	if !c.layerActive {
		return
	}
	c.logger.Debug("timeout, deactivating layer", "layer", c.activeLayer)
	c.deactivateLocked()
	c.stats.TimeoutDeactivations++
}

// onResetTimer is the accumulation window expiry. Called with mu held.
func (c *Controller) onResetTimer() {
	c.accX = 0
	c.accY = 0
	c.stats.WindowResets++
	c.logger.Debug("accumulation reset")
}

func (c *Controller) deactivateLocked() {
	c.layers.Deactivate(c.activeLayer)
	c.layerActive = false
	c.activeLayer = 0
}

// arm cancels any pending timer in slot and schedules fn after d.
// Called with mu held.
func (c *Controller) arm(slot *timerSlot, d time.Duration, fn func()) {
	c.cancel(slot)
	gen := slot.gen
	slot.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if slot.gen != gen {
			return
		}
		slot.timer = nil
		fn()
	})
}

// cancel stops the pending timer in slot, if any, and invalidates any
// callback already in flight. Called with mu held.
func (c *Controller) cancel(slot *timerSlot) {
	slot.gen++
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
}

func abs(v int32) int64 {
	if v < 0 {
		return -int64(v)
	}
	return int64(v)
}
