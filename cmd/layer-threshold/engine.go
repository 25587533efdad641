package main

import (
	"log/slog"

	"github.com/sweeney/layer-threshold/internal/clock"
	"github.com/sweeney/layer-threshold/internal/config"
	"github.com/sweeney/layer-threshold/internal/input"
	"github.com/sweeney/layer-threshold/internal/keybus"
	"github.com/sweeney/layer-threshold/internal/keymap"
	"github.com/sweeney/layer-threshold/internal/logic"
)

// engine is the in-process layer machinery: the keymap, one controller per
// configured name, one processor pipeline per device and the key bus that
// broadcasts key events to every controller.
type engine struct {
	keymap      *keymap.Keymap
	controllers []*logic.Controller
	pipelines   map[string]logic.Pipeline
	keys        *keybus.Bus
}

// buildEngine wires controllers from a validated config.
func buildEngine(cfg config.Config, clk clock.Clock, logger *slog.Logger) *engine {
	e := &engine{
		keymap:    keymap.New(clk.Now),
		pipelines: make(map[string]logic.Pipeline, len(cfg.Devices)),
		keys:      keybus.New(),
	}

	byName := make(map[string]*logic.Controller, len(cfg.Controllers))
	for _, cc := range cfg.Controllers {
		c := logic.NewController(cc.Name, cc.Engine(), clk, e.keymap, logger)
		byName[cc.Name] = c
		e.controllers = append(e.controllers, c)
		e.keys.Subscribe(c)
	}

	for _, dev := range cfg.Devices {
		var p logic.Pipeline
		for _, pc := range dev.Processors {
			p = append(p, logic.Binding{
				Controller: byName[pc.Controller],
				Layer:      uint8(pc.Layer),
				Timeout:    pc.Timeout(),
			})
		}
		e.pipelines[dev.Path] = p
	}

	return e
}

// dispatch routes one input event. Pointer events (motion and buttons)
// go through the source device's pipeline and are dropped for devices
// without processors; key events go to every controller.
func (e *engine) dispatch(ev input.Event) {
	switch ev.Kind {
	case input.KindMotion:
		e.pipelines[ev.Device].Run(ev.Motion)
	case input.KindKey:
		e.keys.Publish(ev.Key)
	}
}

// states returns a snapshot of every controller, in config order.
func (e *engine) states() []logic.State {
	out := make([]logic.State, len(e.controllers))
	for i, c := range e.controllers {
		out[i] = c.State()
	}
	return out
}

// forwardChanges returns a keymap listener that hands changes to the event
// loop without blocking. Changes are dropped with a warning when ch is full.
func forwardChanges(ch chan<- keymap.Change, logger *slog.Logger) keymap.Listener {
	return func(c keymap.Change) {
		select {
		case ch <- c:
		default:
			logger.Warn("layer change queue full, dropping change", "layer", c.Layer, "active", c.Active)
		}
	}
}
