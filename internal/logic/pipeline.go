package logic

import "time"

// Processor handles a motion event on its way from a pointer device.
type Processor interface {
	Process(ev MotionEvent) Verdict
}

// Binding invokes a Controller with the layer and timeout configured at
// one call site. Several bindings may share a controller.
type Binding struct {
	Controller *Controller
	Layer      uint8
	Timeout    time.Duration
}

// Process forwards the event to the bound controller.
func (b Binding) Process(ev MotionEvent) Verdict {
	return b.Controller.HandleMotion(ev, b.Layer, b.Timeout)
}

// Pipeline is an ordered chain of processors for one pointer device.
type Pipeline []Processor

// Run passes ev through each processor until one returns Stop.
func (p Pipeline) Run(ev MotionEvent) Verdict {
	for _, proc := range p {
		if proc.Process(ev) == Stop {
			return Stop
		}
	}
	return Continue
}
