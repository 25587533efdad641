package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sweeney/layer-threshold/internal/clock"
	"github.com/sweeney/layer-threshold/internal/gpio"
	"github.com/sweeney/layer-threshold/internal/input"
	"github.com/sweeney/layer-threshold/internal/keybus"
	"github.com/sweeney/layer-threshold/internal/keymap"
	"github.com/sweeney/layer-threshold/internal/logging"
	"github.com/sweeney/layer-threshold/internal/logic"
	"github.com/sweeney/layer-threshold/internal/mqtt"
	"github.com/sweeney/layer-threshold/internal/status"
	"github.com/sweeney/layer-threshold/internal/web"
)

const (
	trackpad = "/dev/input/event3"
	keyboard = "/dev/input/event4"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// rig is the daemon's pipeline assembled from fakes: readers feed the pump,
// events go through the pipelines and key bus, and layer changes fan out
// to the publisher, LED and tracker.
type rig struct {
	clk       *clock.Fake
	keymap    *keymap.Keymap
	ctl       *logic.Controller
	pipelines map[string]logic.Pipeline
	keys      *keybus.Bus
	publisher *mqtt.FakePublisher
	led       *gpio.FakeIndicator
	tracker   *status.Tracker
}

func newRig(t *testing.T, cfg logic.Config) *rig {
	t.Helper()
	clk := clock.NewFake(startTime)
	r := &rig{
		clk:       clk,
		keymap:    keymap.New(clk.Now),
		keys:      keybus.New(),
		publisher: mqtt.NewFakePublisher(),
		led:       gpio.NewFakeIndicator(),
		tracker: status.NewTracker(startTime, status.Config{
			Broker:  "tcp://192.168.1.200:1883",
			Devices: []string{trackpad, keyboard},
		}, clk.Now),
	}
	r.ctl = logic.NewController("trackpad", cfg, clk, r.keymap, logging.Discard())
	r.keys.Subscribe(r.ctl)
	r.pipelines = map[string]logic.Pipeline{
		trackpad: {logic.Binding{Controller: r.ctl, Layer: 3, Timeout: 500 * time.Millisecond}},
	}

	// Changes arrive synchronously on whichever goroutine caused them;
	// in these tests that is always the test goroutine.
	r.keymap.OnChange(func(c keymap.Change) {
		if err := r.publisher.Publish(c); err != nil {
			t.Logf("publish error: %v", err)
		}
		r.led.Set(len(c.Layers) > 1)
		r.tracker.RecordChange(c)
	})
	return r
}

func (r *rig) dispatch(ev input.Event) {
	switch ev.Kind {
	case input.KindMotion:
		r.pipelines[ev.Device].Run(ev.Motion)
	case input.KindKey:
		if ev.Key.Time.IsZero() {
			ev.Key.Time = r.clk.Now()
		}
		r.keys.Publish(ev.Key)
	}
	r.tracker.Update([]logic.State{r.ctl.State()})
}

// pump starts input.Pump over readers and returns its event channel and
// a function that stops it and returns Pump's result.
func pump(t *testing.T, readers ...input.Reader) (<-chan input.Event, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan input.Event)
	errCh := make(chan error, 1)
	go func() {
		errCh <- input.Pump(ctx, readers, events, logging.Discard())
	}()
	return events, func() error {
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("pump did not stop")
			return nil
		}
	}
}

func receive(t *testing.T, events <-chan input.Event) input.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for input event")
		return input.Event{}
	}
}

func defaultConfig() logic.Config {
	return logic.Config{
		Threshold:         50,
		ThresholdTime:     100 * time.Millisecond,
		ExcludedPositions: []uint32{42},
	}
}

// TestIntegrationMotionActivatesAndKeyReleases drives a trackpad that
// reports both motion and its own buttons through the whole stack.
func TestIntegrationMotionActivatesAndKeyReleases(t *testing.T) {
	r := newRig(t, defaultConfig())

	script := []input.Event{
		input.Motion(logic.AxisX, 30),
		input.Motion(logic.AxisY, -25), // crosses 50
		input.Key(42, true),            // excluded, layer stays
		input.Key(42, false),
		input.Motion(logic.AxisX, 2), // renews
		input.Key(30, true),          // releases
	}
	reader := input.NewFakeReader(trackpad, script)
	events, stop := pump(t, reader)

	for range script {
		r.dispatch(receive(t, events))
	}
	if err := stop(); err != nil {
		t.Fatalf("pump returned error: %v", err)
	}
	if !reader.Closed() {
		t.Error("pump should close its readers")
	}

	if len(r.publisher.Changes) != 2 {
		t.Fatalf("expected 2 layer changes, got %d", len(r.publisher.Changes))
	}
	on, off := r.publisher.Changes[0], r.publisher.Changes[1]
	if !on.Active || on.Layer != 3 {
		t.Errorf("first change should be layer 3 on, got %+v", on)
	}
	if off.Active || off.Layer != 3 {
		t.Errorf("second change should be layer 3 off, got %+v", off)
	}

	if got := r.led.Values(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("LED values: got %v, want [true false]", got)
	}

	st := r.ctl.State()
	if st.Stats.Activations != 1 || st.Stats.Renewals != 1 || st.Stats.KeyDeactivations != 1 {
		t.Errorf("unexpected stats: %+v", st.Stats)
	}
}

// TestIntegrationTimeoutReleases verifies the disable timer releases the
// layer and the LED follows.
func TestIntegrationTimeoutReleases(t *testing.T) {
	r := newRig(t, defaultConfig())

	script := []input.Event{input.Motion(logic.AxisX, 80)}
	events, stop := pump(t, input.NewFakeReader(trackpad, script))
	r.dispatch(receive(t, events))
	stop()

	if !r.keymap.IsActive(3) {
		t.Fatal("layer 3 should be active")
	}

	r.clk.Advance(499 * time.Millisecond)
	if !r.keymap.IsActive(3) {
		t.Fatal("layer 3 should still be active at 499ms")
	}
	r.clk.Advance(time.Millisecond)
	if r.keymap.IsActive(3) {
		t.Fatal("layer 3 should be released at 500ms")
	}

	if r.led.On() {
		t.Error("LED should be off")
	}
	if len(r.publisher.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(r.publisher.Payloads))
	}

	expected := `{"layer":{"timestamp":"2026-01-01T12:00:00Z","event":"LAYER_OFF","layer":3,"active_layers":[0]}}`
	if string(r.publisher.Payloads[1]) != expected {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", r.publisher.Payloads[1], expected)
	}
}

// TestIntegrationSlowMotionNeverActivates verifies the accumulation window
// discards motion spread too thinly.
func TestIntegrationSlowMotionNeverActivates(t *testing.T) {
	r := newRig(t, defaultConfig())

	for i := 0; i < 10; i++ {
		r.dispatch(input.Event{Device: trackpad, Kind: input.KindMotion, Motion: logic.MotionEvent{Axis: logic.AxisX, Delta: 20}})
		r.clk.Advance(150 * time.Millisecond)
	}

	if len(r.publisher.Changes) != 0 {
		t.Errorf("expected no layer changes, got %d", len(r.publisher.Changes))
	}
	if st := r.ctl.State(); st.Stats.WindowResets != 10 {
		t.Errorf("expected 10 window resets, got %d", st.Stats.WindowResets)
	}
}

// TestIntegrationTypingSuppressesMotion verifies the prior idle gate with
// keys coming from a separate keyboard device.
func TestIntegrationTypingSuppressesMotion(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequirePriorIdle = 300 * time.Millisecond
	r := newRig(t, cfg)

	kbd := input.NewFakeReader(keyboard, []input.Event{input.Key(30, true), input.Key(30, false)})
	events, stop := pump(t, kbd)
	r.dispatch(receive(t, events))
	r.dispatch(receive(t, events))
	stop()

	r.clk.Advance(100 * time.Millisecond)
	r.dispatch(input.Event{Device: trackpad, Kind: input.KindMotion, Motion: logic.MotionEvent{Axis: logic.AxisX, Delta: 200}})
	if r.keymap.IsActive(3) {
		t.Fatal("motion right after typing should not activate")
	}

	r.clk.Advance(200 * time.Millisecond)
	r.dispatch(input.Event{Device: trackpad, Kind: input.KindMotion, Motion: logic.MotionEvent{Axis: logic.AxisX, Delta: 60}})
	if !r.keymap.IsActive(3) {
		t.Fatal("motion after the idle period should activate")
	}

	if st := r.ctl.State(); st.Stats.SuppressedMotion != 1 {
		t.Errorf("expected 1 suppressed sample, got %d", st.Stats.SuppressedMotion)
	}
}

// TestIntegrationMultipleDevices verifies events from several readers all
// reach the controllers. Keys here are excluded so arrival order between
// devices does not matter.
func TestIntegrationMultipleDevices(t *testing.T) {
	r := newRig(t, defaultConfig())

	pad := input.NewFakeReader(trackpad, []input.Event{input.Motion(logic.AxisX, 40), input.Motion(logic.AxisY, 40)})
	kbd := input.NewFakeReader(keyboard, []input.Event{input.Key(42, true), input.Key(42, false)})
	events, stop := pump(t, pad, kbd)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		ev := receive(t, events)
		seen[ev.Device]++
		r.dispatch(ev)
	}
	if err := stop(); err != nil {
		t.Fatalf("pump returned error: %v", err)
	}

	if seen[trackpad] != 2 || seen[keyboard] != 2 {
		t.Errorf("events per device: %v", seen)
	}
	if !r.keymap.IsActive(3) {
		t.Error("layer 3 should be active")
	}
	if r.keys.Published() != 2 {
		t.Errorf("expected 2 key events on the bus, got %d", r.keys.Published())
	}
}

// TestIntegrationDeviceLoss verifies Pump keeps going while one device
// survives and reports input loss once all are gone.
func TestIntegrationDeviceLoss(t *testing.T) {
	unplugged := errors.New("no such device")

	pad := input.NewFakeReader(trackpad, []input.Event{input.Motion(logic.AxisX, 10)})
	pad.ReadError = unplugged
	kbd := input.NewFakeReader(keyboard, nil)
	kbd.ReadError = unplugged

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan input.Event, 4)
	err := input.Pump(ctx, []input.Reader{pad, kbd}, events, logging.Discard())

	if !errors.Is(err, input.ErrNoReaders) {
		t.Fatalf("expected ErrNoReaders, got %v", err)
	}
	if !errors.Is(err, unplugged) {
		t.Errorf("expected device error to be wrapped, got %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected the event read before the failure, got %d", len(events))
	}
}

// TestIntegrationPublishFailureDoesNotCrash verifies the layer state is
// unaffected by a broken publisher.
func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	r := newRig(t, defaultConfig())
	r.publisher.PublishError = errors.New("broker down")

	r.dispatch(input.Event{Device: trackpad, Kind: input.KindMotion, Motion: logic.MotionEvent{Axis: logic.AxisX, Delta: 60}})

	if !r.keymap.IsActive(3) {
		t.Error("layer should activate even when publishing fails")
	}
	if !r.led.On() {
		t.Error("LED should still follow the layer")
	}
}

// TestIntegrationStatusEndpoint verifies the tracker state reaches the
// HTTP status page and the MQTT status payloads.
func TestIntegrationStatusEndpoint(t *testing.T) {
	r := newRig(t, defaultConfig())
	r.tracker.SetMQTTConnected(true)

	r.clk.Advance(time.Minute)
	r.dispatch(input.Event{Device: trackpad, Kind: input.KindMotion, Motion: logic.MotionEvent{Axis: logic.AxisX, Delta: 60}})

	srv := web.New(":0", r.tracker, logging.Discard())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/index.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(w.Body.Bytes(), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status
	if !s.LayerActive || len(s.ActiveLayers) != 2 || s.ActiveLayers[1] != 3 {
		t.Errorf("unexpected layers: active=%v layers=%v", s.LayerActive, s.ActiveLayers)
	}
	if s.UptimeSeconds != 60 {
		t.Errorf("uptime: got %d, want 60", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("unexpected mqtt status: %+v", s.MQTT)
	}
	if len(s.Controllers) != 1 || s.Controllers[0].Stats.Activations != 1 {
		t.Errorf("unexpected controllers: %+v", s.Controllers)
	}

	// The same snapshot is what STARTUP/SHUTDOWN/HEARTBEAT carry.
	ev := mqtt.SystemEvent{
		Timestamp:  r.clk.Now(),
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(r.tracker.Snapshot(), "HEARTBEAT", ""),
	}
	if err := r.publisher.PublishSystem(ev); err != nil {
		t.Fatalf("publish system: %v", err)
	}
	var hb status.StatusJSON
	if err := json.Unmarshal(r.publisher.SystemPayloads[0], &hb); err != nil {
		t.Fatalf("invalid heartbeat JSON: %v", err)
	}
	if hb.Status.Event != "HEARTBEAT" || hb.Status.Counts.On != 1 {
		t.Errorf("unexpected heartbeat status: %+v", hb.Status)
	}
}
