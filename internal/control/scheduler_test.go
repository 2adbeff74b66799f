package control

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestStart_RunsFirstCycleImmediately(t *testing.T) {
	h := newHarness(t) // hourly interval
	h.hub.set("sensor.vessel", "20.0")

	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.loop.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return h.store.lists() == 1 }) {
		t.Fatalf("first cycle did not run immediately, lists = %d", h.store.lists())
	}
	if !h.loop.Running() {
		t.Error("Running() = false after Start")
	}
}

func TestStart_SecondCallIsNoop(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "20.0")
	ctx := context.Background()

	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	defer h.loop.Stop()

	waitFor(t, 2*time.Second, func() bool { return h.store.lists() >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := h.store.lists(); got != 1 {
		t.Errorf("cycles = %d, want 1 (no second scheduler)", got)
	}
}

func TestStart_CancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.loop.Start(ctx); err == nil {
		t.Error("Start() with cancelled context should fail")
	}
	if h.loop.Running() {
		t.Error("Running() = true after failed Start")
	}
}

func TestSchedule_RepeatsOnInterval(t *testing.T) {
	h := newHarness(t)
	h.loop.interval = 20 * time.Millisecond
	h.hub.set("sensor.vessel", "20.0")

	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.loop.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return h.store.lists() >= 3 }) {
		t.Errorf("cycles = %d, want at least 3", h.store.lists())
	}
}

func TestSchedule_CyclesNeverOverlap(t *testing.T) {
	h := newHarness(t)
	h.loop.interval = 5 * time.Millisecond
	h.hub.set("sensor.vessel", "20.0")
	release := make(chan struct{})
	h.hub.block["sensor.vessel"] = release

	// Each cycle's single read takes longer than the interval.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case release <- struct{}{}:
				default:
				}
			}
		}
	}()

	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.store.lists() >= 3 })
	h.loop.Stop()

	if got := h.hub.maxConcurrentReads(); got != 1 {
		t.Errorf("max concurrent reads = %d, want 1", got)
	}
}

func TestStop_WaitsForInFlightCycle(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "20.0")
	release := make(chan struct{})
	h.hub.block["sensor.vessel"] = release
	h.hub.started = make(chan string, 1)

	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-h.hub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never read the sensor")
	}

	stopped := make(chan struct{})
	go func() {
		h.loop.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop() returned while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after the cycle finished")
	}

	if len(h.recorder.samplesFor("p1", telemetry.KindTemperature)) != 1 {
		t.Error("in-flight cycle did not complete its work")
	}
	if h.loop.Running() {
		t.Error("Running() = true after Stop")
	}
	before := h.store.lists()
	time.Sleep(50 * time.Millisecond)
	if h.store.lists() != before {
		t.Error("cycle ran after Stop")
	}
}

func TestStop_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.loop.Stop() // before Start

	h.hub.set("sensor.vessel", "20.0")
	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.loop.Stop()
	h.loop.Stop()

	if h.loop.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestStart_AfterStop(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "20.0")

	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.store.lists() == 1 })
	h.loop.Stop()

	if err := h.loop.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	defer h.loop.Stop()
	if !waitFor(t, 2*time.Second, func() bool { return h.store.lists() == 2 }) {
		t.Errorf("restart did not run an immediate cycle, lists = %d", h.store.lists())
	}
}

func TestSchedule_ParentCancellationStops(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "20.0")
	ctx, cancel := context.WithCancel(context.Background())

	if err := h.loop.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return h.store.lists() == 1 })
	cancel()

	if !waitFor(t, 2*time.Second, func() bool { return !h.loop.Running() }) {
		t.Error("Running() still true after parent context cancelled")
	}
	h.loop.Stop()
}
