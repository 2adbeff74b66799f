package control

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/fermentwatch/internal/device"
	"github.com/nerrad567/fermentwatch/internal/project"
	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store     *fakeStore
	devices   *fakeDevices
	hub       *fakeHub
	recorder  *fakeRecorder
	publisher *fakePublisher
	logger    *recordingLogger
	metrics   *Metrics
	loop      *Loop
}

// newHarness builds a loop over one automatic project "p1" whose sensor
// reads sensor.vessel and whose outlet is switch.heat.
func newHarness(t *testing.T, projects ...project.Project) *harness {
	t.Helper()
	if len(projects) == 0 {
		projects = []project.Project{automaticProject("p1", "s1", "o1", 20.0, false)}
	}

	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	h := &harness{
		store:     newFakeStore(projects...),
		devices:   newFakeDevices(sensorDevice("s1", "sensor.vessel"), hubOutlet("o1", "switch.heat")),
		hub:       newFakeHub(),
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
		logger:    &recordingLogger{},
		metrics:   metrics,
	}
	h.loop, err = NewLoop(Deps{
		Projects:    h.store,
		Devices:     h.devices,
		Hub:         h.hub,
		Recorder:    h.recorder,
		Publisher:   h.publisher,
		Metrics:     h.metrics,
		Logger:      h.logger,
		Interval:    time.Hour,
		CallTimeout: time.Second,
		Clock:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	return h
}

func (h *harness) cycle() CycleReport {
	return h.loop.RunCycle(context.Background())
}

func TestNewLoop_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing projects", Deps{Devices: h.devices, Hub: h.hub}},
		{"missing devices", Deps{Projects: h.store, Hub: h.hub}},
		{"missing hub", Deps{Projects: h.store, Devices: h.devices}},
		{"negative interval", Deps{Projects: h.store, Devices: h.devices, Hub: h.hub, Interval: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoop(tt.deps); !errors.Is(err, ErrInvalidDeps) {
				t.Errorf("NewLoop() error = %v, want ErrInvalidDeps", err)
			}
		})
	}
}

func TestNewLoop_Defaults(t *testing.T) {
	h := newHarness(t)
	l, err := NewLoop(Deps{Projects: h.store, Devices: h.devices, Hub: h.hub})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	if l.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", l.interval)
	}
	if l.callTimeout != 10*time.Second {
		t.Errorf("callTimeout = %v, want a third of the interval", l.callTimeout)
	}
}

func TestRunCycle_ColdVesselSwitchesOn(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "18.0")

	report := h.cycle()

	if report.Projects != 1 || report.Failed != 0 || report.Actuations != 1 {
		t.Errorf("report = %+v", report)
	}
	calls := h.hub.switchCalls()
	if len(calls) != 1 || calls[0] != (switchCall{target: "switch.heat", on: true}) {
		t.Fatalf("switch calls = %+v, want one ON to switch.heat", calls)
	}

	p := h.store.get("p1")
	if !p.OutletActive {
		t.Error("OutletActive = false, want true")
	}
	if p.CurrentTemperature == nil || *p.CurrentTemperature != 18.0 {
		t.Errorf("CurrentTemperature = %v, want 18.0", p.CurrentTemperature)
	}

	samples := h.recorder.samplesFor("p1", telemetry.KindTemperature)
	if len(samples) != 1 || samples[0].Value != 18.0 || !samples[0].Timestamp.Equal(fixedNow) {
		t.Errorf("samples = %+v", samples)
	}

	events := h.recorder.eventList()
	if len(events) != 1 {
		t.Fatalf("events = %+v, want one", events)
	}
	ev := events[0]
	if !ev.State || ev.Source != telemetry.SourceAutomatic || ev.TemperatureAtChange == nil || *ev.TemperatureAtChange != 18.0 {
		t.Errorf("event = %+v, want on/automatic at 18.0", ev)
	}

	if len(h.publisher.temperatures) != 1 || len(h.publisher.events) != 1 {
		t.Errorf("published temps=%v events=%v", h.publisher.temperatures, h.publisher.events)
	}
	if got := testutil.ToFloat64(h.metrics.actuations.WithLabelValues("on", "automatic")); got != 1 {
		t.Errorf("actuations{on,automatic} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.temperature.WithLabelValues("p1")); got != 18.0 {
		t.Errorf("temperature gauge = %v, want 18.0", got)
	}
}

func TestRunCycle_OffScenarios(t *testing.T) {
	tests := []struct {
		name    string
		reading string
	}{
		{"within threshold", "19.9"},
		{"boundary at 19.85", "19.85"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, automaticProject("p1", "s1", "o1", 20.0, true))
			h.hub.set("sensor.vessel", tt.reading)

			h.cycle()

			calls := h.hub.switchCalls()
			if len(calls) != 1 || calls[0].on {
				t.Fatalf("switch calls = %+v, want one OFF", calls)
			}
			if h.store.get("p1").OutletActive {
				t.Error("OutletActive = true, want false")
			}
			if ev := h.recorder.eventList(); len(ev) != 1 || ev[0].State {
				t.Errorf("events = %+v, want one off event", ev)
			}
		})
	}
}

func TestRunCycle_EdgeTriggered(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "18.0")

	for i := 0; i < 5; i++ {
		h.cycle()
	}

	if calls := h.hub.switchCalls(); len(calls) != 1 {
		t.Errorf("switch calls = %d, want 1 across repeated cold readings", len(calls))
	}
	if events := h.recorder.eventList(); len(events) != 1 {
		t.Errorf("events = %d, want 1", len(events))
	}
	if samples := h.recorder.samplesFor("p1", telemetry.KindTemperature); len(samples) != 5 {
		t.Errorf("samples = %d, want one per cycle", len(samples))
	}
}

func TestRunCycle_FailureIsolation(t *testing.T) {
	h := newHarness(t,
		automaticProject("a", "s1", "o1", 20.0, false),
		automaticProject("b", "s2", "o2", 20.0, false),
	)
	h.devices.add(sensorDevice("s2", "sensor.other"))
	h.devices.add(hubOutlet("o2", "switch.other"))
	h.hub.fail("sensor.vessel", errors.New("hub unavailable: timeout"))
	h.hub.set("sensor.other", "18.5")

	report := h.cycle()

	if report.Projects != 2 || report.Failed != 1 || report.Actuations != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(h.recorder.samplesFor("a", telemetry.KindTemperature)) != 0 {
		t.Error("project a recorded a sample despite failed read")
	}
	if len(h.recorder.samplesFor("b", telemetry.KindTemperature)) != 1 {
		t.Error("project b did not record its sample")
	}
	if got := testutil.ToFloat64(h.metrics.failures.WithLabelValues(StageRead)); got != 1 {
		t.Errorf("failures{read} = %v, want 1", got)
	}
}

func TestRunCycle_ReadFailureRetriedNextCycle(t *testing.T) {
	h := newHarness(t)
	h.hub.fail("sensor.vessel", errors.New("hub unavailable: timeout"))

	h.cycle()
	if len(h.hub.switchCalls()) != 0 || len(h.recorder.samplesFor("p1", telemetry.KindTemperature)) != 0 {
		t.Fatal("failed read should skip the project")
	}

	h.hub.set("sensor.vessel", "18.0")
	h.cycle()

	if len(h.recorder.samplesFor("p1", telemetry.KindTemperature)) != 1 {
		t.Error("recovered cycle did not record a sample")
	}
	if len(h.hub.switchCalls()) != 1 {
		t.Error("recovered cycle did not actuate")
	}
}

func TestRunCycle_ManualModeNeverActuates(t *testing.T) {
	p := automaticProject("p1", "s1", "o1", 20.0, false)
	p.ControlMode = project.ModeManual
	h := newHarness(t, p)
	h.hub.set("sensor.vessel", "10.0")

	for i := 0; i < 3; i++ {
		h.cycle()
	}

	if calls := h.hub.switchCalls(); len(calls) != 0 {
		t.Errorf("switch calls = %+v, want none in manual mode", calls)
	}
	if len(h.recorder.samplesFor("p1", telemetry.KindTemperature)) != 3 {
		t.Error("manual projects should still be sampled")
	}
	if cur := h.store.get("p1").CurrentTemperature; cur == nil || *cur != 10.0 {
		t.Errorf("CurrentTemperature = %v, want 10.0", cur)
	}
}

func TestRunCycle_ObservesModeChangeBetweenCycles(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "18.0")
	h.cycle()

	h.store.mutate("p1", func(p *project.Project) { p.ControlMode = project.ModeManual })
	h.hub.set("sensor.vessel", "25.0")
	h.cycle()

	if calls := h.hub.switchCalls(); len(calls) != 1 {
		t.Errorf("switch calls = %+v, want only the first-cycle ON", calls)
	}
	if !h.store.get("p1").OutletActive {
		t.Error("outlet flag changed after switching to manual")
	}
}

func TestRunCycle_MalformedValueSkipped(t *testing.T) {
	h := newHarness(t)
	for _, raw := range []string{"unavailable", "NaN", "+Inf", ""} {
		h.hub.set("sensor.vessel", raw)
		report := h.cycle()
		if report.Failed != 1 {
			t.Errorf("reading %q: Failed = %d, want 1", raw, report.Failed)
		}
	}

	if len(h.recorder.samplesFor("p1", telemetry.KindTemperature)) != 0 || len(h.hub.switchCalls()) != 0 {
		t.Error("malformed readings must not be recorded or acted on")
	}

	warns := h.logger.find("warn", "project step failed")
	if len(warns) != 4 {
		t.Fatalf("warnings = %d, want 4", len(warns))
	}
	err, _ := warns[0].attr("error").(error)
	if !errors.Is(err, ErrMalformedSensorValue) || !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("warning error = %v, want malformed value carrying the raw state", err)
	}
}

func TestRunCycle_HubCallBounded(t *testing.T) {
	h := newHarness(t)
	h.loop.callTimeout = 50 * time.Millisecond
	h.hub.block["sensor.vessel"] = make(chan struct{}) // never released

	start := time.Now()
	report := h.cycle()

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cycle took %v with an unresponsive hub", elapsed)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
}

func TestRunCycle_SampleWriteFailureStillDecides(t *testing.T) {
	h := newHarness(t)
	h.recorder.sampleErr = errInjected
	h.hub.set("sensor.vessel", "18.0")

	report := h.cycle()

	if len(h.hub.switchCalls()) != 1 {
		t.Error("decision skipped after failed sample write")
	}
	if report.Failed != 1 || report.Actuations != 1 {
		t.Errorf("report = %+v", report)
	}
	if cur := h.store.get("p1").CurrentTemperature; cur == nil {
		t.Error("stored temperature not updated after failed sample write")
	}
}

func TestRunCycle_TemperatureUpdateFailureStillDecides(t *testing.T) {
	h := newHarness(t)
	h.store.updateTempErr = errInjected
	h.hub.set("sensor.vessel", "18.0")

	h.cycle()

	if len(h.hub.switchCalls()) != 1 {
		t.Error("decision skipped after failed temperature update")
	}
}

func TestRunCycle_FlagPersistFailureStillRecordsEvent(t *testing.T) {
	h := newHarness(t)
	h.store.updateFlagErr = errInjected
	h.hub.set("sensor.vessel", "18.0")

	report := h.cycle()

	if len(h.recorder.eventList()) != 1 {
		t.Error("event not recorded after the outlet switched")
	}
	if report.Failed != 1 || report.Actuations != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := testutil.ToFloat64(h.metrics.failures.WithLabelValues(StagePersist)); got != 1 {
		t.Errorf("failures{persist} = %v, want 1", got)
	}
}

func TestRunCycle_ActuationFailureRetriedNextCycle(t *testing.T) {
	h := newHarness(t)
	h.hub.switchErr = errors.New("hub unavailable: 503")
	h.hub.set("sensor.vessel", "18.0")

	h.cycle()
	if h.store.get("p1").OutletActive {
		t.Error("flag updated despite failed actuation")
	}
	if len(h.recorder.eventList()) != 0 {
		t.Error("event recorded despite failed actuation")
	}

	h.hub.switchErr = nil
	h.cycle()

	if calls := h.hub.switchCalls(); len(calls) != 2 {
		t.Errorf("switch calls = %d, want the retry on the next cycle", len(calls))
	}
	if !h.store.get("p1").OutletActive || len(h.recorder.eventList()) != 1 {
		t.Error("retry did not commit the new state")
	}
}

func TestRunCycle_PanicIsolated(t *testing.T) {
	h := newHarness(t,
		automaticProject("a", "s1", "o1", 20.0, false),
		automaticProject("b", "s2", "o1", 20.0, false),
	)
	h.devices.add(sensorDevice("s2", "sensor.other"))
	h.hub.panicOn["sensor.vessel"] = true
	h.hub.set("sensor.other", "19.0")

	report := h.cycle()

	if report.Failed != 1 {
		t.Errorf("Failed = %d, want 1", report.Failed)
	}
	if len(h.recorder.samplesFor("b", telemetry.KindTemperature)) != 1 {
		t.Error("sibling project not processed after a panic")
	}
	if len(h.logger.find("error", "project processing panicked")) != 1 {
		t.Error("panic not logged")
	}
}

func TestRunCycle_DirectOutlet(t *testing.T) {
	h := newHarness(t)
	h.devices.add(device.Device{ID: "o1", Name: "plug", Kind: device.KindOutlet, Address: strPtr("192.168.1.40")})
	h.hub.set("sensor.vessel", "18.0")

	h.cycle()

	calls := h.hub.switchCalls()
	if len(calls) != 1 || !calls[0].direct || calls[0].target != "192.168.1.40" {
		t.Errorf("switch calls = %+v, want a direct call", calls)
	}
}

func TestRunCycle_ConfigurationWarnedOnce(t *testing.T) {
	h := newHarness(t)
	h.devices.add(device.Device{ID: "o1", Name: "bare", Kind: device.KindOutlet})
	h.hub.set("sensor.vessel", "18.0")

	for i := 0; i < 3; i++ {
		h.cycle()
	}
	if warns := h.logger.find("warn", "project misconfigured, skipping"); len(warns) != 1 {
		t.Fatalf("misconfiguration warnings = %d, want 1", len(warns))
	}
	if len(h.recorder.samplesFor("p1", telemetry.KindTemperature)) != 3 {
		t.Error("outlet misconfiguration should not stop sampling")
	}

	h.devices.add(hubOutlet("o1", "switch.heat"))
	h.cycle()
	h.devices.remove("o1")
	h.cycle()

	if warns := h.logger.find("warn", "project misconfigured, skipping"); len(warns) != 2 {
		t.Errorf("misconfiguration warnings = %d, want a fresh warning after recovery", len(warns))
	}
}

func TestRunCycle_SensorMisconfigured(t *testing.T) {
	tests := []struct {
		name string
		dev  *device.Device
	}{
		{"missing device", nil},
		{"outlet used as sensor", &device.Device{ID: "s1", Kind: device.KindOutlet, HubEntityID: strPtr("switch.x")}},
		{"sensor without entity", &device.Device{ID: "s1", Kind: device.KindSensor, Address: strPtr("10.0.0.2")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.devices.remove("s1")
			if tt.dev != nil {
				h.devices.add(*tt.dev)
			}

			report := h.cycle()

			if report.Failed != 1 {
				t.Errorf("Failed = %d, want 1", report.Failed)
			}
			if h.hub.reads != 0 {
				t.Errorf("hub reads = %d, want none", h.hub.reads)
			}
		})
	}
}

func TestRunCycle_ListFailure(t *testing.T) {
	h := newHarness(t)
	h.store.listErr = errInjected

	report := h.cycle()
	if report.Projects != 0 {
		t.Errorf("Projects = %d, want 0", report.Projects)
	}

	h.store.listErr = nil
	h.hub.set("sensor.vessel", "20.0")
	if report := h.cycle(); report.Projects != 1 {
		t.Errorf("next cycle Projects = %d, want 1", report.Projects)
	}
}

func TestRunCycle_Humidity(t *testing.T) {
	h := newHarness(t)
	sensor := sensorDevice("s1", "sensor.vessel")
	sensor.HumidityEntityID = strPtr("sensor.vessel_humidity")
	h.devices.add(sensor)
	h.hub.set("sensor.vessel", "20.0")
	h.hub.set("sensor.vessel_humidity", "61.5")

	h.cycle()

	hum := h.recorder.samplesFor("p1", telemetry.KindHumidity)
	if len(hum) != 1 || hum[0].Value != 61.5 {
		t.Errorf("humidity samples = %+v", hum)
	}

	h.hub.set("sensor.vessel_humidity", "n/a")
	if report := h.cycle(); report.Failed != 0 {
		t.Errorf("humidity failure should not fail the project, report = %+v", report)
	}
}

func TestRunCycle_PublishFailureIgnored(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("mqtt: client not connected")
	h.hub.set("sensor.vessel", "18.0")

	report := h.cycle()

	if report.Failed != 0 || report.Actuations != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := testutil.ToFloat64(h.metrics.failures.WithLabelValues(StagePublish)); got != 2 {
		t.Errorf("failures{publish} = %v, want 2", got)
	}
}

func TestRunCycle_WithoutOptionalDeps(t *testing.T) {
	store := newFakeStore(automaticProject("p1", "s1", "o1", 20.0, false))
	devices := newFakeDevices(sensorDevice("s1", "sensor.vessel"), hubOutlet("o1", "switch.heat"))
	hub := newFakeHub()
	hub.set("sensor.vessel", "18.0")

	l, err := NewLoop(Deps{Projects: store, Devices: devices, Hub: hub})
	if err != nil {
		t.Fatalf("NewLoop() error = %v", err)
	}
	report := l.RunCycle(context.Background())

	if report.Actuations != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunCycle_MetricsCycleCount(t *testing.T) {
	h := newHarness(t)
	h.hub.set("sensor.vessel", "20.0")
	h.cycle()
	h.cycle()

	if got := testutil.ToFloat64(h.metrics.cycles); got != 2 {
		t.Errorf("cycles_total = %v, want 2", got)
	}
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second registration on the same registry should fail")
	}
}
