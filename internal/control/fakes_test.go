package control

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/fermentwatch/internal/device"
	"github.com/nerrad567/fermentwatch/internal/project"
	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory ProjectStore.
type fakeStore struct {
	mu        sync.Mutex
	projects  map[string]*project.Project
	listCalls int

	listErr       error
	updateTempErr error
	updateFlagErr error
	flagUpdates   []bool
}

func newFakeStore(projects ...project.Project) *fakeStore {
	s := &fakeStore{projects: make(map[string]*project.Project)}
	for i := range projects {
		p := projects[i]
		s.projects[p.ID] = &p
	}
	return s
}

func (s *fakeStore) List(context.Context) ([]project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	cpy := *p
	return &cpy, nil
}

func (s *fakeStore) UpdateCurrentTemperature(_ context.Context, id string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateTempErr != nil {
		return s.updateTempErr
	}
	s.projects[id].CurrentTemperature = &value
	return nil
}

func (s *fakeStore) UpdateOutletActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateFlagErr != nil {
		return s.updateFlagErr
	}
	s.projects[id].OutletActive = active
	s.flagUpdates = append(s.flagUpdates, active)
	return nil
}

func (s *fakeStore) get(id string) project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.projects[id]
}

func (s *fakeStore) mutate(id string, fn func(*project.Project)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.projects[id])
}

func (s *fakeStore) lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// fakeDevices is an in-memory DeviceResolver.
type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newFakeDevices(devs ...device.Device) *fakeDevices {
	f := &fakeDevices{devices: make(map[string]*device.Device)}
	for i := range devs {
		f.add(devs[i])
	}
	return f
}

func (f *fakeDevices) add(d device.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[d.ID] = &d
}

func (f *fakeDevices) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, id)
}

func (f *fakeDevices) GetDevice(_ context.Context, id string) (*device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.Clone(), nil
}

type switchCall struct {
	target string
	on     bool
	direct bool
}

// fakeHub serves entity states and records switch commands.
type fakeHub struct {
	mu        sync.Mutex
	states    map[string]string
	readErr   map[string]error
	panicOn   map[string]bool
	block     map[string]chan struct{}
	started   chan string
	switchErr error
	switches  []switchCall
	reads     int

	active    int
	maxActive int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		states:  make(map[string]string),
		readErr: make(map[string]error),
		panicOn: make(map[string]bool),
		block:   make(map[string]chan struct{}),
	}
}

func (h *fakeHub) set(entityID, state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states[entityID] = state
	delete(h.readErr, entityID)
}

func (h *fakeHub) fail(entityID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readErr[entityID] = err
}

func (h *fakeHub) ReadEntityState(ctx context.Context, entityID string) (string, error) {
	h.mu.Lock()
	h.reads++
	h.active++
	if h.active > h.maxActive {
		h.maxActive = h.active
	}
	block := h.block[entityID]
	started := h.started
	panics := h.panicOn[entityID]
	state, ok := h.states[entityID]
	err := h.readErr[entityID]
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.active--
		h.mu.Unlock()
	}()

	if started != nil {
		started <- entityID
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", fmt.Errorf("hub unavailable: %w", ctx.Err())
		}
	}
	if panics {
		panic("hub client bug")
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("hub unavailable: entity not found")
	}
	return state, nil
}

func (h *fakeHub) InvokeSwitch(_ context.Context, entityID string, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.switches = append(h.switches, switchCall{target: entityID, on: on})
	return h.switchErr
}

func (h *fakeHub) InvokeDirectSwitch(_ context.Context, address string, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.switches = append(h.switches, switchCall{target: address, on: on, direct: true})
	return h.switchErr
}

func (h *fakeHub) switchCalls() []switchCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]switchCall(nil), h.switches...)
}

func (h *fakeHub) maxConcurrentReads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxActive
}

// fakeRecorder keeps samples and events in memory.
type fakeRecorder struct {
	mu        sync.Mutex
	samples   []telemetry.Sample
	events    []telemetry.ActuationEvent
	sampleErr error
	eventErr  error
}

func (r *fakeRecorder) WriteSample(_ context.Context, projectID string, kind telemetry.SampleKind, value float64, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sampleErr != nil {
		return r.sampleErr
	}
	r.samples = append(r.samples, telemetry.Sample{Timestamp: ts, ProjectID: projectID, Kind: kind, Value: value})
	return nil
}

func (r *fakeRecorder) WriteActuationEvent(_ context.Context, ev telemetry.ActuationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eventErr != nil {
		return r.eventErr
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRecorder) samplesFor(projectID string, kind telemetry.SampleKind) []telemetry.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Sample
	for _, s := range r.samples {
		if s.ProjectID == projectID && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (r *fakeRecorder) eventList() []telemetry.ActuationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.ActuationEvent(nil), r.events...)
}

// fakePublisher records published messages.
type fakePublisher struct {
	mu           sync.Mutex
	temperatures []float64
	events       []telemetry.ActuationEvent
	err          error
}

func (p *fakePublisher) PublishTemperature(_ string, value float64, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.temperatures = append(p.temperatures, value)
	return p.err
}

func (p *fakePublisher) PublishActuation(ev telemetry.ActuationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// find returns entries at level whose message equals msg.
func (l *recordingLogger) find(level, msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func (e logEntry) attr(key string) any {
	for i := 0; i+1 < len(e.args); i += 2 {
		if k, ok := e.args[i].(string); ok && k == key {
			return e.args[i+1]
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func sensorDevice(id, entity string) device.Device {
	return device.Device{ID: id, Name: id, Kind: device.KindSensor, HubEntityID: strPtr(entity)}
}

func hubOutlet(id, entity string) device.Device {
	return device.Device{ID: id, Name: id, Kind: device.KindOutlet, HubEntityID: strPtr(entity)}
}

func automaticProject(id, sensorRef, outletRef string, target float64, outletActive bool) project.Project {
	return project.Project{
		ID:                id,
		Name:              id,
		SensorRef:         sensorRef,
		OutletRef:         outletRef,
		TargetTemperature: target,
		OutletActive:      outletActive,
		ControlMode:       project.ModeAutomatic,
	}
}
