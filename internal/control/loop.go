package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/fermentwatch/internal/device"
	"github.com/nerrad567/fermentwatch/internal/project"
	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// DefaultInterval is the time between cycle starts when none is configured.
const DefaultInterval = 30 * time.Second

// Processing stages used in logs and failure metrics.
const (
	StageResolve = "resolve"
	StageRead    = "read"
	StageRecord  = "record"
	StageDecide  = "decide"
	StageActuate = "actuate"
	StagePersist = "persist"
	StagePublish = "publish"
	StagePanic   = "panic"
)

// ProjectStore is the project persistence the loop needs.
type ProjectStore interface {
	List(ctx context.Context) ([]project.Project, error)
	GetByID(ctx context.Context, id string) (*project.Project, error)
	UpdateCurrentTemperature(ctx context.Context, id string, value float64) error
	UpdateOutletActive(ctx context.Context, id string, active bool) error
}

// DeviceResolver looks up sensor and outlet devices by ID.
type DeviceResolver interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// HubClient reads sensors and drives outlets.
type HubClient interface {
	Switcher
	ReadEntityState(ctx context.Context, entityID string) (string, error)
}

// Recorder is the time-series sink. Failures are returned, never dropped.
type Recorder interface {
	WriteSample(ctx context.Context, projectID string, kind telemetry.SampleKind, value float64, ts time.Time) error
	WriteActuationEvent(ctx context.Context, ev telemetry.ActuationEvent) error
}

// Publisher fans out live readings and outlet changes.
type Publisher interface {
	PublishTemperature(projectID string, value float64, ts time.Time) error
	PublishActuation(ev telemetry.ActuationEvent) error
}

// Logger defines the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the loop's collaborators. Projects, Devices and Hub are
// required; Recorder, Publisher, Metrics and Logger may be nil.
type Deps struct {
	Projects  ProjectStore
	Devices   DeviceResolver
	Hub       HubClient
	Recorder  Recorder
	Publisher Publisher
	Metrics   *Metrics
	Logger    Logger

	// Interval between cycle starts. Zero means DefaultInterval.
	Interval time.Duration

	// CallTimeout bounds each hub call and time-series write. Zero means
	// Interval/3. The hub client's own timeout still applies.
	CallTimeout time.Duration

	// Clock stamps samples and events. Nil means time.Now.
	Clock func() time.Time
}

// CycleReport summarises one cycle.
type CycleReport struct {
	Started  time.Time
	Duration time.Duration

	// Projects is how many projects were listed.
	Projects int

	// Failed is how many projects hit at least one failing stage.
	Failed int

	// Actuations is how many outlets changed state.
	Actuations int
}

// Loop is the fermentation control loop. It owns its scheduler: Start runs
// one cycle immediately and then one per interval on a single goroutine,
// so cycles never overlap.
//
// All methods are safe for concurrent use.
type Loop struct {
	projects  ProjectStore
	devices   DeviceResolver
	hub       HubClient
	recorder  Recorder
	publisher Publisher
	metrics   *Metrics
	logger    Logger

	interval    time.Duration
	callTimeout time.Duration
	now         func() time.Time

	// cycleMu serialises RunCycle between the scheduler and direct callers.
	cycleMu sync.Mutex

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce *sync.Once

	// warned holds (project, device role) configuration problems already logged.
	warned   map[warnKey]struct{}
	warnedMu sync.Mutex
}

type warnKey struct {
	projectID string
	role      string
}

// Device roles within a project.
const (
	roleSensor = "sensor"
	roleOutlet = "outlet"
)

// NewLoop creates a stopped loop.
func NewLoop(deps Deps) (*Loop, error) {
	if deps.Projects == nil || deps.Devices == nil || deps.Hub == nil {
		return nil, fmt.Errorf("%w: projects, devices and hub are required", ErrInvalidDeps)
	}
	if deps.Interval < 0 || deps.CallTimeout < 0 {
		return nil, fmt.Errorf("%w: negative interval or timeout", ErrInvalidDeps)
	}

	l := &Loop{
		projects:    deps.Projects,
		devices:     deps.Devices,
		hub:         deps.Hub,
		recorder:    deps.Recorder,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		interval:    deps.Interval,
		callTimeout: deps.CallTimeout,
		now:         deps.Clock,
		warned:      make(map[warnKey]struct{}),
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	if l.interval == 0 {
		l.interval = DefaultInterval
	}
	if l.callTimeout == 0 {
		l.callTimeout = l.interval / 3
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// Start runs the first cycle immediately and schedules the rest.
// Calling Start on a running loop does nothing. Cancelling ctx stops
// scheduling and cancels in-flight calls.
func (l *Loop) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("starting control loop: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	l.running = true
	l.done = make(chan struct{})
	l.stopOnce = &sync.Once{}

	l.wg.Add(1)
	go l.schedule(ctx, l.done)

	l.logger.Info("control loop started", "interval", l.interval.String())
	return nil
}

// Stop prevents further cycles and waits for an in-flight cycle to finish.
// It is safe to call repeatedly and before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	once, done := l.stopOnce, l.done
	l.mu.Unlock()

	once.Do(func() { close(done) })
	l.wg.Wait()

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	l.logger.Info("control loop stopped")
}

// Running reports whether the scheduler is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) schedule(ctx context.Context, done <-chan struct{}) {
	defer l.wg.Done()
	defer func() {
		// Parent cancellation ends the scheduler without Stop.
		l.mu.Lock()
		if l.done == done {
			l.running = false
		}
		l.mu.Unlock()
	}()

	l.RunCycle(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop that raced the tick wins.
			select {
			case <-done:
				return
			default:
			}
			l.RunCycle(ctx)
		}
	}
}

// RunCycle processes every project once and waits for all of them.
// Projects run concurrently; a failure or panic in one never affects
// another. A failed project listing ends the cycle early.
func (l *Loop) RunCycle(ctx context.Context) (report CycleReport) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	report.Started = l.now()
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		l.metrics.observeCycle(report.Duration)
	}()

	projects, err := l.projects.List(ctx)
	if err != nil {
		l.logger.Error("listing projects failed", "error", err)
		return report
	}
	report.Projects = len(projects)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]projectResult, 0, len(projects))
	)
	for _, p := range projects {
		wg.Add(1)
		go func(p project.Project) {
			defer wg.Done()
			res := l.safeProcess(ctx, p)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	for _, res := range results {
		if res.failed {
			report.Failed++
		}
		if res.actuated {
			report.Actuations++
		}
	}

	l.logger.Debug("control cycle complete",
		"projects", report.Projects,
		"failed", report.Failed,
		"actuations", report.Actuations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report
}

type projectResult struct {
	failed   bool
	actuated bool
}

func (l *Loop) safeProcess(ctx context.Context, p project.Project) (res projectResult) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("project processing panicked",
				"project_id", p.ID,
				"stage", StagePanic,
				"panic", r,
			)
			l.metrics.failure(StagePanic)
			res.failed = true
		}
	}()
	return l.processProject(ctx, p)
}

// processProject runs the causally ordered steps for one project:
// read sensor, record sample, store temperature, then (automatic mode
// only) decide, actuate, store flag and record the event.
func (l *Loop) processProject(ctx context.Context, p project.Project) projectResult {
	var res projectResult
	fail := func(stage string, err error, args ...any) {
		res.failed = true
		l.stageFailed(p.ID, stage, err, args...)
	}

	sensor, err := l.resolveSensor(ctx, p)
	if err != nil {
		res.failed = true
		l.resolveFailed(p.ID, roleSensor, p.SensorRef, err)
		return res
	}
	l.resolved(p.ID, roleSensor)

	value, err := l.readValue(ctx, *sensor.HubEntityID)
	if err != nil {
		fail(StageRead, err, "entity_id", *sensor.HubEntityID)
		return res
	}
	now := l.now()
	l.metrics.observeTemperature(p.ID, value)

	if err := l.writeSample(ctx, p.ID, telemetry.KindTemperature, value, now); err != nil {
		fail(StageRecord, err, "kind", telemetry.KindTemperature)
	}
	if err := l.projects.UpdateCurrentTemperature(ctx, p.ID, value); err != nil {
		fail(StagePersist, err, "field", "current_temperature")
	}

	if sensor.HumidityEntityID != nil && *sensor.HumidityEntityID != "" {
		l.recordHumidity(ctx, p.ID, *sensor.HumidityEntityID, now)
	}

	if l.publisher != nil {
		if err := l.publisher.PublishTemperature(p.ID, value, now); err != nil {
			l.stageFailed(p.ID, StagePublish, err)
		}
	}

	if p.ControlMode != project.ModeAutomatic {
		return res
	}

	act, err := l.resolveOutlet(ctx, p.OutletRef)
	if err != nil {
		res.failed = true
		l.resolveFailed(p.ID, roleOutlet, p.OutletRef, err)
		return res
	}
	l.resolved(p.ID, roleOutlet)

	desired := Decide(value, p.TargetTemperature, p.OutletActive)
	if !ShouldActuate(desired, p.OutletActive) {
		return res
	}
	l.logger.Debug("outlet change required",
		"project_id", p.ID,
		"stage", StageDecide,
		"current", value,
		"target", p.TargetTemperature,
		"desired", telemetry.OutletStateName(desired),
	)

	if err := l.switchOutlet(ctx, act, desired); err != nil {
		fail(StageActuate, err, "target", act.Target(), "desired", telemetry.OutletStateName(desired))
		return res
	}
	res.actuated = true

	ev, persistErr := l.commitActuation(ctx, p.ID, desired, telemetry.SourceAutomatic, &value, now)
	if persistErr != nil {
		res.failed = true
	}
	l.logger.Info("outlet switched",
		"project_id", p.ID,
		"state", telemetry.OutletStateName(ev.State),
		"source", ev.Source,
		"temperature", value,
		"target", p.TargetTemperature,
	)
	return res
}

// commitActuation stores the new outlet flag, records the event and
// publishes it. The event is recorded even when the flag cannot be stored
// because the outlet has already switched.
func (l *Loop) commitActuation(ctx context.Context, projectID string, on bool, source telemetry.Source, temp *float64, ts time.Time) (telemetry.ActuationEvent, error) {
	var persistErr error
	if err := l.projects.UpdateOutletActive(ctx, projectID, on); err != nil {
		persistErr = fmt.Errorf("%w: %w", ErrPersistence, err)
		l.stageFailed(projectID, StagePersist, err, "field", "outlet_active")
	}

	ev := telemetry.ActuationEvent{
		Timestamp:           ts,
		ProjectID:           projectID,
		State:               on,
		Source:              source,
		TemperatureAtChange: temp,
	}
	l.metrics.actuation(on, source)

	if l.recorder != nil {
		wctx, cancel := l.bounded(ctx)
		err := l.recorder.WriteActuationEvent(wctx, ev)
		cancel()
		if err != nil {
			l.stageFailed(projectID, StageRecord, err, "kind", "actuation")
		}
	}
	if l.publisher != nil {
		if err := l.publisher.PublishActuation(ev); err != nil {
			l.stageFailed(projectID, StagePublish, err)
		}
	}
	return ev, persistErr
}

func (l *Loop) recordHumidity(ctx context.Context, projectID, entityID string, ts time.Time) {
	value, err := l.readValue(ctx, entityID)
	if err != nil {
		l.stageFailed(projectID, StageRead, err, "entity_id", entityID)
		return
	}
	if err := l.writeSample(ctx, projectID, telemetry.KindHumidity, value, ts); err != nil {
		l.stageFailed(projectID, StageRecord, err, "kind", telemetry.KindHumidity)
	}
}

func (l *Loop) writeSample(ctx context.Context, projectID string, kind telemetry.SampleKind, value float64, ts time.Time) error {
	if l.recorder == nil {
		l.logger.Debug("no recorder configured, sample dropped", "project_id", projectID, "kind", kind)
		return nil
	}
	wctx, cancel := l.bounded(ctx)
	defer cancel()
	return l.recorder.WriteSample(wctx, projectID, kind, value, ts)
}

func (l *Loop) readValue(ctx context.Context, entityID string) (float64, error) {
	cctx, cancel := l.bounded(ctx)
	defer cancel()
	raw, err := l.hub.ReadEntityState(cctx, entityID)
	if err != nil {
		return 0, err
	}
	return parseReading(raw)
}

func (l *Loop) switchOutlet(ctx context.Context, act Actuator, on bool) error {
	cctx, cancel := l.bounded(ctx)
	defer cancel()
	return act.Switch(cctx, on)
}

// bounded derives the per-call deadline applied to every network call.
func (l *Loop) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.callTimeout)
}

// parseReading converts a hub state to a finite number.
func parseReading(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedSensorValue, raw)
	}
	return v, nil
}

func (l *Loop) resolveSensor(ctx context.Context, p project.Project) (*device.Device, error) {
	dev, err := l.lookupDevice(ctx, p.SensorRef)
	if err != nil {
		return nil, err
	}
	if dev.Kind != device.KindSensor {
		return nil, fmt.Errorf("%w: device %s is a %s, not a sensor", ErrConfiguration, dev.ID, dev.Kind)
	}
	if !dev.HasHubEntity() {
		return nil, fmt.Errorf("%w: sensor %s has no hub entity", ErrConfiguration, dev.ID)
	}
	return dev, nil
}

func (l *Loop) resolveOutlet(ctx context.Context, outletRef string) (Actuator, error) {
	dev, err := l.lookupDevice(ctx, outletRef)
	if err != nil {
		return nil, err
	}
	return ResolveActuator(dev, l.hub)
}

func (l *Loop) lookupDevice(ctx context.Context, id string) (*device.Device, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty device reference", ErrConfiguration)
	}
	dev, err := l.devices.GetDevice(ctx, id)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return nil, fmt.Errorf("%w: device %s: %w", ErrConfiguration, id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up device %s: %w", id, err)
	}
	return dev, nil
}

// stageFailed logs a per-project failure and counts it.
func (l *Loop) stageFailed(projectID, stage string, err error, args ...any) {
	l.metrics.failure(stage)
	attrs := append([]any{"project_id", projectID, "stage", stage, "error", err}, args...)
	l.logger.Warn("project step failed", attrs...)
}

// resolveFailed reports a device that could not be resolved. Configuration
// problems are logged once per project and role until they clear; lookup
// failures are logged every time.
func (l *Loop) resolveFailed(projectID, role, ref string, err error) {
	if !errors.Is(err, ErrConfiguration) {
		l.stageFailed(projectID, StageResolve, err, "role", role, "device_id", ref)
		return
	}
	l.metrics.failure(StageResolve)

	key := warnKey{projectID: projectID, role: role}
	l.warnedMu.Lock()
	_, seen := l.warned[key]
	l.warned[key] = struct{}{}
	l.warnedMu.Unlock()

	attrs := []any{"project_id", projectID, "stage", StageResolve, "role", role, "device_id", ref, "error", err}
	if seen {
		l.logger.Debug("project still misconfigured", attrs...)
		return
	}
	l.logger.Warn("project misconfigured, skipping", attrs...)
}

func (l *Loop) resolved(projectID, role string) {
	l.warnedMu.Lock()
	delete(l.warned, warnKey{projectID: projectID, role: role})
	l.warnedMu.Unlock()
}
