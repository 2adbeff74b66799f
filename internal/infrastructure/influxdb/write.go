package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// Measurement, tag and field names shared by writes and queries.
const (
	measurementOutletState = "outlet_state"

	tagProjectID = "project_id"
	tagSource    = "source"

	fieldValue       = "value"
	fieldState       = "state"
	fieldTemperature = "temperature"
)

// WriteSample records one sensor reading. The sample kind is the measurement.
func (c *Client) WriteSample(ctx context.Context, projectID string, kind telemetry.SampleKind, value float64, ts time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown sample kind %q", ErrWriteFailed, kind)
	}
	return c.writePoint(ctx, samplePoint(telemetry.Sample{
		Timestamp: ts,
		ProjectID: projectID,
		Kind:      kind,
		Value:     value,
	}))
}

// WriteActuationEvent records an outlet state change.
func (c *Client) WriteActuationEvent(ctx context.Context, ev telemetry.ActuationEvent) error {
	return c.writePoint(ctx, actuationPoint(ev))
}

func (c *Client) writePoint(ctx context.Context, p *write.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, p.Name(), err)
	}
	return nil
}

func samplePoint(s telemetry.Sample) *write.Point {
	return write.NewPoint(
		string(s.Kind),
		map[string]string{tagProjectID: s.ProjectID},
		map[string]interface{}{fieldValue: s.Value},
		s.Timestamp,
	)
}

func actuationPoint(ev telemetry.ActuationEvent) *write.Point {
	fields := map[string]interface{}{fieldState: ev.State}
	if ev.TemperatureAtChange != nil {
		fields[fieldTemperature] = *ev.TemperatureAtChange
	}
	return write.NewPoint(
		measurementOutletState,
		map[string]string{
			tagProjectID: ev.ProjectID,
			tagSource:    string(ev.Source),
		},
		fields,
		ev.Timestamp,
	)
}
