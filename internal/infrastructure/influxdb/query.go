package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// QuerySamples returns a project's samples of one kind in [start, end),
// oldest first.
func (c *Client) QuerySamples(ctx context.Context, projectID string, kind telemetry.SampleKind, start, end time.Time) ([]telemetry.Sample, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown sample kind %q", ErrQueryFailed, kind)
	}
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	var out []telemetry.Sample
	err := c.query(ctx, sampleFlux(c.cfg.Bucket, projectID, kind, start, end), func(rec *query.FluxRecord) error {
		s, err := sampleFromRecord(rec)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// QueryActuationEvents returns a project's outlet changes in [start, end),
// oldest first.
func (c *Client) QueryActuationEvents(ctx context.Context, projectID string, start, end time.Time) ([]telemetry.ActuationEvent, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	var out []telemetry.ActuationEvent
	err := c.query(ctx, actuationFlux(c.cfg.Bucket, projectID, start, end), func(rec *query.FluxRecord) error {
		ev, err := actuationFromRecord(rec)
		if err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	return out, err
}

func (c *Client) query(ctx context.Context, flux string, each func(*query.FluxRecord) error) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	res, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer res.Close() //nolint:errcheck // read-only result

	for res.Next() {
		if err := each(res.Record()); err != nil {
			return fmt.Errorf("%w: %w", ErrQueryFailed, err)
		}
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return nil
}

func sampleFlux(bucket, projectID string, kind telemetry.SampleKind, start, end time.Time) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q and r.%s == %q)
  |> filter(fn: (r) => r._field == %q)
  |> keep(columns: ["_time", "_value", "_measurement", "%s"])
  |> sort(columns: ["_time"])
`, bucket, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
		string(kind), tagProjectID, projectID, fieldValue, tagProjectID)
}

func actuationFlux(bucket, projectID string, start, end time.Time) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q and r.%s == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> keep(columns: ["_time", "%s", "%s", "%s", "%s"])
  |> sort(columns: ["_time"])
`, bucket, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano),
		measurementOutletState, tagProjectID, projectID,
		tagProjectID, tagSource, fieldState, fieldTemperature)
}

func sampleFromRecord(rec *query.FluxRecord) (telemetry.Sample, error) {
	v, ok := toFloat(rec.Value())
	if !ok {
		return telemetry.Sample{}, fmt.Errorf("sample value %v (%T) is not numeric", rec.Value(), rec.Value())
	}
	projectID, _ := rec.ValueByKey(tagProjectID).(string) //nolint:errcheck // absent tag leaves it empty
	return telemetry.Sample{
		Timestamp: rec.Time(),
		ProjectID: projectID,
		Kind:      telemetry.SampleKind(rec.Measurement()),
		Value:     v,
	}, nil
}

func actuationFromRecord(rec *query.FluxRecord) (telemetry.ActuationEvent, error) {
	state, ok := rec.ValueByKey(fieldState).(bool)
	if !ok {
		return telemetry.ActuationEvent{}, fmt.Errorf("state %v is not boolean", rec.ValueByKey(fieldState))
	}
	projectID, _ := rec.ValueByKey(tagProjectID).(string) //nolint:errcheck // absent tag leaves it empty
	source, _ := rec.ValueByKey(tagSource).(string)       //nolint:errcheck // absent tag leaves it empty

	ev := telemetry.ActuationEvent{
		Timestamp: rec.Time(),
		ProjectID: projectID,
		State:     state,
		Source:    telemetry.Source(source),
	}
	if t, ok := toFloat(rec.ValueByKey(fieldTemperature)); ok {
		ev.TemperatureAtChange = &t
	}
	return ev, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
