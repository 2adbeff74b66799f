// Package influxdb records fermentation telemetry in InfluxDB v2 and reads
// it back by time range.
//
// Layout:
//
//	temperature|humidity|density  tags: project_id        fields: value
//	outlet_state                  tags: project_id, source fields: state, temperature
//
// Writes use the blocking write API; a failed write is returned to the
// caller and never retried.
package influxdb
