// Package audit journals operator changes: projects and devices created or
// removed, control mode and target edits, and manual outlet commands. Each
// entry names the change, what it touched and whether it came from the
// HTTP API or MQTT.
//
// Outlet changes made by the control loop are not journalled here; they are
// actuation events in the time-series store.
package audit
