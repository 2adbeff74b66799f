// Package logging provides structured logging for FermentWatch.
//
// It wraps log/slog so every entry carries the service name and build
// version. Configuration comes from the logging section:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Control loop entries always include project_id and stage so a failing
// vessel can be traced without reading the others.
//
// Never log hub tokens or broker passwords.
package logging
