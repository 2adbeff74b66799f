// Package api implements the FermentWatch HTTP API.
//
// It exposes project and device management, manual outlet commands, the
// recorded sample and actuation history, a health endpoint and the
// Prometheus scrape endpoint. Routing uses chi with request ID, logging,
// panic recovery and body size middleware.
//
// The server follows the same lifecycle as the other components:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// History endpoints answer 503 when no time-series store is configured.
// Outlet commands answer 409 while the project is under automatic control.
package api
