// Package hub is the HTTP client for the home automation hub and for smart
// outlets that can be switched directly on the LAN.
//
// Hub endpoints used:
//
//	GET  /api/states/{entity_id}            -> {"state": "19.85", ...}
//	POST /api/services/switch/turn_on       {"entity_id": "switch.heat_mat"}
//	POST /api/services/switch/turn_off      {"entity_id": "switch.heat_mat"}
//
// Direct outlets:
//
//	GET http://{address}/rpc/Switch.Set?id=0&on=true
//
// Hub failures wrap ErrHubUnavailable; direct failures wrap
// ErrDeviceUnavailable. Nothing is retried inside a call.
package hub
