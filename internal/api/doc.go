// Package api serves the house over HTTP: the device report, the room
// directory, switch commands, a WebSocket hub for live events and the
// Prometheus scrape endpoint.
//
// # Routes
//
//	GET  /api/v1/health                   liveness and dependency checks
//	GET  /api/v1/report                   text report, one line per device
//	GET  /api/v1/rooms                    rooms with their devices
//	GET  /api/v1/rooms/{room}/devices     devices of one room
//	POST /api/v1/switches/{id}/command    {"command":"turn_on"}
//	GET  /api/v1/switches/{id}/commands   command history, newest first
//	GET  /api/v1/ws                       WebSocket event stream
//	GET  /metrics                         Prometheus exposition
//
// Routes whose dependency is missing from Deps are not mounted.
//
// # WebSocket
//
// Clients send {"type":"subscribe","payload":{"channels":["temperature.updated"]}}
// and then receive {"type":"event","event_type":...,"payload":...} for every
// Broadcast on a subscribed channel.
package api
