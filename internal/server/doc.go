// Package server provides the HTTP status API for serve mode.
//
// The MCP facade owns stdin/stdout, so this server is the side channel
// for watching and steering runs:
//
//   - GET /health: liveness probe
//   - GET /v1/runs: in-flight runs (built from bus events) plus recent
//     history
//   - GET /v1/permissions: the persistent permission store;
//     DELETE removes one fingerprint or clears the store
//   - GET /v1/asks: questions parked in the prompt hub;
//     POST /v1/asks/{id} answers one
//   - GET /v1/events: the event bus as SSE
//   - GET /metrics: Prometheus exposition
//
// The server holds no run state of its own. Active runs are tracked by
// subscribing to the event bus, answers flow back through the prompt
// hub, and the permission store is shared with the broker. Everything
// logs through zerolog on stderr; stdout stays reserved for the MCP
// transport.
package server
