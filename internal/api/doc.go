// Package api implements the local HTTP API and WebSocket stream of the
// LightwaveRF bridge.
//
// This package provides:
//   - REST endpoints for pairing management, heard remotes and diagnostics
//   - WebSocket hub relaying decoded state and discovery events
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// MQTT is the primary interface to Gray Logic Core. The HTTP API is a
// commissioning surface on the bridge host: an installer pairs remotes and
// watches presses arrive without going through the bus.
//
//	radio -> bridge -> MQTT
//	            |
//	            +-> Hub -> WebSocket clients
//	            +<- REST handlers
//
// # Security
//
// When api.auth.jwt_secret is set, every route except /health requires an
// HS256 bearer token signed with that secret. WebSocket connections use
// single-use tickets so tokens never appear in URLs.
package api
