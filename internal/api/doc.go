// Package api exposes the chat service over HTTP.
//
// Endpoints:
//   - POST /api/chat        - Synchronous chat (JSON request/response)
//   - POST /api/chat/stream - Streaming chat (SSE - Server-Sent Events)
//   - GET  /api/tools       - Registered tool descriptors
//   - GET  /health          - Liveness probe
//   - GET  /ready           - Readiness probe
//
// Both chat endpoints accept the same body, the full conversation
// history:
//
//	{"messages": [{"role": "user", "content": "weather in Taipei?"}]}
//
// The streaming endpoint replays the orchestrator's event stream as SSE
// events (text-delta, tool-call-requested, tool-result-available,
// turn-finished, error); the synchronous endpoint drains the same
// stream server-side and returns the final result as one JSON object.
package api
