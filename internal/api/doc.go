// Package api implements the HTTP REST API used by the volume editor.
//
// New(resolver, manager, registry, known) returns an http.Handler that serves:
//
//	GET  /api/v1/health          lifecycle state, file path, entry and handle counts
//	GET  /api/v1/volumes?q=      known ids ∪ overridden ids, sorted, optional filter
//	GET  /api/v1/volumes/{id}    effective volume for one identifier
//	PUT  /api/v1/volumes/{id}    body {"volume":x}; clamped, persisted on change
//	POST /api/v1/reload          re-read the volume file now
//	GET  /api/v1/handles         registered handle → identifier mappings
//	POST /api/v1/handles         body {"handle":n,"id":s} or {"handle":n,"path":s}
//	GET  /api/v1/resolve         ?handle=n&volume=x, multiplier diagnostics
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for methods a route does not accept
//   - Return {"error": "..."} bodies on failure
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
