// Package ws implements the WebSocket feed that keeps volume editors in sync.
//
// Hub manages a set of connected clients and pushes the current volume table
// to all of them whenever it changes, plus on a configurable interval so a
// client that missed an update converges.
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast loop. It blocks until ctx is cancelled,
// then closes all active connections.
// Hub.Notify() schedules a broadcast without blocking; wire it to
// settings.Manager.OnChange.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// table immediately on connect, then streams updates.
//
// Message format sent to clients:
//
//	{
//	  "event": "volumes",
//	  "data":  { "volumes": {"<id>": <volume>, ...}, "generated_at": "<RFC3339>" }
//	}
//
// The upgrader accepts all origins; the daemon listens locally. The endpoint
// is mounted at /ws/volumes by the daemon.
package ws
