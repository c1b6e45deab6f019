// Package settings is the composition root for volume overrides.
//
// Manager owns the published *volume.Table. Readers load it through an
// atomic pointer and never block; writers (single-key edits and full
// reloads) take a mutex, build a new table off to the side and publish it
// with one pointer swap. Start performs the initial load and starts the
// file watcher; Close stops it.
//
//	Uninitialized → Loading → Ready | Degraded → Reloading → Ready | Degraded
//
// Degraded means no file watcher is running: edits made outside the
// process are only seen after Reload or a restart.
//
// Resolver is the playback-facing view: it maps a registry.Handle to an
// identifier and scales a requested volume by that identifier's override,
// falling back to the requested volume unchanged.
package settings
