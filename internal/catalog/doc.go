// Package catalog enumerates the sound identifiers known to the content
// on disk. It is the default known-identifiers provider for store
// reconciliation and the identifier list shown to editors.
//
// Scan walks an assets root laid out as:
//
//	<root>/<namespace>/sounds/**/*.ogg|*.wav   → "<namespace>:sounds/…"
//	<root>/<namespace>/music/**/*.json         → every "fileName" found in the definition
//
// The result is computed once, at Scan time, and never changes.
package catalog
