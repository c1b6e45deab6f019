// Package store owns the on-disk representation of the volume table.
//
// Load never fails: a missing directory, a missing file, an unreadable file
// or malformed JSON each fall back to an empty table, and malformed files
// are moved aside to "<name>.corrupted<ext>". After loading, the table is
// reconciled against the known identifiers (missing ids added at 1.0,
// out-of-range values clamped) and written back if anything changed.
//
// Save writes to a temporary sibling and renames it over the target, so a
// reader never sees a partially written file.
package store
