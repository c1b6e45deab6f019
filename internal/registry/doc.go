// Package registry maps runtime resource handles to stable identifiers.
//
// A load-interception hook calls Register once per loaded sound; playback
// call sites call Lookup right before applying volume. Entries live for
// the process lifetime. The map is a sync.Map, which suits this
// write-once, read-many pattern: readers never wait on writers.
package registry
