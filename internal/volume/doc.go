// Package volume holds the pure data types shared by every other package:
//
//   - Identifier: stable "namespace:path" key naming a sound resource
//   - Table: identifier → volume map with clamping and a 1.0 default
//
// Nothing here performs I/O or locking. A Table handed to readers after
// publication must be treated as immutable; writers Clone before mutating.
package volume
