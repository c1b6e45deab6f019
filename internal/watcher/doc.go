// Package watcher detects external edits to the volume file and triggers
// reloads.
//
// Watcher puts an fsnotify watch on the file's parent directory, so editors
// that save by writing a temp file and renaming it over the original are
// seen as a Create of the watched name. After the first event of a burst it
// sleeps for a short settle delay, drains whatever else queued up, and calls
// the trigger once if any event named the file. An event-queue overflow is
// treated as relevant. Removing the watched directory ends the loop.
//
// Debouncer merges triggers that arrive within a fixed window into one call
// made when the window closes, and serializes the calls it makes.
package watcher
