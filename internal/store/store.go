package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/volumectl/internal/volume"
)

// Default location of the persisted table, relative to the working directory.
const (
	DefaultDir      = "config"
	DefaultFileName = "sound_volumes.json"
)

// ErrSaveDisabled is returned by Save after the config directory could not
// be created during Load. Saving stays disabled for the life of the Store.
var ErrSaveDisabled = errors.New("store: saving disabled for this session")

// KnownIdentifiers supplies every identifier the surrounding content system
// currently knows about. It is consulted only during reconciliation.
type KnownIdentifiers interface {
	Identifiers() ([]volume.Identifier, error)
}

// KnownFunc adapts a function to KnownIdentifiers.
type KnownFunc func() ([]volume.Identifier, error)

// Identifiers calls f.
func (f KnownFunc) Identifiers() ([]volume.Identifier, error) { return f() }

// LoadReport describes what Load did. The table it accompanies is always
// usable; the report exists for logging, metrics and tests.
type LoadReport struct {
	// Created is set when no file existed and a canonical one was requested.
	Created bool
	// Recovered is set when the file was malformed and a default table was used.
	Recovered bool
	// BackupPath is where the malformed file was moved, empty if the move failed.
	BackupPath string
	// Reconciled is set when reconciliation added or clamped entries.
	Reconciled bool
	// Saved is set when the post-load save succeeded.
	Saved bool
	// SaveErr holds the post-load save error, if a save was attempted and failed.
	SaveErr error
	// Err holds the underlying read, parse or directory error, if any.
	Err error
}

// Option configures a Store.
type Option func(*Store)

// WithFileName overrides DefaultFileName.
func WithFileName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.name = name
		}
	}
}

// WithClock sets the time source used for load timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store loads and saves the volume table file. Save calls are serialized;
// Load may run concurrently with nothing else that writes the same file.
type Store struct {
	dir   string
	name  string
	known KnownIdentifiers
	now   func() time.Time

	mu           sync.Mutex // serializes writes to the file
	saveDisabled atomic.Bool
	lastLoad     atomic.Int64 // unix nanos of the last load that read or created the file

	// beforeRename runs after the temp file is written and closed.
	// Tests use it to simulate a crash mid-save.
	beforeRename func(tmpPath string) error
}

// New returns a Store for dir/DefaultFileName. known may be nil, in which
// case reconciliation only clamps.
func New(dir string, known KnownIdentifiers, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		name:  DefaultFileName,
		known: known,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the full path of the persisted file.
func (s *Store) Path() string { return filepath.Join(s.dir, s.name) }

// BackupPath returns where a malformed file is moved: "<base>.corrupted<ext>".
func (s *Store) BackupPath() string {
	ext := filepath.Ext(s.name)
	base := strings.TrimSuffix(s.name, ext)
	return filepath.Join(s.dir, base+".corrupted"+ext)
}

// LastLoad returns the time of the last load that produced a file-backed
// table, or the zero time.
func (s *Store) LastLoad() time.Time {
	n := s.lastLoad.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// SaveDisabled reports whether saving was disabled by a directory failure.
func (s *Store) SaveDisabled() bool { return s.saveDisabled.Load() }

// Load reads the table from disk, repairing and reconciling it as needed.
// It always returns a usable table.
func (s *Store) Load() (*volume.Table, LoadReport) {
	var report LoadReport
	path := s.Path()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.saveDisabled.Store(true)
		slog.Error("store: cannot create config directory, using in-memory defaults",
			"dir", s.dir, "err", err)
		report.Err = fmt.Errorf("store: create dir: %w", err)
		return volume.NewTable(), report
	}

	tbl, needsSave, readFailed, err := s.read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.Created = true
		tbl, needsSave = volume.NewTable(), true
	case err != nil && !readFailed:
		report.Recovered = true
		report.Err = err
		report.BackupPath = s.backup(path)
		tbl = volume.NewTable()
	case err != nil:
		report.Err = err
		slog.Error("store: read failed, using in-memory defaults", "path", path, "err", err)
		tbl = volume.NewTable()
	}

	report.Reconciled = s.reconcile(tbl)

	if readFailed {
		// Never overwrite a file we could not read.
		return tbl, report
	}
	s.lastLoad.Store(s.now().UnixNano())

	if needsSave || report.Reconciled || report.Recovered {
		if err := s.Save(tbl); err != nil {
			report.SaveErr = err
		} else {
			report.Saved = true
		}
	}
	return tbl, report
}

// read parses the file at path. readFailed distinguishes I/O failures from
// malformed content; both return a non-nil err.
func (s *Store) read(path string) (tbl *volume.Table, needsSave, readFailed bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, true, false, err
		}
		return nil, false, true, fmt.Errorf("store: read %q: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		// Left as is unless reconciliation adds entries: an editor may be
		// between truncating the file and writing it.
		slog.Warn("store: config file is empty, using defaults", "path", path)
		return volume.NewTable(), false, false, nil
	}

	var raw map[string]*float64
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, false, false, fmt.Errorf("store: parse %q: %w", path, err)
	}

	m := make(map[volume.Identifier]float32, len(raw))
	for k, v := range raw {
		if v == nil {
			slog.Warn("store: dropping entry with null volume", "path", path, "id", k)
			needsSave = true
			continue
		}
		m[volume.Identifier(k)] = float32(*v)
	}
	return volume.TableFrom(m), needsSave, false, nil
}

// backup moves a malformed file aside, replacing any earlier backup.
// It returns the backup path, or "" if the move failed.
func (s *Store) backup(path string) string {
	dst := s.BackupPath()
	if err := os.Rename(path, dst); err != nil {
		slog.Error("store: could not back up corrupted config", "path", path, "backup", dst, "err", err)
		return ""
	}
	slog.Warn("store: backed up corrupted config, using defaults", "path", path, "backup", dst)
	return dst
}

func (s *Store) reconcile(tbl *volume.Table) bool {
	var known []volume.Identifier
	if s.known != nil {
		ids, err := s.known.Identifiers()
		if err != nil {
			slog.Error("store: known identifiers unavailable, clamping only", "err", err)
		} else {
			known = ids
		}
	}
	return tbl.Reconcile(known)
}

// Save atomically replaces the file with the contents of tbl. Errors are
// logged and returned; tbl is never modified.
func (s *Store) Save(tbl *volume.Table) error {
	if tbl == nil {
		slog.Error("store: refusing to save nil table")
		return fmt.Errorf("store: save: nil table")
	}
	if s.saveDisabled.Load() {
		return ErrSaveDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(tbl); err != nil {
		slog.Error("store: save failed", "path", s.Path(), "err", err)
		return err
	}
	slog.Debug("store: saved", "path", s.Path(), "entries", tbl.Len())
	return nil
}

func (s *Store) writeAtomic(tbl *volume.Table) (err error) {
	data, err := Encode(tbl)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}

	f, err := os.CreateTemp(s.dir, s.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp) //nolint:errcheck
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("store: sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("store: chmod temp: %w", err)
	}
	if s.beforeRename != nil {
		if err := s.beforeRename(tmp); err != nil {
			return fmt.Errorf("store: before rename: %w", err)
		}
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// Encode renders tbl as the indented JSON object written to disk.
// Keys are sorted, so identical tables produce identical bytes.
func Encode(tbl *volume.Table) ([]byte, error) {
	m := make(map[string]float32, tbl.Len())
	for _, e := range tbl.Entries() {
		m[string(e.ID)] = e.Volume
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return append(data, '\n'), nil
}
