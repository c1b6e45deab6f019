package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/obsidianstack/volumectl/internal/volume"
)

// known returns a KnownIdentifiers that always yields ids.
func known(ids ...volume.Identifier) KnownIdentifiers {
	return KnownFunc(func() ([]volume.Identifier, error) { return ids, nil })
}

// readFile returns the decoded contents of path, failing the test on error.
func readFile(t *testing.T, path string) map[string]float64 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v (content %q)", path, err, data)
	}
	return m
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_MissingFileCreatesCanonical(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	st := New(dir, nil)

	tbl, rep := st.Load()
	if tbl.Len() != 0 {
		t.Errorf("Len: got %d, want 0", tbl.Len())
	}
	if !rep.Created || !rep.Saved {
		t.Errorf("report: got %+v, want Created and Saved", rep)
	}
	if m := readFile(t, st.Path()); len(m) != 0 {
		t.Errorf("canonical file: got %v, want empty object", m)
	}
	if st.LastLoad().IsZero() {
		t.Error("LastLoad: expected non-zero after load")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, nil)

	orig := volume.TableFrom(map[volume.Identifier]float32{
		"base:sounds/blocks/dirt.ogg": 0.25,
		"base:sounds/ui/click.wav":    0,
		"mymod:music/theme.ogg":       1,
		"mymod:sounds/odd.ogg":        0.3333,
	})
	if err := st.Save(orig); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, rep := New(dir, known()).Load()
	if rep.Err != nil {
		t.Fatalf("Load report error: %v", rep.Err)
	}
	if rep.Saved {
		t.Error("Load of clean file: expected no re-save")
	}
	if !got.Equal(orig) {
		t.Errorf("round trip: got %v, want %v", got.Map(), orig.Map())
	}
	for _, e := range orig.Entries() {
		if v, _ := got.Lookup(e.ID); v != e.Volume {
			t.Errorf("%s: got %v, want exactly %v", e.ID, v, e.Volume)
		}
	}
}

func TestSave_SortedIndentedJSON(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, nil)
	tbl := volume.TableFrom(map[volume.Identifier]float32{"b:2": 0.5, "a:1": 1})
	if err := st.Save(tbl); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, _ := os.ReadFile(st.Path())
	want := "{\n  \"a:1\": 1,\n  \"b:2\": 0.5\n}\n"
	if string(data) != want {
		t.Errorf("file content:\ngot  %q\nwant %q", data, want)
	}
}

func TestLoad_CorruptedFileIsBackedUp(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, nil)
	bad := `{"base:sounds/a.ogg": 0.5,,,`
	writeFile(t, st.Path(), bad)
	writeFile(t, st.BackupPath(), "older backup")

	tbl, rep := st.Load()
	if tbl.Len() != 0 {
		t.Errorf("Len: got %d, want 0", tbl.Len())
	}
	if !rep.Recovered || rep.Err == nil {
		t.Errorf("report: got %+v, want Recovered with Err", rep)
	}
	if rep.BackupPath != filepath.Join(dir, "sound_volumes.corrupted.json") {
		t.Errorf("BackupPath: got %q", rep.BackupPath)
	}
	backup, err := os.ReadFile(rep.BackupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != bad {
		t.Errorf("backup content: got %q, want original bytes", backup)
	}
	if m := readFile(t, st.Path()); len(m) != 0 {
		t.Errorf("fresh file: got %v, want empty object", m)
	}
}

func TestLoad_WrongValueTypeIsCorruption(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, nil)
	writeFile(t, st.Path(), `{"a:x": "loud"}`)

	_, rep := st.Load()
	if !rep.Recovered {
		t.Errorf("report: got %+v, want Recovered", rep)
	}
	if _, err := os.Stat(st.BackupPath()); err != nil {
		t.Errorf("backup missing: %v", err)
	}
}

func TestLoad_EmptyFileUsesDefaultsWithoutBackup(t *testing.T) {
	for _, content := range []string{"", "   \n", "null"} {
		dir := t.TempDir()
		st := New(dir, nil)
		writeFile(t, st.Path(), content)

		tbl, rep := st.Load()
		if tbl.Len() != 0 || rep.Recovered {
			t.Errorf("content %q: got len %d report %+v", content, tbl.Len(), rep)
		}
		if _, err := os.Stat(st.BackupPath()); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("content %q: unexpected backup (stat err %v)", content, err)
		}
		if rep.Saved {
			t.Errorf("content %q: file rewritten although nothing was reconciled", content)
		}
		data, err := os.ReadFile(st.Path())
		if err != nil || string(data) != content {
			t.Errorf("content %q: file changed to %q (err %v)", content, data, err)
		}
	}
}

func TestLoad_EmptyFileSavedWhenReconciled(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, known("a:A"))
	writeFile(t, st.Path(), "")

	tbl, rep := st.Load()
	if !rep.Reconciled || !rep.Saved {
		t.Fatalf("report: got %+v, want Reconciled and Saved", rep)
	}
	if got := tbl.Get("a:A"); got != 1.0 {
		t.Errorf("a:A: got %v, want 1.0", got)
	}
	if m := readFile(t, st.Path()); m["a:A"] != 1.0 {
		t.Errorf("persisted: got %v, want a:A=1", m)
	}
}

func TestLoad_NullValuesDropped(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, nil)
	writeFile(t, st.Path(), `{"a:x": null, "a:y": 0.4}`)

	tbl, rep := st.Load()
	if _, ok := tbl.Lookup("a:x"); ok {
		t.Error("a:x: expected null entry to be dropped")
	}
	if got := tbl.Get("a:y"); got != 0.4 {
		t.Errorf("a:y: got %v, want 0.4", got)
	}
	if !rep.Saved {
		t.Error("expected re-save after dropping null entry")
	}
}

func TestLoad_Reconciliation(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, known("a:A", "a:B", "a:C"))
	writeFile(t, st.Path(), `{"a:A": 0.5}`)

	tbl, rep := st.Load()
	if !rep.Reconciled || !rep.Saved {
		t.Errorf("report: got %+v, want Reconciled and Saved", rep)
	}
	want := map[string]float64{"a:A": 0.5, "a:B": 1, "a:C": 1}
	got := readFile(t, st.Path())
	for id, v := range want {
		if got[id] != v {
			t.Errorf("file %s: got %v, want %v", id, got[id], v)
		}
		if tbl.Get(volume.Identifier(id)) != float32(v) {
			t.Errorf("table %s: got %v, want %v", id, tbl.Get(volume.Identifier(id)), v)
		}
	}
}

func TestLoad_ClampsAndPreservesUnknown(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, known("a:A"))
	writeFile(t, st.Path(), `{"a:A": 3.5, "removed:old": 0.2, "removed:neg": -4}`)

	tbl, rep := st.Load()
	if !rep.Reconciled {
		t.Error("expected Reconciled")
	}
	if got := tbl.Get("a:A"); got != 1 {
		t.Errorf("a:A: got %v, want 1", got)
	}
	if got, ok := tbl.Lookup("removed:old"); !ok || got != 0.2 {
		t.Errorf("removed:old: got %v present=%v, want 0.2 kept", got, ok)
	}
	if got := tbl.Get("removed:neg"); got != 0 {
		t.Errorf("removed:neg: got %v, want 0", got)
	}
}

func TestLoad_KnownProviderErrorStillClamps(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, KnownFunc(func() ([]volume.Identifier, error) {
		return nil, errors.New("content not loaded")
	}))
	writeFile(t, st.Path(), `{"a:A": 2}`)

	tbl, _ := st.Load()
	if got := tbl.Get("a:A"); got != 1 {
		t.Errorf("a:A: got %v, want clamped 1", got)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len: got %d, want 1", tbl.Len())
	}
}

func TestLoad_ReadFailureDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, known("a:A"))
	// A directory in place of the file makes ReadFile fail with EISDIR.
	if err := os.Mkdir(st.Path(), 0o755); err != nil {
		t.Fatal(err)
	}

	tbl, rep := st.Load()
	if rep.Err == nil || rep.Recovered || rep.Saved {
		t.Errorf("report: got %+v, want Err only", rep)
	}
	if got := tbl.Get("a:A"); got != 1 {
		t.Errorf("a:A: got %v, want default", got)
	}
	info, err := os.Stat(st.Path())
	if err != nil || !info.IsDir() {
		t.Errorf("path was replaced: info=%v err=%v", info, err)
	}
	if _, err := os.Stat(st.BackupPath()); !errors.Is(err, os.ErrNotExist) {
		t.Error("unexpected backup after read failure")
	}
}

func TestLoad_DirectoryFailureDisablesSave(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	writeFile(t, blocker, "x")
	st := New(filepath.Join(blocker, "config"), known("a:A"))

	tbl, rep := st.Load()
	if tbl == nil || tbl.Len() != 0 {
		t.Fatalf("expected empty in-memory table, got %v", tbl)
	}
	if rep.Err == nil {
		t.Error("expected directory error in report")
	}
	if !st.SaveDisabled() {
		t.Error("SaveDisabled: expected true")
	}
	if err := st.Save(volume.NewTable()); !errors.Is(err, ErrSaveDisabled) {
		t.Errorf("Save: got %v, want ErrSaveDisabled", err)
	}
}

func TestSave_RecreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")
	st := New(dir, nil)
	st.Load()

	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(volume.TableFrom(map[volume.Identifier]float32{"a:x": 0.1})); err != nil {
		t.Fatalf("Save after dir removal: %v", err)
	}
	if m := readFile(t, st.Path()); m["a:x"] == 0 {
		t.Errorf("file content: got %v", m)
	}
}

func TestSave_InterruptedLeavesTargetIntact(t *testing.T) {
	dir := t.TempDir()
	st := New(dir, nil)
	before := volume.TableFrom(map[volume.Identifier]float32{"a:x": 0.7})
	if err := st.Save(before); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st.beforeRename = func(tmp string) error {
		// The target must still hold the old, complete content while the
		// new one sits in the temp file.
		if m := readFile(t, st.Path()); m["a:x"] != 0.7 {
			t.Errorf("target during save: got %v", m)
		}
		return errors.New("simulated crash")
	}
	after := volume.TableFrom(map[volume.Identifier]float32{"a:x": 0.1, "a:y": 0.2})
	if err := st.Save(after); err == nil {
		t.Fatal("Save: expected error from interrupted save")
	}

	got, rep := New(dir, nil).Load()
	if rep.Err != nil {
		t.Fatalf("Load after interrupted save: %v", rep.Err)
	}
	if !got.Equal(before) {
		t.Errorf("after interrupted save: got %v, want %v", got.Map(), before.Map())
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSave_NilTable(t *testing.T) {
	st := New(t.TempDir(), nil)
	if err := st.Save(nil); err == nil {
		t.Error("Save(nil): expected error")
	}
}

func TestBackupPath_CustomName(t *testing.T) {
	st := New("/cfg", nil, WithFileName("volumes.json"))
	if got := st.BackupPath(); got != filepath.Join("/cfg", "volumes.corrupted.json") {
		t.Errorf("BackupPath: got %q", got)
	}
}
