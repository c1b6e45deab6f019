package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/obsidianstack/volumectl/internal/volume"
)

// writeTree creates files (relative path → content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func ids(t *testing.T, c *Catalog) map[volume.Identifier]bool {
	t.Helper()
	list, err := c.Identifiers()
	if err != nil {
		t.Fatalf("Identifiers: %v", err)
	}
	out := make(map[volume.Identifier]bool, len(list))
	for _, id := range list {
		out[id] = true
	}
	return out
}

func TestScan_SoundsAndMusic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"base/sounds/blocks/dirt.ogg": "",
		"base/sounds/ui/click.WAV":    "",
		"base/sounds/readme.txt":      "",
		"base/music/day.json":         `[{"fileName": "base:music/day-1.ogg"}, {"fileName": "music/day-2.ogg"}]`,
		"coolmod/sounds/boom.wav":     "",
		"coolmod/music/playlist.json": `{"night": {"songs": [{"fileName": "coolmod:music/night.ogg", "nested": {"fileName": "ignored:x"}}]}}`,
		"coolmod/music/broken.json":   `{"fileName": `,
		"coolmod/textures/stone.png":  "",
		"notanamespace.txt":           "",
	})

	c, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := ids(t, c)

	want := []volume.Identifier{
		"base:sounds/blocks/dirt.ogg",
		"base:sounds/ui/click.WAV",
		"base:music/day-1.ogg",
		"base:music/day-2.ogg",
		"coolmod:sounds/boom.wav",
		"coolmod:music/night.ogg",
	}
	for _, id := range want {
		if !got[id] {
			t.Errorf("missing identifier %q", id)
		}
	}
	if got["base:sounds/readme.txt"] {
		t.Error("non-sound file included")
	}
	if got["ignored:x"] {
		t.Error("fileName inside a song entry should not be searched")
	}
	if c.Len() != len(want) {
		t.Errorf("Len: got %d, want %d (%v)", c.Len(), len(want), got)
	}
}

func TestScan_IdentifiersSortedAndDeduped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b/sounds/x.ogg": "",
		"a/sounds/y.ogg": "",
	})

	c, err := Scan(root, "a:sounds/y.ogg", "z:extra")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	list, _ := c.Identifiers()
	want := []volume.Identifier{"a:sounds/y.ogg", "b:sounds/x.ogg", "z:extra"}
	if len(list) != len(want) {
		t.Fatalf("Identifiers: got %v, want %v", list, want)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("Identifiers[%d]: got %q, want %q", i, list[i], want[i])
		}
	}
}

func TestScan_EmptyRootUsesExtra(t *testing.T) {
	c, err := Scan("", "a:one")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len: got %d, want 1", c.Len())
	}
}

func TestScan_MissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Scan of missing root: expected error")
	}
}

func TestIdentifiers_ReturnsCopy(t *testing.T) {
	c := Static("a:x")
	list, _ := c.Identifiers()
	list[0] = "mutated:y"
	again, _ := c.Identifiers()
	if again[0] != "a:x" {
		t.Errorf("catalog mutated through returned slice: %q", again[0])
	}
}
