package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/obsidianstack/volumectl/internal/volume"
)

var soundExtensions = map[string]bool{".ogg": true, ".wav": true}

// Catalog is an immutable set of known identifiers.
type Catalog struct {
	ids []volume.Identifier
}

// Static returns a Catalog holding exactly ids.
func Static(ids ...volume.Identifier) *Catalog {
	return &Catalog{ids: dedupe(ids)}
}

// Scan walks root and returns a Catalog of every sound it references,
// plus extra. An empty root yields just extra. Problems inside a single
// namespace are logged and skipped; only an unreadable root is an error.
func Scan(root string, extra ...volume.Identifier) (*Catalog, error) {
	ids := append([]volume.Identifier(nil), extra...)
	if root == "" {
		return Static(ids...), nil
	}

	namespaces, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("catalog: read assets root: %w", err)
	}

	for _, ns := range namespaces {
		if !ns.IsDir() {
			continue
		}
		nsDir := filepath.Join(root, ns.Name())
		ids = append(ids, scanSounds(nsDir, ns.Name())...)
		ids = append(ids, scanMusic(nsDir, ns.Name())...)
	}

	c := Static(ids...)
	slog.Info("catalog: scanned content", "root", root, "identifiers", len(c.ids))
	return c, nil
}

// Identifiers returns a copy of the known identifiers, sorted.
func (c *Catalog) Identifiers() ([]volume.Identifier, error) {
	return append([]volume.Identifier(nil), c.ids...), nil
}

// Len returns the number of known identifiers.
func (c *Catalog) Len() int { return len(c.ids) }

func scanSounds(nsDir, ns string) []volume.Identifier {
	var ids []volume.Identifier
	walk(filepath.Join(nsDir, "sounds"), ns, func(path string) {
		if !soundExtensions[strings.ToLower(filepath.Ext(path))] {
			return
		}
		rel, err := filepath.Rel(nsDir, path)
		if err != nil {
			return
		}
		ids = append(ids, volume.NewIdentifier(ns, filepath.ToSlash(rel)))
	})
	return ids
}

func scanMusic(nsDir, ns string) []volume.Identifier {
	var ids []volume.Identifier
	walk(filepath.Join(nsDir, "music"), ns, func(path string) {
		if !strings.EqualFold(filepath.Ext(path), ".json") {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("catalog: cannot read music definition", "path", path, "err", err)
			return
		}
		if !gjson.ValidBytes(data) {
			slog.Warn("catalog: invalid music definition", "path", path)
			return
		}
		collectFileNames(gjson.ParseBytes(data), func(name string) {
			id, err := volume.ParseIdentifier(name)
			if err != nil {
				slog.Warn("catalog: bad fileName in music definition", "path", path, "fileName", name, "err", err)
				return
			}
			ids = append(ids, id)
		})
	})
	return ids
}

// walk calls fn for every regular file below dir. A missing dir is fine.
func walk(dir, ns string, fn func(path string)) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fn(path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("catalog: walk failed", "namespace", ns, "dir", dir, "err", err)
	}
}

// collectFileNames finds "fileName" members in a music definition. An
// object that has one is a song entry and is not searched further.
func collectFileNames(v gjson.Result, add func(string)) {
	switch {
	case v.IsArray():
		v.ForEach(func(_, e gjson.Result) bool {
			collectFileNames(e, add)
			return true
		})
	case v.IsObject():
		if fn := v.Get("fileName"); fn.Exists() {
			if s := fn.String(); s != "" {
				add(s)
			}
			return
		}
		v.ForEach(func(_, child gjson.Result) bool {
			if child.IsObject() || child.IsArray() {
				collectFileNames(child, add)
			}
			return true
		})
	}
}

func dedupe(ids []volume.Identifier) []volume.Identifier {
	seen := make(map[volume.Identifier]bool, len(ids))
	out := make([]volume.Identifier, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
