package volume

import (
	"fmt"
	"strings"
)

// DefaultNamespace is used when an identifier string carries no namespace.
const DefaultNamespace = "base"

// Identifier is an opaque, stable key of the form "namespace:path".
// It is the only join key between the registry, the table and the file.
type Identifier string

// NewIdentifier joins a namespace and a path into an Identifier.
func NewIdentifier(namespace, name string) Identifier {
	return Identifier(namespace + ":" + name)
}

// ParseIdentifier validates s and returns it as an Identifier.
// A string without a colon is placed in DefaultNamespace.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("volume: empty identifier")
	}
	ns, name, ok := strings.Cut(s, ":")
	if !ok {
		return NewIdentifier(DefaultNamespace, s), nil
	}
	if ns == "" || name == "" {
		return "", fmt.Errorf("volume: malformed identifier %q", s)
	}
	return Identifier(s), nil
}

// Namespace returns the part before the first colon, or DefaultNamespace.
func (id Identifier) Namespace() string {
	if ns, _, ok := strings.Cut(string(id), ":"); ok {
		return ns
	}
	return DefaultNamespace
}

// Name returns the part after the first colon.
func (id Identifier) Name() string {
	if _, name, ok := strings.Cut(string(id), ":"); ok {
		return name
	}
	return string(id)
}

func (id Identifier) String() string { return string(id) }

// FromAssetPath derives an Identifier from the file path a sound was loaded
// from. Recognised layouts:
//
//	…/assets/<ns>/<name>   classpath assets
//	…/mods/<ns>/<name>     mod directories
//	base/<name>            bundled content
//
// It returns false when the path matches none of them.
func FromAssetPath(path string) (Identifier, bool) {
	path = strings.ReplaceAll(path, "\\", "/")

	for _, marker := range []string{"assets/", "/mods/"} {
		i := strings.Index(path, marker)
		if i < 0 {
			continue
		}
		rest := path[i+len(marker):]
		ns, name, ok := strings.Cut(rest, "/")
		if !ok || ns == "" || name == "" {
			return "", false
		}
		return NewIdentifier(ns, name), true
	}

	if name, ok := strings.CutPrefix(path, DefaultNamespace+"/"); ok && name != "" {
		return NewIdentifier(DefaultNamespace, name), true
	}
	return "", false
}
