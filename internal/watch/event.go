package watch

import (
	"path/filepath"
	"strings"
)

// Kind classifies a filesystem change.
type Kind int

// Change kinds.
const (
	Created Kind = iota + 1
	Modified
	Moved
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Moved:
		return "moved"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a single accepted file change.
type Event struct {
	Path string
	Kind Kind
}

// DefaultExtensions are the suffixes watched when none are configured:
// reStructuredText and plain text sources plus their editor backup copies.
var DefaultExtensions = []string{"rst", "rst~", "txt", "txt~"}

// ExtensionSet is an immutable set of file name suffixes.
type ExtensionSet struct {
	suffixes []string
}

// NewExtensionSet normalises exts ("rst", ".rst" and "*.rst" are equivalent)
// and drops empty and duplicate entries.
func NewExtensionSet(exts ...string) ExtensionSet {
	seen := make(map[string]struct{}, len(exts))
	suffixes := make([]string, 0, len(exts))

	for _, e := range exts {
		e = strings.TrimSpace(e)
		e = strings.TrimPrefix(e, "*")
		e = strings.TrimPrefix(e, ".")

		if e == "" {
			continue
		}

		if _, ok := seen[e]; ok {
			continue
		}

		seen[e] = struct{}{}
		suffixes = append(suffixes, "."+e)
	}

	return ExtensionSet{suffixes: suffixes}
}

// Match reports whether the base name of path ends in a member suffix.
func (s ExtensionSet) Match(path string) bool {
	name := filepath.Base(path)

	for _, suffix := range s.suffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

// List returns the extensions without their leading dot.
func (s ExtensionSet) List() []string {
	out := make([]string, len(s.suffixes))
	for i, suffix := range s.suffixes {
		out[i] = suffix[1:]
	}

	return out
}

// Len returns the number of extensions in the set.
func (s ExtensionSet) Len() int { return len(s.suffixes) }
