package shellcache

import (
	"fmt"
	"strings"
)

const namespaceSeparator = "-"

// Namespaces names the three cache namespaces of one application version.
// Names have the form `<prefix>-<version>-<purpose>`, e.g. `lms-v3-static`.
type Namespaces struct {
	Prefix  string
	Version string

	Static  string
	Dynamic string
	Image   string
}

func NewNamespaces(prefix, version string) (Namespaces, error) {
	if prefix == "" || version == "" {
		return Namespaces{}, fmt.Errorf("Cache prefix and version are required")
	}
	if strings.Contains(prefix, namespaceSeparator) {
		return Namespaces{}, fmt.Errorf("Cache prefix %q must not contain %q", prefix, namespaceSeparator)
	}
	name := func(purpose string) string {
		return strings.Join([]string{prefix, version, purpose}, namespaceSeparator)
	}
	return Namespaces{
		Prefix:  prefix,
		Version: version,
		Static:  name("static"),
		Dynamic: name("dynamic"),
		Image:   name("image"),
	}, nil
}

// All returns the current namespace names.
func (n Namespaces) All() []string {
	return []string{n.Static, n.Dynamic, n.Image}
}

// Owns reports whether the namespace belongs to this application,
// whatever its version.
func (n Namespaces) Owns(name string) bool {
	return strings.HasPrefix(name, n.Prefix+namespaceSeparator)
}

// IsCurrent reports whether the namespace is one of the current version.
func (n Namespaces) IsCurrent(name string) bool {
	for _, current := range n.All() {
		if name == current {
			return true
		}
	}
	return false
}
