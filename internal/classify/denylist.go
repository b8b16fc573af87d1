package classify

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize puts a qualified name into NFC so that config-sourced and
// code-sourced spellings of the same identifier compare equal.
func normalize(name string) string {
	return norm.NFC.String(name)
}

// Denylist matches fully-qualified call-target names against configured
// entries. An entry is either an exact name ("pkg.Fn") or a namespace
// wildcard ("pkg.*") that matches every name under that namespace.
type Denylist struct {
	exact    map[string]struct{}
	prefixes []string // include the trailing dot
}

// NewDenylist builds a denylist from config entries. Entries are
// NFC-normalized; empty entries are ignored.
func NewDenylist(entries []string) *Denylist {
	d := &Denylist{exact: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = normalize(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if ns, ok := strings.CutSuffix(e, ".*"); ok {
			d.prefixes = append(d.prefixes, ns+".")
			continue
		}
		d.exact[e] = struct{}{}
	}
	return d
}

// Match reports whether name is denylisted and which entry matched.
// Exact entries are checked before wildcards.
func (d *Denylist) Match(name string) (string, bool) {
	name = normalize(name)
	if _, ok := d.exact[name]; ok {
		return name, true
	}
	for _, p := range d.prefixes {
		if strings.HasPrefix(name, p) {
			return p + "*", true
		}
	}
	return "", false
}

// Len returns the number of configured entries.
func (d *Denylist) Len() int {
	return len(d.exact) + len(d.prefixes)
}
