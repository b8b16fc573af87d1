package classify

import "strings"

// builtinFacility is one entry in the fixed set of facilities known to
// be unsafe under concurrent access in the hosting runtime. Each is
// gated independently so the built-in list can be selectively disabled.
type builtinFacility struct {
	name     string
	enabled  func(Options) bool
	exact    []string
	prefixes []string
}

var builtinFacilities = []builtinFacility{
	{
		// Process-global environment and working-directory mutation.
		name:    "environment mutation",
		enabled: func(o Options) bool { return o.EnvFacility },
		exact: []string{
			"os.Setenv",
			"os.Unsetenv",
			"os.Clearenv",
			"os.Chdir",
			"testing.T.Setenv",
			"testing.T.Chdir",
		},
	},
	{
		// Foreign-function calls: the native side rarely declares its
		// own thread-safety.
		name:     "foreign function interface",
		enabled:  func(o Options) bool { return o.FFIFacility },
		prefixes: []string{"runtime/cgo.", "C."},
	},
	{
		// The property-based testing engine drives its own iteration
		// state through package-level configuration.
		name:     "property-based testing",
		enabled:  func(o Options) bool { return o.QuickFacility },
		prefixes: []string{"testing/quick."},
	},
}

// matchFacility checks a call target against the gated built-in set and
// returns the facility name on a match.
func matchFacility(target string, opts Options) (string, bool) {
	for _, f := range builtinFacilities {
		if !f.enabled(opts) {
			continue
		}
		for _, e := range f.exact {
			if target == e {
				return f.name, true
			}
		}
		for _, p := range f.prefixes {
			if strings.HasPrefix(target, p) {
				return f.name, true
			}
		}
	}
	return "", false
}
