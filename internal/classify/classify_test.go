package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_SafeByDefault(t *testing.T) {
	c := New(NewRegistry(), DefaultOptions())

	v := c.Classify(Operation{Name: "pkg.TestClean"})
	assert.True(t, v.Safe)
	assert.Empty(t, v.Reason)
}

func TestClassify_ForceSerialMarker(t *testing.T) {
	c := New(NewRegistry(), DefaultOptions())

	v := c.Classify(Operation{Name: "pkg.TestMarked", ForceSerial: true})
	require.False(t, v.Safe)
	assert.Equal(t, "uses the thread-unsafe marker", v.Reason)

	v = c.Classify(Operation{
		Name:              "pkg.TestMarked",
		ForceSerial:       true,
		ForceSerialReason: "mutates package state",
	})
	require.False(t, v.Safe)
	assert.Equal(t, "declared thread-unsafe: mutates package state", v.Reason)
}

func TestClassify_UnsafeDependency(t *testing.T) {
	opts := DefaultOptions()
	opts.UnsafeDependencies = []string{"capture", "monkeypatch"}
	c := New(NewRegistry(), opts)

	v := c.Classify(Operation{
		Name: "pkg.TestUsesCapture",
		Deps: []string{"tmpdir", "capture"},
	})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "thread-unsafe dependency")
	assert.Contains(t, v.Reason, "capture")
}

func TestClassify_DenylistExact(t *testing.T) {
	opts := DefaultOptions()
	opts.UnsafeCallTargets = []string{"legacy.GlobalInit"}
	c := New(NewRegistry(), opts)

	v := c.Classify(Operation{
		Name:  "pkg.TestLegacy",
		Calls: []string{"legacy.GlobalInit"},
	})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "legacy.GlobalInit")
}

func TestClassify_DenylistWildcard(t *testing.T) {
	opts := DefaultOptions()
	opts.UnsafeCallTargets = []string{"legacy.*"}
	c := New(NewRegistry(), opts)

	v := c.Classify(Operation{
		Name:  "pkg.TestLegacy",
		Calls: []string{"legacy.Anything"},
	})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "legacy.*")

	v = c.Classify(Operation{
		Name:  "pkg.TestOther",
		Calls: []string{"modern.Anything"},
	})
	assert.True(t, v.Safe, "wildcard must not match other namespaces")
}

func TestClassify_TaggedUnsafe(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterUnsafe("helpers.TouchGlobal")
	c := New(reg, DefaultOptions())

	v := c.Classify(Operation{
		Name:  "pkg.TestTagged",
		Calls: []string{"helpers.TouchGlobal"},
	})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "tagged not thread-safe")
	assert.Contains(t, v.Reason, "helpers.TouchGlobal")
}

func TestClassify_BoundedCallGraph(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a.First", Entry{Calls: []string{"b.Second"}})
	reg.Register("b.Second", Entry{Calls: []string{"c.Third"}})
	reg.Register("c.Third", Entry{Calls: []string{"d.Fourth"}})
	reg.RegisterUnsafe("c.Third")
	c := New(reg, DefaultOptions())

	// a.First -> b.Second -> c.Third: two levels below the direct
	// call, still within the bound.
	v := c.Classify(Operation{Name: "pkg.TestDeep", Calls: []string{"a.First"}})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "c.Third")

	// d.Fourth sits three levels down and must not be reached.
	reg2 := NewRegistry()
	reg2.Register("a.First", Entry{Calls: []string{"b.Second"}})
	reg2.Register("b.Second", Entry{Calls: []string{"c.Third"}})
	reg2.Register("c.Third", Entry{Calls: []string{"d.Fourth"}})
	reg2.RegisterUnsafe("d.Fourth")
	c2 := New(reg2, DefaultOptions())

	v = c2.Classify(Operation{Name: "pkg.TestTooDeep", Calls: []string{"a.First"}})
	assert.True(t, v.Safe, "targets beyond the depth bound are not scanned")
}

func TestClassify_BuiltinFacilities(t *testing.T) {
	c := New(NewRegistry(), DefaultOptions())

	v := c.Classify(Operation{Name: "pkg.TestEnv", Calls: []string{"os.Setenv"}})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "environment mutation")

	v = c.Classify(Operation{Name: "pkg.TestQuick", Calls: []string{"testing/quick.Check"}})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "property-based testing")

	v = c.Classify(Operation{Name: "pkg.TestFFI", Calls: []string{"C.compute"}})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "foreign function interface")
}

func TestClassify_FacilityGatesDisable(t *testing.T) {
	opts := DefaultOptions()
	opts.EnvFacility = false
	c := New(NewRegistry(), opts)

	v := c.Classify(Operation{Name: "pkg.TestEnv", Calls: []string{"os.Setenv"}})
	assert.True(t, v.Safe, "disabled gate removes the facility from the built-in list")
}

func TestClassify_FacilityGateBeatsSafeTag(t *testing.T) {
	reg := NewRegistry()
	tr := true
	reg.Register("testing/quick.Check", Entry{ThreadSafe: &tr})
	c := New(reg, DefaultOptions())

	v := c.Classify(Operation{Name: "pkg.TestQuick", Calls: []string{"testing/quick.Check"}})
	require.False(t, v.Safe, "an enabled gate classifies regardless of a declared safe tag")
	assert.Contains(t, v.Reason, "property-based testing")
}

func TestClassify_OrderFirstMatchWins(t *testing.T) {
	// Dependency check precedes call-target checks.
	opts := DefaultOptions()
	opts.UnsafeDependencies = []string{"capture"}
	opts.UnsafeCallTargets = []string{"legacy.GlobalInit"}
	c := New(NewRegistry(), opts)

	v := c.Classify(Operation{
		Name:  "pkg.TestBoth",
		Deps:  []string{"capture"},
		Calls: []string{"legacy.GlobalInit"},
	})
	require.False(t, v.Safe)
	assert.Contains(t, v.Reason, "dependency")
}

func TestDenylist_Match(t *testing.T) {
	d := NewDenylist([]string{"pkg.Exact", "ns.*", "  ", ""})

	assert.Equal(t, 2, d.Len())

	m, ok := d.Match("pkg.Exact")
	require.True(t, ok)
	assert.Equal(t, "pkg.Exact", m)

	m, ok = d.Match("ns.Sub")
	require.True(t, ok)
	assert.Equal(t, "ns.*", m)

	_, ok = d.Match("pkg.Other")
	assert.False(t, ok)

	// The wildcard does not match the bare namespace itself.
	_, ok = d.Match("ns")
	assert.False(t, ok)
}

func TestRegistry_Reachable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a.A", Entry{Calls: []string{"b.B", "c.C"}})
	reg.Register("b.B", Entry{Calls: []string{"d.D"}})

	got := reg.Reachable([]string{"a.A", "a.A"})
	assert.Equal(t, []string{"a.A", "b.B", "c.C", "d.D"}, got, "breadth-first, deduplicated")
}
