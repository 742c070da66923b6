package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReinstrumenter struct {
	requested []string
}

func (f *fakeReinstrumenter) RequestReinstrument(className string) {
	f.requested = append(f.requested, className)
}

func TestRegistrySetAndLookup(t *testing.T) {
	reinst := &fakeReinstrumenter{}
	r := NewRegistry(reinst)

	rec := r.Set("bp1", "widget.Service", 42, "x > 0")
	assert.Equal(t, "bp1", rec.ID)
	assert.Equal(t, "widget.Service", rec.ClassName)
	assert.Equal(t, 42, rec.LineNumber)
	require.Len(t, reinst.requested, 1)
	assert.Equal(t, "widget.Service", reinst.requested[0])

	got, ok := r.Lookup("widget.Service", 42)
	require.True(t, ok)
	assert.Equal(t, "bp1", got.ID)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(nil)
	r.Set("bp1", "widget.Service", 42, "")

	assert.True(t, r.Remove("bp1"))
	assert.False(t, r.Remove("bp1"), "second removal should fail")

	_, ok := r.Lookup("widget.Service", 42)
	assert.False(t, ok, "lookup should fail after removal")
	assert.Equal(t, 0, r.Count())
}

func TestRegistryHasOther(t *testing.T) {
	r := NewRegistry(nil)
	r.Set("bp1", "widget.Service", 42, "")
	r.Set("bp2", "widget.Service", 99, "")

	assert.True(t, r.HasOther("widget.Service", "bp1"))
	r.Remove("bp2")
	assert.False(t, r.HasOther("widget.Service", "bp1"))
}

func TestRegistryHitIncrementsCounter(t *testing.T) {
	r := NewRegistry(nil)
	r.Set("bp1", "widget.Service", 42, "")

	rec, ok := r.Hit("widget.Service", 42)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.HitCount)

	rec, ok = r.Hit("widget.Service", 42)
	require.True(t, ok)
	assert.Equal(t, uint64(2), rec.HitCount)
}

func TestRegistryHitMissingLocation(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Hit("widget.Service", 1)
	assert.False(t, ok)
}
