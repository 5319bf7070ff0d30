package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_RecordAccumulatesAggregates(t *testing.T) {
	p := New()
	p.RecordImplementation("core.sum", 10)
	p.RecordImplementation("core.sum", 30)
	p.RecordImplementation("core.sum", 20)

	m, ok := p.Implementation("core.sum")
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Count)
	assert.Equal(t, int64(60), m.TotalMs)
	assert.Equal(t, int64(10), m.MinMs)
	assert.Equal(t, int64(30), m.MaxMs)
	assert.Equal(t, 20.0, m.Mean())
}

func TestProfile_DumpLoadRoundTrips(t *testing.T) {
	p := New()
	p.RecordResource("res1", 5)
	p.RecordImplementation("core.sum", 15)
	p.RecordCloud("hcloud", 2500)

	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	require.NoError(t, p.Dump(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	r, ok := loaded.Resource("res1")
	require.True(t, ok)
	assert.Equal(t, int64(5), r.TotalMs)

	i, ok := loaded.Implementation("core.sum")
	require.True(t, ok)
	assert.Equal(t, int64(15), i.TotalMs)

	c, ok := loaded.CloudMetric("hcloud")
	require.True(t, ok)
	assert.Equal(t, int64(2500), c.TotalMs)
}

func TestProfile_LoadMissingFileReturnsEmptyProfile(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, p.Resources)
}

func TestProfile_PreservesUnknownTopLevelAndFieldKeys(t *testing.T) {
	raw := `{
		"resources": {"res1": {"count": 1, "totalMs": 10, "minMs": 10, "maxMs": 10, "p99Ms": 10}},
		"implementations": {},
		"cloud": {},
		"futureSection": {"x": 1}
	}`
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, p.Dump(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var roundTripped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &roundTripped))
	assert.Contains(t, roundTripped, "futureSection")

	var resources map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(roundTripped["resources"], &resources))
	var res1 map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resources["res1"], &res1))
	assert.Contains(t, res1, "p99Ms")
}
