package geocode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_Deterministic(t *testing.T) {
	addr := AddressInput{
		Street:  "100 S Biscayne Blvd",
		City:    "Miami",
		State:   "FL",
		ZipCode: "33131",
	}

	key1 := cacheKey(addr)
	key2 := cacheKey(addr)
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 64) // SHA-256 hex is 64 chars
}

func TestCacheKey_CaseInsensitive(t *testing.T) {
	addr1 := AddressInput{Street: "100 Main St", City: "Miami", State: "FL", ZipCode: "33131"}
	addr2 := AddressInput{Street: "100 MAIN ST", City: "MIAMI", State: "fl", ZipCode: "33131"}

	assert.Equal(t, cacheKey(addr1), cacheKey(addr2))
}

func TestCacheKey_DifferentAddresses(t *testing.T) {
	addr1 := AddressInput{Street: "100 Main St", City: "Miami", State: "FL", ZipCode: "33131"}
	addr2 := AddressInput{Street: "200 Main St", City: "Miami", State: "FL", ZipCode: "33131"}

	assert.NotEqual(t, cacheKey(addr1), cacheKey(addr2))
}

func TestDiskCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geocode.json")
	c := newDiskCache(path)

	_, ok := c.get("abc")
	assert.False(t, ok)

	require.NoError(t, c.put("abc", Result{
		Latitude: 32.7767, Longitude: -96.797,
		Source: "census", Confidence: 0.95, Matched: true,
		BlockGEOID: "481130001001000",
	}))

	got, ok := c.get("abc")
	require.True(t, ok)
	assert.Equal(t, "cache", got.Source, "hits report the cache as source")
	assert.Equal(t, 32.7767, got.Latitude)
	assert.Equal(t, "481130001001000", got.BlockGEOID)
	assert.Equal(t, 1, c.size())
}

func TestDiskCache_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geocode.json")

	c := newDiskCache(path)
	require.NoError(t, c.put("key1", Result{Latitude: 1, Longitude: 2, Matched: true}))

	reopened := newDiskCache(path)
	got, ok := reopened.get("key1")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Latitude)
}

func TestDiskCache_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geocode.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := newDiskCache(path)
	assert.Zero(t, c.size())

	// Still writable after recovery.
	require.NoError(t, c.put("k", Result{Matched: true}))
	assert.Equal(t, 1, c.size())
}

func TestDiskCache_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "geocode.json")
	c := newDiskCache(path)
	require.NoError(t, c.put("k", Result{Matched: true}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
