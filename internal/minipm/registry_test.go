package minipm

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAppendAndRead(t *testing.T) {
	setupTestTree(t)

	now := time.Now()
	require.NoError(t, appendRegistry(RegistryEntry{Name: "zlib", Version: "1.3", Artifact: "zlib-1.3.tar.gz", When: now}))
	require.NoError(t, appendRegistry(RegistryEntry{Name: "m4", Version: "1.4.19", Artifact: "m4-1.4.19.tar.gz", When: now}))
	require.NoError(t, appendRegistry(RegistryEntry{Name: "zlib", Version: "1.3.1", Artifact: "zlib-1.3.1.tar.gz", When: now.Add(time.Hour)}))

	entries, err := readRegistry()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// History keeps file order; timestamps are stored in UTC.
	assert.Equal(t, "zlib", entries[0].Name)
	assert.Equal(t, "1.3", entries[0].Version)
	assert.Equal(t, time.UTC, entries[0].When.Location())

	latest := latestBuild(entries, "zlib")
	require.NotNil(t, latest)
	assert.Equal(t, "1.3.1", latest.Version)

	assert.Nil(t, latestBuild(entries, "gcc"))
}

func TestRegistrySkipsMalformedLines(t *testing.T) {
	setupTestTree(t)
	require.NoError(t, appendRegistry(RegistryEntry{Name: "zlib", Version: "1.3", Artifact: "zlib-1.3.tar.gz", When: time.Now()}))

	f, err := os.OpenFile(registryFile, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage line without tabs\nm4\t1.4\tm4-1.4.tar.gz\tnot-a-time\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := readRegistry()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRegistryMissingFile(t *testing.T) {
	setupTestTree(t)
	require.NoError(t, os.Remove(registryFile))

	entries, err := readRegistry()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
