package minipm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTreeCreatesLayout(t *testing.T) {
	root := setupTestTree(t)

	for _, dir := range []string{"recipes", "sources", "work", "build", "dest", "packages", "logs"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat(registryFile)
	require.NoError(t, err)
}

func TestInitTreeKeepsRegistry(t *testing.T) {
	setupTestTree(t)
	require.NoError(t, appendRegistry(RegistryEntry{Name: "zlib", Version: "1.3", Artifact: "zlib-1.3.tar.gz"}))

	// Running init again must not truncate history.
	require.NoError(t, initTree())
	entries, err := readRegistry()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewRecipeRoundTrip(t *testing.T) {
	setupTestTree(t)
	require.NoError(t, newRecipe("zlib", "1.3.1", "https://zlib.net/zlib-1.3.1.tar.gz", "abc123"))

	r, err := loadRecipe("zlib")
	require.NoError(t, err)
	assert.Equal(t, "zlib", r.Name)
	assert.Equal(t, "1.3.1", r.Version)
	assert.Equal(t, "https://zlib.net/zlib-1.3.1.tar.gz", r.URL)
	assert.Equal(t, "abc123", r.SHA256)
	// The scaffold spells out the default hooks, so they parse as custom.
	assert.Equal(t, HookCustom, r.Configure.Kind)
	assert.Equal(t, HookCustom, r.Build.Kind)
	assert.Equal(t, HookCustom, r.Install.Kind)
}

func TestNewRecipeRefusesOverwrite(t *testing.T) {
	setupTestTree(t)
	require.NoError(t, newRecipe("zlib", "1.3.1", "", ""))

	err := newRecipe("zlib", "1.3.2", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
