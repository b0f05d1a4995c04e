package minipm

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
)

// setupTestTree points every global path at a throwaway tree and returns its
// root. fakeroot is replaced with env, which runs the wrapped command
// unchanged, so privileged-looking steps work for any test user.
func setupTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	cfg := &Config{Values: map[string]string{
		"MINIPM_HOME":     root,
		"MINIPM_ROOT":     filepath.Join(root, "rootfs"),
		"MINIPM_JOBS":     "1",
		"MINIPM_FAKEROOT": "env",
		"MINIPM_SPINNER":  "0",
		"MINIPM_COLOR":    "0",
	}}
	initConfig(cfg)

	require.NoError(t, initTree())

	UserExec = &Executor{Context: context.Background()}
	FakerootExec = &Executor{Context: context.Background(), UseFakeroot: true}
	return root
}

// writeRecipe drops a recipe file with the given body under the recipes dir.
func writeRecipe(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(recipesDir, 0o755))
	require.NoError(t, os.WriteFile(recipePath(name), []byte(body), 0o755))
}

// makeTarGz builds a small gzipped tarball from a map of path to content.
func makeTarGz(t *testing.T, dest string, files map[string]string) {
	t.Helper()
	f, err := os.Create(dest)
	require.NoError(t, err)
	defer f.Close()

	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}
