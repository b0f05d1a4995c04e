package minipm

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageSampleTree(t *testing.T) string {
	t.Helper()
	stage := filepath.Join(destBaseDir, "hello")
	require.NoError(t, os.MkdirAll(filepath.Join(stage, "usr", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stage, "usr", "bin", "hello"), []byte("#!/bin/sh\necho hello\n"), 0o755))
	require.NoError(t, os.Symlink("hello", filepath.Join(stage, "usr", "bin", "hi")))
	return stage
}

func TestCreatePackageTarball(t *testing.T) {
	setupTestTree(t)
	stage := stageSampleTree(t)

	r := &Recipe{Name: "hello", Version: "2.12"}
	artifact, err := createPackageTarball(r, stage)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(packagesDir, "hello-2.12.tar.gz"), artifact)
	info, err := os.Stat(artifact)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

// The native writer must claim root ownership for every entry no matter who
// built the package.
func TestNativeTarballForcesRootOwnership(t *testing.T) {
	setupTestTree(t)
	stage := stageSampleTree(t)

	dest := filepath.Join(packagesDir, "hello-2.12.tar.gz")
	require.NoError(t, nativeTarball(stage, dest))

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var seen int
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 0, hdr.Uid, hdr.Name)
		assert.Equal(t, 0, hdr.Gid, hdr.Name)
		seen++
	}
	assert.Greater(t, seen, 0)
}

func TestPackageInstallRoundTrip(t *testing.T) {
	setupTestTree(t)
	stage := stageSampleTree(t)

	dest := filepath.Join(packagesDir, "hello-2.12.tar.gz")
	require.NoError(t, nativeTarball(stage, dest))

	root := t.TempDir()
	require.NoError(t, nativeInstall(dest, root))

	data, err := os.ReadFile(filepath.Join(root, "usr", "bin", "hello"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo hello")

	info, err := os.Stat(filepath.Join(root, "usr", "bin", "hello"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(root, "usr", "bin", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello", link)
}

// A hardlink entry whose parent directory was never emitted as its own tar
// entry must still install.
func TestNativeInstallHardlinkWithoutParentDir(t *testing.T) {
	setupTestTree(t)

	artifact := filepath.Join(packagesDir, "links-1.0.tar.gz")
	f, err := os.Create(artifact)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	content := "#!/bin/sh\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "./bin/tool",
		Mode: 0o755,
		Size: int64(len(content)),
	}))
	_, err = tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "./sbin/tool",
		Typeflag: tar.TypeLink,
		Linkname: "./bin/tool",
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	root := t.TempDir()
	require.NoError(t, nativeInstall(artifact, root))

	data, err := os.ReadFile(filepath.Join(root, "sbin", "tool"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestTarCompressFlag(t *testing.T) {
	for comp, want := range map[string]string{"gz": "-z", "xz": "-J", "zst": "--zstd"} {
		flag, ok := tarCompressFlag(comp)
		assert.True(t, ok, comp)
		assert.Equal(t, want, flag)
	}
	_, ok := tarCompressFlag("lz4")
	assert.False(t, ok)
}
