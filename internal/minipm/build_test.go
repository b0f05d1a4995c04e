package minipm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End to end: cached source, custom hooks, package, registry, install.
func TestBuildPackagePipeline(t *testing.T) {
	setupTestTree(t)
	writeRecipe(t, "hello", `
NAME=hello
VERSION=1.0
URL=https://example.invalid/hello-1.0.tar.gz

build() {
	cat hello-1.0/greeting.txt > hello.out
}

install() {
	mkdir -p "$DESTDIR/usr/share/hello"
	cp hello.out "$DESTDIR/usr/share/hello/greeting"
}
`)
	// Pre-seed the cache so no download happens. Two top-level members, so
	// nothing collapses and the hooks see hello-1.0/ as written.
	makeTarGz(t, filepath.Join(sourcesDir, "hello-1.0.tar.gz"), map[string]string{
		"hello-1.0/greeting.txt": "hi there\n",
		"README":                 "top-level\n",
	})

	require.NoError(t, buildPackage("hello"))

	artifact := filepath.Join(packagesDir, "hello-1.0.tar.gz")
	_, err := os.Stat(artifact)
	require.NoError(t, err)

	entries, err := readRegistry()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Name)
	assert.Equal(t, filepath.Join("packages", "hello-1.0.tar.gz"), entries[0].Artifact)

	// The log captured the build output destinations.
	_, err = os.Stat(logFileFor("hello"))
	require.NoError(t, err)

	require.NoError(t, installPackage("hello"))
	data, err := os.ReadFile(filepath.Join(installRoot, "usr", "share", "hello", "greeting"))
	require.NoError(t, err)
	assert.Equal(t, "hi there\n", string(data))

	// Installing by archive path works without consulting the registry.
	other := t.TempDir()
	installRoot = other
	require.NoError(t, installPackage(artifact))
	_, err = os.Stat(filepath.Join(other, "usr", "share", "hello", "greeting"))
	require.NoError(t, err)
}

// Rebuilding the same name/version appends a second registry entry rather
// than replacing the first; the registry is a history, not an index.
func TestBuildPackageTwiceAppendsTwoEntries(t *testing.T) {
	setupTestTree(t)
	writeRecipe(t, "hello", `
NAME=hello
VERSION=1.0
URL=https://example.invalid/hello-1.0.tar.gz

build() {
	:
}

install() {
	mkdir -p "$DESTDIR/usr/share"
	echo hi > "$DESTDIR/usr/share/hello.txt"
}
`)
	makeTarGz(t, filepath.Join(sourcesDir, "hello-1.0.tar.gz"), map[string]string{
		"hello-1.0/README": "hello\n",
	})

	require.NoError(t, buildPackage("hello"))
	require.NoError(t, buildPackage("hello"))

	entries, err := readRegistry()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].Name, entries[1].Name)
	assert.Equal(t, entries[0].Version, entries[1].Version)
	assert.Equal(t, entries[0].Artifact, entries[1].Artifact)

	_, err = os.Stat(filepath.Join(packagesDir, "hello-1.0.tar.gz"))
	require.NoError(t, err)
}

func TestBuildPackageFailureIsNotRegistered(t *testing.T) {
	setupTestTree(t)
	writeRecipe(t, "broken", `
NAME=broken
VERSION=1.0
URL=https://example.invalid/broken-1.0.tar.gz

build() {
	echo "this build explodes" >&2
	false
}

install() {
	:
}
`)
	makeTarGz(t, filepath.Join(sourcesDir, "broken-1.0.tar.gz"), map[string]string{
		"broken-1.0/Makefile": "all:\n",
	})

	err := buildPackage("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build step failed")

	entries, rerr := readRegistry()
	require.NoError(t, rerr)
	assert.Empty(t, entries)

	// The failing command's stderr must be in the log.
	data, err := os.ReadFile(logFileFor("broken"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "this build explodes")
}

func TestBuildAppliesPatchesInOrder(t *testing.T) {
	setupTestTree(t)
	writeRecipe(t, "patched", `
NAME=patched
VERSION=1.0
URL=https://example.invalid/patched-1.0.tar.gz

build() {
	:
}

install() {
	mkdir -p "$DESTDIR/etc"
	cp note.txt "$DESTDIR/etc/note"
}
`)
	makeTarGz(t, filepath.Join(sourcesDir, "patched-1.0.tar.gz"), map[string]string{
		"patched-1.0/note.txt": "original\n",
	})

	dir := patchDir("patched")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// 01 rewrites the file, 02 appends; order matters for the final text.
	p1 := `--- a/note.txt
+++ b/note.txt
@@ -1 +1 @@
-original
+first
`
	p2 := `--- a/note.txt
+++ b/note.txt
@@ -1 +1,2 @@
 first
+second
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-rewrite.patch"), []byte(p1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-append.patch"), []byte(p2), 0o644))

	require.NoError(t, buildPackage("patched"))

	data, err := os.ReadFile(filepath.Join(workDirFor("patched"), "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestHookScript(t *testing.T) {
	setupTestTree(t)
	r := &Recipe{Name: "x", Version: "1", Path: "/recipes/x.recipe"}

	s := hookScript(r, "configure", Hook{Kind: HookDefault})
	assert.Contains(t, s, "./configure --prefix=\"$PREFIX\"")
	assert.Contains(t, s, "if [ -x ./configure ]")

	s = hookScript(r, "build", Hook{Kind: HookDefault})
	assert.Contains(t, s, "make -j\"$JOBS\"")

	s = hookScript(r, "install", Hook{Kind: HookDefault})
	assert.Contains(t, s, "DESTDIR=\"$DESTDIR\"")

	s = hookScript(r, "build", Hook{Kind: HookCustom, Name: "build"})
	assert.Contains(t, s, ". '/recipes/x.recipe'")
	assert.Contains(t, s, "\nbuild\n")
}

func TestInstallPackageUnbuilt(t *testing.T) {
	setupTestTree(t)
	err := installPackage("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run build first")
}

func TestTailLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644))

	assert.Equal(t, []string{"c", "d"}, tailLines(path, 2))
	assert.Equal(t, []string{"a", "b", "c", "d"}, tailLines(path, 10))
	assert.Nil(t, tailLines(filepath.Join(dir, "missing"), 2))
}

func TestShQuote(t *testing.T) {
	assert.Equal(t, "'plain'", shQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shQuote("it's"))
}
