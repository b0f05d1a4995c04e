package minipm

import (
	"fmt"
	"os"
	"path/filepath"
)

// initTree creates the directory skeleton and an empty registry. Safe to run
// on a partially initialized tree; existing content is left alone.
func initTree() error {
	dirs := []string{
		sourcesDir, workDir, buildBaseDir, destBaseDir,
		packagesDir, logsDir, recipesDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}

	// Touch the registry without truncating an existing one.
	f, err := os.OpenFile(registryFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create registry %s: %w", registryFile, err)
	}
	f.Close()

	colArrow.Print("-> ")
	colSuccess.Printf("Initialized minipm tree in %s\n", homeDir)
	return nil
}

// newRecipe scaffolds a recipe file with default lifecycle hooks. It refuses
// to overwrite an existing recipe.
func newRecipe(name, version, url, sha256 string) error {
	path := recipePath(name)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("recipe %s already exists at %s", name, path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create recipes dir: %w", err)
	}

	content := fmt.Sprintf(`# %s recipe
NAME=%s
VERSION=%s
`, name, name, version)
	if url != "" {
		content += fmt.Sprintf("URL=%s\n", url)
	} else {
		content += "# URL=https://example.org/src.tar.gz  (or GIT=https://...)\n"
	}
	if sha256 != "" {
		content += fmt.Sprintf("SHA256=%s\n", sha256)
	}
	content += `# DEPENDS="dep1 dep2"  (informational only)

configure() {
	./configure --prefix="$PREFIX"
}

build() {
	make -j"$JOBS"
}

install() {
	make install DESTDIR="$DESTDIR"
}
`

	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("failed to create recipe file: %w", err)
	}

	cPrintf(colInfo, "=> Created recipe %s.\n", path)
	return nil
}
