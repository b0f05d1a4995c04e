package minipm

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// A recipe is a trusted POSIX shell fragment. It must set NAME and VERSION,
// exactly one of URL or GIT, and may set SHA256, DEPENDS and override the
// configure/build/install functions. Evaluating it runs arbitrary code; that
// is the accepted trust boundary, the same one the build scripts live on.

// HookKind says whether a lifecycle step comes from the recipe or from the
// built-in default.
type HookKind int

const (
	HookDefault HookKind = iota
	HookCustom
)

// Hook is one lifecycle slot (configure, build or install).
type Hook struct {
	Kind HookKind
	Name string // shell function name when custom
}

// Recipe is the parsed contract of one recipe file.
type Recipe struct {
	Name    string
	Version string
	URL     string
	Git     string
	SHA256  string
	Depends []string // informational only, never interpreted
	Path    string   // the recipe file itself

	Configure Hook
	Build     Hook
	Install   Hook
}

// recipePath derives the deterministic file location for a recipe name.
func recipePath(name string) string {
	return filepath.Join(recipesDir, name+".recipe")
}

// introspection trailer appended to the recipe fragment. The sentinel line
// separates any output the recipe itself produced from ours.
const recipeTrailer = `
printf '\n__MINIPM__\n'
printf 'NAME\t%s\n' "$NAME"
printf 'VERSION\t%s\n' "$VERSION"
printf 'URL\t%s\n' "$URL"
printf 'GIT\t%s\n' "$GIT"
printf 'SHA256\t%s\n' "$SHA256"
printf 'DEPENDS\t%s\n' "$DEPENDS"
for fn in configure build install; do
	case "$(type "$fn" 2>/dev/null)" in
	*function*) printf 'HOOK\t%s\n' "$fn" ;;
	esac
done
`

// loadRecipe locates and evaluates a recipe. The fragment runs in a fresh
// shell with PREFIX and JOBS preseeded; DESTDIR is assigned later, per build.
func loadRecipe(name string) (*Recipe, error) {
	path := recipePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errRecipeNotFound, name)
		}
		return nil, fmt.Errorf("failed to read recipe %s: %w", path, err)
	}

	cmd := exec.Command("sh", "-e")
	cmd.Stdin = strings.NewReader(string(data) + recipeTrailer)
	cmd.Env = append(os.Environ(),
		"PREFIX="+prefix,
		"JOBS="+strconv.Itoa(jobs),
		// Blank these so stray caller environment never leaks into fields
		// the recipe did not set.
		"NAME=", "VERSION=", "URL=", "GIT=", "SHA256=", "DEPENDS=", "DESTDIR=",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("recipe %s failed to evaluate: %w", name, err)
	}

	r := &Recipe{
		Path:      path,
		Configure: Hook{Kind: HookDefault},
		Build:     Hook{Kind: HookDefault},
		Install:   Hook{Kind: HookDefault},
	}

	inTrailer := false
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "__MINIPM__" {
			inTrailer = true
			continue
		}
		if !inTrailer {
			continue
		}
		key, val, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		switch key {
		case "NAME":
			r.Name = val
		case "VERSION":
			r.Version = val
		case "URL":
			r.URL = val
		case "GIT":
			r.Git = val
		case "SHA256":
			r.SHA256 = val
		case "DEPENDS":
			r.Depends = strings.Fields(val)
		case "HOOK":
			h := Hook{Kind: HookCustom, Name: val}
			switch val {
			case "configure":
				r.Configure = h
			case "build":
				r.Build = h
			case "install":
				r.Install = h
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse recipe output: %w", err)
	}

	if r.Name == "" {
		return nil, fmt.Errorf("recipe %s does not define NAME", name)
	}
	if r.Version == "" {
		return nil, fmt.Errorf("recipe %s does not define VERSION", name)
	}
	if r.Name != name {
		debugf("recipe file %s declares NAME=%s\n", path, r.Name)
	}

	return r, nil
}

// patchDir is the per-recipe directory of unified diffs applied before configure.
func patchDir(name string) string {
	return filepath.Join(recipesDir, name+".patches")
}

// artifactName is the packaging convention for one build's output tarball.
func (r *Recipe) artifactName() string {
	return fmt.Sprintf("%s-%s.tar.%s", r.Name, r.Version, compression)
}
