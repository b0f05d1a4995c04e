package minipm

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// buildDirFor is the out-of-tree build scratch dir, exported as $BUILD.
func buildDirFor(name string) string {
	return filepath.Join(buildBaseDir, name)
}

// destDirFor is the staged install root, exported as $DESTDIR.
func destDirFor(name string) string {
	return filepath.Join(destBaseDir, name)
}

func logFileFor(name string) string {
	return filepath.Join(logsDir, name+".log")
}

// buildPackage runs the whole pipeline for one recipe: fetch, extract,
// patch, configure, build, staged install under fakeroot, package, register.
// Nothing is registered until the artifact exists on disk.
func buildPackage(name string) error {
	r, err := loadRecipe(name)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colNote.Printf("Building %s %s\n", r.Name, r.Version)

	if err := watchStep(fmt.Sprintf("Fetching %s", r.Name), func() error {
		return fetchSource(r)
	}); err != nil {
		return err
	}
	if err := watchStep(fmt.Sprintf("Extracting %s", r.Name), func() error {
		return extractSource(r)
	}); err != nil {
		return err
	}

	for _, dir := range []string{buildDirFor(r.Name), destDirFor(r.Name)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	logPath := logFileFor(r.Name)
	logf, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create build log: %w", err)
	}
	defer logf.Close()

	if err := applyPatches(r, logf); err != nil {
		return buildFailure(r.Name, "patch", logPath, err)
	}

	steps := []struct {
		phase    string
		hook     Hook
		fakeroot bool
	}{
		{"configure", r.Configure, false},
		{"build", r.Build, false},
		{"install", r.Install, true},
	}
	for _, s := range steps {
		script := hookScript(r, s.phase, s.hook)
		desc := fmt.Sprintf("%s: %s", r.Name, s.phase)
		err := watchStep(desc, func() error {
			return runHook(r, script, s.fakeroot, logf)
		})
		if err != nil {
			return buildFailure(r.Name, s.phase, logPath, err)
		}
		cPrintf(colInfo, "=> %s %s done.\n", r.Name, s.phase)
	}

	// From here on a Ctrl+C would leave a built but unregistered package,
	// so only a second one interrupts.
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)

	artifact, err := watchStepPath(fmt.Sprintf("Packaging %s", r.Name), func() (string, error) {
		return createPackageTarball(r, destDirFor(r.Name))
	})
	if err != nil {
		return buildFailure(r.Name, "package", logPath, err)
	}

	// Record the artifact relative to the tree root so the registry stays
	// valid if the whole tree is moved.
	recorded := artifact
	if rel, err := filepath.Rel(homeDir, artifact); err == nil && !strings.HasPrefix(rel, "..") {
		recorded = rel
	}
	if err := appendRegistry(RegistryEntry{
		Name:     r.Name,
		Version:  r.Version,
		Artifact: recorded,
		When:     time.Now(),
	}); err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Built %s %s -> %s\n", r.Name, r.Version, artifact)
	return nil
}

// watchStepPath is watchStep for steps that also produce a path.
func watchStepPath(desc string, run func() (string, error)) (string, error) {
	var out string
	err := watchStep(desc, func() error {
		var err error
		out, err = run()
		return err
	})
	return out, err
}

// applyPatches runs every *.patch under recipes/<name>.patches in lexical
// order with patch -p1 from the source root.
func applyPatches(r *Recipe, logf *os.File) error {
	dir := patchDir(r.Name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read patch dir: %w", err)
	}

	var patches []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".patch") {
			patches = append(patches, e.Name())
		}
	}
	sort.Strings(patches)

	for _, p := range patches {
		cPrintf(colInfo, "=> Applying %s.\n", p)
		f, err := os.Open(filepath.Join(dir, p))
		if err != nil {
			return err
		}
		cmd := exec.Command("patch", "-p1")
		cmd.Dir = workDirFor(r.Name)
		cmd.Stdin = f
		cmd.Stdout = logf
		cmd.Stderr = logf
		err = UserExec.Run(cmd)
		f.Close()
		if err != nil {
			return fmt.Errorf("patch %s failed: %w", p, err)
		}
	}
	return nil
}

// hookScript builds the shell fragment for one lifecycle phase. Custom hooks
// source the recipe and call the function; defaults are inlined.
func hookScript(r *Recipe, phase string, h Hook) string {
	if h.Kind == HookCustom {
		return fmt.Sprintf(". %s\n%s\n", shQuote(r.Path), h.Name)
	}
	switch phase {
	case "configure":
		return "if [ -x ./configure ]; then ./configure --prefix=\"$PREFIX\"; fi\n"
	case "build":
		return "make -j\"$JOBS\"\n"
	case "install":
		return "make install DESTDIR=\"$DESTDIR\"\n"
	}
	return ""
}

// runHook executes a phase script with sh -e in the source dir, with the
// usual variables bound. The install phase goes through fakeroot so staged
// files can claim root ownership.
func runHook(r *Recipe, script string, fakeroot bool, logf *os.File) error {
	cmd := exec.Command("sh", "-e")
	cmd.Dir = workDirFor(r.Name)
	cmd.Stdin = strings.NewReader(script)
	cmd.Env = append(os.Environ(),
		"NAME="+r.Name,
		"VERSION="+r.Version,
		"PREFIX="+prefix,
		"JOBS="+strconv.Itoa(jobs),
		"BUILD="+buildDirFor(r.Name),
		"DESTDIR="+destDirFor(r.Name),
	)
	if Verbose {
		cmd.Stdout = io.MultiWriter(os.Stdout, logf)
		cmd.Stderr = io.MultiWriter(os.Stderr, logf)
	} else {
		cmd.Stdout = logf
		cmd.Stderr = logf
	}

	ex := UserExec
	if fakeroot {
		ex = FakerootExec
	}
	return ex.Run(cmd)
}

// buildFailure reports a failed phase with the tail of the build log, which
// is usually enough to see the actual compiler or configure error.
func buildFailure(name, phase, logPath string, err error) error {
	cPrintf(colError, "=> %s failed during %s.\n", name, phase)
	for _, line := range tailLines(logPath, 20) {
		fmt.Fprintln(os.Stderr, "   "+line)
	}
	cPrintf(colNote, "=> Full log: %s\n", logPath)
	return fmt.Errorf("%s: %s step failed: %w", name, phase, err)
}

// tailLines returns up to n trailing lines of a file, best effort.
func tailLines(path string, n int) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// shQuote single-quotes a string for safe interpolation into sh input.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
