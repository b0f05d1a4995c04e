package minipm

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// Config struct. Values holds the raw MINIPM_* settings; defaults, the config
// file, the environment and command-line flags are merged in that order, so
// later layers win.
type Config struct {
	Values map[string]string
}

// Load /etc/minipm.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge MINIPM_* env overrides
	mergeEnvOverrides(cfg)

	return cfg, nil
}

// Merge MINIPM_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "MINIPM_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// initConfig resolves the final path layout and behavior toggles from cfg.
// Every directory hangs off MINIPM_HOME unless overridden individually.
func initConfig(cfg *Config) {
	homeDir = cfg.Values["MINIPM_HOME"]
	if homeDir == "" {
		homeDir = "/var/lib/minipm"
	}

	pathOr := func(key, def string) string {
		if v := cfg.Values[key]; v != "" {
			return v
		}
		return filepath.Join(homeDir, def)
	}

	recipesDir = pathOr("MINIPM_RECIPES", "recipes")
	sourcesDir = pathOr("MINIPM_SOURCES", "sources")
	workDir = pathOr("MINIPM_WORK", "work")
	buildBaseDir = pathOr("MINIPM_BUILD", "build")
	destBaseDir = pathOr("MINIPM_DEST", "dest")
	packagesDir = pathOr("MINIPM_PACKAGES", "packages")
	logsDir = pathOr("MINIPM_LOGS", "logs")
	registryFile = pathOr("MINIPM_REGISTRY", "registry.txt")

	installRoot = cfg.Values["MINIPM_ROOT"]
	if installRoot == "" {
		installRoot = "/"
	}

	prefix = cfg.Values["MINIPM_PREFIX"]
	if prefix == "" {
		prefix = "/usr"
	}

	jobs = runtime.NumCPU()
	if v := cfg.Values["MINIPM_JOBS"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			jobs = n
		}
	}

	compression = cfg.Values["MINIPM_COMPRESS"]
	if compression == "" {
		compression = "gz"
	}

	fakerootTool = cfg.Values["MINIPM_FAKEROOT"]
	if fakerootTool == "" {
		fakerootTool = "fakeroot"
	}

	Debug = cfg.Values["MINIPM_DEBUG"] == "1"
	Verbose = cfg.Values["MINIPM_VERBOSE"] == "1"
	Quiet = cfg.Values["MINIPM_QUIET"] == "1"

	// Spinner and color default to on, but only on a real terminal.
	onTTY := term.IsTerminal(int(os.Stdout.Fd()))
	wantSpinner = onTTY && cfg.Values["MINIPM_SPINNER"] != "0" && !Quiet
	if cfg.Values["MINIPM_COLOR"] == "0" || !onTTY {
		color.Disable()
	}
}
