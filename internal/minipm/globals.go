package minipm

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// We use a value of 1 for critical and 0 for non-critical/default.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	homeDir      string
	recipesDir   string
	sourcesDir   string
	workDir      string
	buildBaseDir string
	destBaseDir  string
	packagesDir  string
	logsDir      string
	registryFile string
	installRoot  string
	prefix       string
	jobs         int
	compression  string
	fakerootTool string
	Debug        bool
	Verbose      bool
	Quiet        bool
	wantSpinner  bool
	ConfigFile   = "/etc/minipm.conf"
	version      = "dev"     // overridden at build time
	arch         = runtime.GOARCH
	buildDate    = "unknown" // overridden at build time

	errRecipeNotFound = errors.New("recipe not found")

	// Global executors (assigned in Main)
	UserExec     *Executor
	FakerootExec *Executor
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
