package minipm

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gookit/color"
)

// Main is the real entry point; the root main package is a stub around it.
func Main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("minipm", flag.ExitOnError)
	fs.Usage = printHelp
	quiet := fs.Bool("q", false, "suppress progress output")
	verbose := fs.Bool("v", false, "stream build output to the terminal")
	dbg := fs.Bool("d", false, "enable debug output")
	noColor := fs.Bool("nocolor", false, "disable colored output")
	noSpinner := fs.Bool("nospinner", false, "disable the progress spinner")
	jobsFlag := fs.Int("j", 0, "parallel make jobs (default: CPU count)")
	home := fs.String("C", "", "package tree root (default /var/lib/minipm)")
	fs.Parse(os.Args[1:])

	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minipm: failed to read %s: %v\n", ConfigFile, err)
		return 1
	}

	// Flags beat the config file and the environment.
	if *home != "" {
		cfg.Values["MINIPM_HOME"] = *home
	}
	if *jobsFlag > 0 {
		cfg.Values["MINIPM_JOBS"] = strconv.Itoa(*jobsFlag)
	}
	if *quiet {
		cfg.Values["MINIPM_QUIET"] = "1"
	}
	if *verbose {
		cfg.Values["MINIPM_VERBOSE"] = "1"
	}
	if *dbg {
		cfg.Values["MINIPM_DEBUG"] = "1"
	}
	if *noColor {
		cfg.Values["MINIPM_COLOR"] = "0"
	}
	if *noSpinner {
		cfg.Values["MINIPM_SPINNER"] = "0"
	}
	initConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		warned := false
		for sig := range sigs {
			if isCriticalAtomic.Load() == 1 && !warned {
				cPrintf(colWarn, "\n=> Finishing critical step; interrupt again to force quit.\n")
				warned = true
				continue
			}
			debugf("received %v, shutting down", sig)
			cancel()
			// Give in-flight commands a moment to die with the
			// process group, then bail.
			os.Exit(1)
		}
	}()

	UserExec = &Executor{Context: ctx}
	FakerootExec = &Executor{Context: ctx, UseFakeroot: true}

	args := fs.Args()
	if len(args) == 0 {
		printHelp()
		return 1
	}

	cmd, rest := args[0], args[1:]
	if err := dispatch(cmd, rest); err != nil {
		cPrintf(colError, "minipm: %v\n", err)
		return 1
	}
	return 0
}

func dispatch(cmd string, args []string) error {
	switch cmd {
	case "init":
		return initTree()

	case "new":
		if len(args) < 2 || len(args) > 4 {
			return fmt.Errorf("usage: minipm new NAME VERSION [URL] [SHA256]")
		}
		url, sha := "", ""
		if len(args) > 2 {
			url = args[2]
		}
		if len(args) > 3 {
			sha = args[3]
		}
		return newRecipe(args[0], args[1], url, sha)

	case "fetch":
		r, err := requireRecipe(cmd, args)
		if err != nil {
			return err
		}
		if err := watchStep(fmt.Sprintf("Fetching %s", r.Name), func() error {
			return fetchSource(r)
		}); err != nil {
			return err
		}
		kind := "url"
		if r.Git != "" {
			kind = "git"
		}
		fmt.Printf("%s:%s\n", kind, sourcePath(r))
		return nil

	case "extract":
		r, err := requireRecipe(cmd, args)
		if err != nil {
			return err
		}
		if err := fetchSource(r); err != nil {
			return err
		}
		if err := watchStep(fmt.Sprintf("Extracting %s", r.Name), func() error {
			return extractSource(r)
		}); err != nil {
			return err
		}
		fmt.Println(workDirFor(r.Name))
		return nil

	case "build":
		if len(args) != 1 {
			return fmt.Errorf("usage: minipm build NAME")
		}
		return buildPackage(args[0])

	case "installpkg":
		if len(args) != 1 {
			return fmt.Errorf("usage: minipm installpkg ARCHIVE|NAME")
		}
		return installPackage(args[0])

	case "info":
		if len(args) != 1 {
			return fmt.Errorf("usage: minipm info NAME")
		}
		return showInfo(args[0])

	case "list":
		return listRecipes()

	case "search":
		if len(args) != 1 {
			return fmt.Errorf("usage: minipm search TERM")
		}
		return searchRecipes(args[0])

	case "history":
		if len(args) != 1 {
			return fmt.Errorf("usage: minipm history NAME")
		}
		return showHistory(args[0])

	case "clean":
		if len(args) != 1 {
			return fmt.Errorf("usage: minipm clean NAME|all")
		}
		if args[0] == "all" {
			return cleanAll()
		}
		return cleanScratch(args[0])

	case "logs":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		if code := runLogViewer(name); code != 0 {
			return fmt.Errorf("log viewer exited with status %d", code)
		}
		return nil

	case "version":
		fmt.Printf("minipm %s (%s, built %s)\n", version, arch, buildDate)
		return nil

	case "help", "-h", "--help":
		printHelp()
		return nil
	}
	return fmt.Errorf("unknown command %q (try 'minipm help')", cmd)
}

// requireRecipe parses the single NAME argument commands like fetch take.
func requireRecipe(cmd string, args []string) (*Recipe, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: minipm %s NAME", cmd)
	}
	return loadRecipe(args[0])
}

func printHelp() {
	color.Bold.Println("minipm, a minimal source package builder")
	fmt.Println("\nUsage: minipm [flags] <command> [args]")
	fmt.Println("\nCommands:")
	cmds := []struct{ name, desc string }{
		{"init", "create the package tree and registry"},
		{"new NAME VERSION [URL] [SHA256]", "scaffold a recipe"},
		{"fetch NAME", "download or update the source"},
		{"extract NAME", "unpack the source into the work dir"},
		{"build NAME", "run the full build pipeline"},
		{"installpkg ARCHIVE|NAME", "unpack a package over the root"},
		{"info NAME", "show recipe and build state"},
		{"list", "list recipes and their build status"},
		{"search TERM", "find recipes by name"},
		{"history NAME", "show a package's build history"},
		{"logs [NAME]", "browse build logs"},
		{"clean NAME|all", "remove build scratch dirs"},
		{"version", "print version"},
	}
	for _, c := range cmds {
		colNote.Printf("  %-36s", c.name)
		fmt.Println(c.desc)
	}
	fmt.Println("\nFlags (before the command):")
	fmt.Println("  -C DIR       package tree root (default /var/lib/minipm)")
	fmt.Println("  -j N         parallel make jobs")
	fmt.Println("  -q           quiet    -v  verbose    -d  debug")
	fmt.Println("  -nocolor     plain output")
	fmt.Println("  -nospinner   no progress spinner")
}
