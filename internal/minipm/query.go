package minipm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// listRecipes prints every known recipe with its version, and marks the
// ones that have a build on record.
func listRecipes() error {
	names, err := recipeNames()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		cPrintf(colInfo, "=> No recipes found in %s.\n", recipesDir)
		return nil
	}

	entries, err := readRegistry()
	if err != nil {
		return err
	}

	for _, name := range names {
		r, err := loadRecipe(name)
		if err != nil {
			cPrintf(colWarn, "%-24s (broken recipe: %v)\n", name, err)
			continue
		}
		if b := latestBuild(entries, name); b != nil {
			colSuccess.Printf("%-24s %-12s built %s\n", r.Name, r.Version, b.When.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Printf("%-24s %s\n", r.Name, r.Version)
		}
	}
	return nil
}

// searchRecipes lists recipes whose name contains the term.
func searchRecipes(term string) error {
	names, err := recipeNames()
	if err != nil {
		return err
	}
	term = strings.ToLower(term)
	found := false
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), term) {
			fmt.Println(name)
			found = true
		}
	}
	if !found {
		cPrintf(colInfo, "=> No recipe matches %q.\n", term)
	}
	return nil
}

// showInfo prints a recipe's metadata alongside its cache and build state.
func showInfo(name string) error {
	r, err := loadRecipe(name)
	if err != nil {
		return err
	}

	colNote.Printf("%s %s\n", r.Name, r.Version)
	fmt.Printf("  recipe:   %s\n", r.Path)
	if r.Git != "" {
		fmt.Printf("  git:      %s\n", r.Git)
	} else if r.URL != "" {
		fmt.Printf("  url:      %s\n", r.URL)
	}
	if r.SHA256 != "" {
		fmt.Printf("  sha256:   %s\n", r.SHA256)
	}
	if len(r.Depends) > 0 {
		fmt.Printf("  depends:  %s\n", strings.Join(r.Depends, " "))
	}
	for _, h := range []struct {
		phase string
		hook  Hook
	}{{"configure", r.Configure}, {"build", r.Build}, {"install", r.Install}} {
		kind := "default"
		if h.hook.Kind == HookCustom {
			kind = "custom"
		}
		fmt.Printf("  %-9s %s\n", h.phase+":", kind)
	}

	if _, err := os.Stat(sourcePath(r)); err == nil {
		fmt.Printf("  source:   cached (%s)\n", sourcePath(r))
	} else {
		fmt.Printf("  source:   not fetched\n")
	}

	entries, err := readRegistry()
	if err != nil {
		return err
	}
	if b := latestBuild(entries, name); b != nil {
		fmt.Printf("  built:    %s %s (%s)\n", b.Version, b.When.Local().Format(time.RFC1123), b.Artifact)
	} else {
		fmt.Printf("  built:    never\n")
	}
	return nil
}

// showHistory prints every build of a package in chronological order.
func showHistory(name string) error {
	entries, err := readRegistry()
	if err != nil {
		return err
	}
	found := false
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		fmt.Printf("%s  %-12s %s\n", e.When.Local().Format("2006-01-02 15:04:05"), e.Version, e.Artifact)
		found = true
	}
	if !found {
		cPrintf(colInfo, "=> %s has never been built.\n", name)
	}
	return nil
}

// recipeNames enumerates *.recipe files, sorted.
func recipeNames() ([]string, error) {
	entries, err := os.ReadDir(recipesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recipes dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".recipe") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".recipe"))
	}
	sort.Strings(names)
	return names, nil
}
