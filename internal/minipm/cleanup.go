package minipm

import (
	"fmt"
	"os"
	"path/filepath"
)

// cleanScratch removes the per-recipe work, build and dest dirs. Sources,
// packages, logs and the registry are never touched by clean.
func cleanScratch(name string) error {
	for _, base := range []string{workDir, buildBaseDir, destBaseDir} {
		dir := filepath.Join(base, name)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	cPrintf(colInfo, "=> Cleaned scratch dirs for %s.\n", name)
	return nil
}

// cleanAll wipes and recreates the scratch trees wholesale.
func cleanAll() error {
	for _, base := range []string{workDir, buildBaseDir, destBaseDir} {
		if err := os.RemoveAll(base); err != nil {
			return fmt.Errorf("failed to remove %s: %w", base, err)
		}
		if err := os.MkdirAll(base, 0o755); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", base, err)
		}
	}
	cPrintf(colInfo, "=> Cleaned all scratch dirs.\n")
	return nil
}
