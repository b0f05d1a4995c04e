package minipm

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// RegistryEntry is one line of the build history: a package that finished
// the pipeline and has an artifact on disk.
type RegistryEntry struct {
	Name     string
	Version  string
	Artifact string
	When     time.Time
}

// appendRegistry records a completed build. The line is written with a
// single O_APPEND write so parallel builders interleave whole records.
func appendRegistry(e RegistryEntry) error {
	f, err := os.OpenFile(registryFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%s\t%s\t%s\n",
		e.Name, e.Version, e.Artifact, e.When.UTC().Format(time.RFC3339))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append registry record: %w", err)
	}
	return nil
}

// readRegistry parses the full history in file order. Malformed lines are
// skipped with a debug note rather than failing the whole read.
func readRegistry() ([]RegistryEntry, error) {
	f, err := os.Open(registryFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer f.Close()

	var entries []RegistryEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			debugf("skipping malformed registry line: %q", line)
			continue
		}
		when, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			debugf("skipping registry line with bad timestamp: %q", line)
			continue
		}
		entries = append(entries, RegistryEntry{
			Name:     fields[0],
			Version:  fields[1],
			Artifact: fields[2],
			When:     when,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return entries, nil
}

// latestBuild returns the most recent registry entry for a package, or nil.
func latestBuild(entries []RegistryEntry, name string) *RegistryEntry {
	var last *RegistryEntry
	for i := range entries {
		if entries[i].Name == name {
			last = &entries[i]
		}
	}
	return last
}
