package minipm

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// sourcePath returns where the fetched source of a recipe lives: a file for
// URL recipes, a directory for GIT recipes.
func sourcePath(r *Recipe) string {
	if r.Git != "" {
		return filepath.Join(sourcesDir, r.Name)
	}
	return filepath.Join(sourcesDir, filepath.Base(r.URL))
}

// lockSources takes an exclusive advisory lock on the sources dir so
// concurrent fetches of the same recipe do not clobber each other. The
// returned release func is safe to call once.
func lockSources() (func(), error) {
	if err := os.MkdirAll(sourcesDir, 0o755); err != nil {
		return nil, err
	}
	lf, err := os.OpenFile(filepath.Join(sourcesDir, ".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sources lock: %w", err)
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		lf.Close()
		return nil, fmt.Errorf("failed to lock sources dir: %w", err)
	}
	return func() {
		unix.Flock(int(lf.Fd()), unix.LOCK_UN)
		lf.Close()
	}, nil
}

// fetchSource obtains the recipe's source into the cache. Cached tarballs
// whose checksum matches are kept; git checkouts are updated in place.
func fetchSource(r *Recipe) error {
	unlock, err := lockSources()
	if err != nil {
		return err
	}
	defer unlock()

	switch {
	case r.Git != "" && r.URL != "":
		return fmt.Errorf("recipe %s declares both URL and GIT; exactly one is required", r.Name)
	case r.Git != "":
		return fetchGit(r)
	case r.URL != "":
		return fetchTarball(r)
	}
	return fmt.Errorf("recipe %s has neither URL nor GIT", r.Name)
}

func fetchTarball(r *Recipe) error {
	dest := sourcePath(r)

	if _, err := os.Stat(dest); err == nil {
		if r.SHA256 == "" {
			debugf("%s already cached, no checksum to verify", dest)
			return nil
		}
		// The checksum covers the cached file, and a mismatch is fatal.
		// The bad file is left in place so it can be inspected or removed
		// by hand.
		if err := verifyChecksum(dest, r.SHA256); err != nil {
			return err
		}
		cPrintf(colInfo, "=> %s already cached and verified.\n", filepath.Base(dest))
		return nil
	}

	colArrow.Print("-> ")
	colNote.Printf("Downloading %s\n", r.URL)
	if err := downloadFile(r.URL, dest); err != nil {
		return err
	}

	if r.SHA256 != "" {
		if err := verifyChecksum(dest, r.SHA256); err != nil {
			os.Remove(dest)
			return err
		}
	}
	return nil
}

// downloadFile tries curl, then wget, then a plain HTTP GET. Partial
// downloads are written to a .part file and renamed on success.
func downloadFile(url, dest string) error {
	part := dest + ".part"
	defer os.Remove(part)

	if _, err := exec.LookPath("curl"); err == nil {
		cmd := exec.Command("curl", "-L", "--fail", "--retry", "3", "-o", part, url)
		if err := UserExec.Run(cmd); err == nil {
			return os.Rename(part, dest)
		}
		debugf("curl failed for %s, trying wget", url)
	}
	if _, err := exec.LookPath("wget"); err == nil {
		cmd := exec.Command("wget", "-O", part, url)
		if err := UserExec.Run(cmd); err == nil {
			return os.Rename(part, dest)
		}
		debugf("wget failed for %s, trying native download", url)
	}
	if err := nativeDownload(url, part); err != nil {
		return fmt.Errorf("download failed for %s: %w", url, err)
	}
	return os.Rename(part, dest)
}

func nativeDownload(url, dest string) error {
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// fetchGit clones the repository shallowly on first fetch and updates an
// existing checkout in place afterwards.
func fetchGit(r *Recipe) error {
	dest := sourcePath(r)

	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		colArrow.Print("-> ")
		colNote.Printf("Updating %s checkout\n", r.Name)
		fetch := exec.Command("git", "-C", dest, "fetch", "--all", "--tags")
		if err := UserExec.Run(fetch); err != nil {
			return fmt.Errorf("git fetch failed for %s: %w", r.Name, err)
		}
		reset := exec.Command("git", "-C", dest, "reset", "--hard", "origin/HEAD")
		if err := UserExec.Run(reset); err != nil {
			debugf("git reset failed for %s, falling back to pull", r.Name)
			pull := exec.Command("git", "-C", dest, "pull", "--rebase")
			if err := UserExec.Run(pull); err != nil {
				return fmt.Errorf("git update failed for %s: %w", r.Name, err)
			}
		}
		return nil
	}

	colArrow.Print("-> ")
	colNote.Printf("Cloning %s\n", r.Git)
	os.RemoveAll(dest)
	cmd := exec.Command("git", "clone", "--depth", "1", r.Git, dest)
	if err := UserExec.Run(cmd); err != nil {
		return fmt.Errorf("git clone failed for %s: %w", r.Git, err)
	}
	return nil
}

// looksLikeArchive reports whether the extractor knows the file's suffix.
func looksLikeArchive(name string) bool {
	for _, suf := range []string{
		".tar.gz", ".tgz", ".tar.xz", ".tar.bz2", ".tar.zst", ".tar", ".zip",
	} {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}
