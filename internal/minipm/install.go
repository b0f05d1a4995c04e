package minipm

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// installPackage unpacks a built artifact over the install root. The
// argument is either the archive path itself or a package name, resolved to
// its newest registry entry. Installation is plain extraction: a failure
// partway leaves whatever was already written, which is the accepted
// tradeoff for a bootstrap tool.
func installPackage(arg string) error {
	artifact := arg
	if info, err := os.Stat(arg); err != nil || info.IsDir() {
		entries, err := readRegistry()
		if err != nil {
			return err
		}
		entry := latestBuild(entries, arg)
		if entry == nil {
			return fmt.Errorf("no built package found for %s; run build first", arg)
		}
		artifact = entry.Artifact
		if !filepath.IsAbs(artifact) {
			artifact = filepath.Join(homeDir, artifact)
		}
		if _, err := os.Stat(artifact); err != nil {
			return fmt.Errorf("registry names %s but it is missing: %w", artifact, err)
		}
	}

	cPrintf(colWarn, "=> Installing is not transactional; a failure can leave a partial install.\n")
	colArrow.Print("-> ")
	colNote.Printf("Installing %s into %s\n", filepath.Base(artifact), installRoot)

	// A half-written file tree is worse than a delayed Ctrl+C.
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)

	if err := unpackOverRoot(artifact, installRoot); err != nil {
		return fmt.Errorf("failed to install %s: %w", filepath.Base(artifact), err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Installed %s.\n", filepath.Base(artifact))
	return nil
}

// unpackOverRoot extracts an artifact at root, preserving permissions and
// ownership. System tar does this best; the native path handles hosts
// without it.
func unpackOverRoot(artifact, root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if _, err := exec.LookPath("tar"); err == nil {
		cmd := exec.Command("tar", "-xpf", artifact, "-C", root)
		if err := FakerootExec.Run(cmd); err == nil {
			return nil
		}
		debugf("system tar failed installing %s, using native extractor", artifact)
	}
	return nativeInstall(artifact, root)
}

// nativeInstall extracts a package tar stream preserving modes, symlinks,
// ownership and timestamps. Chown failures for non-root users are ignored;
// fakeroot sessions do not span this process anyway.
func nativeInstall(artifact, root string) error {
	f, err := os.Open(artifact)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeFn, err := packageReader(f, filepath.Base(artifact))
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("package read error: %w", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&os.ModePerm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&os.ModePerm)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			link, err := safeJoin(root, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(link, target); err != nil {
				return err
			}
		default:
			debugf("skipping package entry %s (type %d)", hdr.Name, hdr.Typeflag)
			continue
		}

		if hdr.Typeflag != tar.TypeSymlink {
			if err := os.Chtimes(target, hdr.AccessTime, hdr.ModTime); err != nil {
				debugf("chtimes %s: %v", target, err)
			}
		} else {
			tv := []unix.Timeval{
				unix.NsecToTimeval(hdr.AccessTime.UnixNano()),
				unix.NsecToTimeval(hdr.ModTime.UnixNano()),
			}
			if err := unix.Lutimes(target, tv); err != nil {
				debugf("lutimes %s: %v", target, err)
			}
		}
		if os.Geteuid() == 0 {
			if err := unix.Lchown(target, hdr.Uid, hdr.Gid); err != nil {
				debugf("lchown %s: %v", target, err)
			}
		}
	}
}
