package minipm

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// workDirFor is the per-recipe scratch dir the build runs in.
func workDirFor(name string) string {
	return filepath.Join(workDir, name)
}

// extractSource populates work/<name> from the cached source, replacing any
// previous content. Git checkouts are copied; archives are unpacked and a
// lone top-level directory is collapsed away.
func extractSource(r *Recipe) error {
	dst := workDirFor(r.Name)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	src := sourcePath(r)
	if r.Git != "" {
		return copyTree(src, dst)
	}

	if !looksLikeArchive(src) {
		return fmt.Errorf("don't know how to extract %s", filepath.Base(src))
	}
	if err := extractArchive(src, dst); err != nil {
		return err
	}
	return collapseSingleDir(dst)
}

// copyTree mirrors a directory with cp -a, keeping modes and symlinks. The
// .git dir comes along; builds that care can ignore it.
func copyTree(src, dst string) error {
	cmd := exec.Command("cp", "-a", src+"/.", dst)
	if err := UserExec.Run(cmd); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// extractArchive prefers the system tar, which handles every compressor we
// care about, and falls back to pure-Go readers when tar is absent.
func extractArchive(archive, dst string) error {
	if _, err := exec.LookPath("tar"); err == nil && !strings.HasSuffix(archive, ".zip") {
		cmd := exec.Command("tar", "-xf", archive, "-C", dst)
		if err := UserExec.Run(cmd); err == nil {
			return nil
		}
		debugf("system tar failed on %s, using native extractor", archive)
	}
	return nativeExtract(archive, dst)
}

func nativeExtract(archive, dst string) error {
	if strings.HasSuffix(archive, ".zip") {
		return extractZip(archive, dst)
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", archive, err)
	}
	defer f.Close()

	var reader io.Reader
	switch {
	case strings.HasSuffix(archive, ".tar.gz"), strings.HasSuffix(archive, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	case strings.HasSuffix(archive, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read xz stream: %w", err)
		}
		reader = xr
	case strings.HasSuffix(archive, ".tar.bz2"):
		reader = bzip2.NewReader(f)
	case strings.HasSuffix(archive, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read zstd stream: %w", err)
		}
		defer zr.Close()
		reader = zr
	case strings.HasSuffix(archive, ".tar"):
		reader = f
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(archive))
	}

	return untar(reader, dst)
}

// untar writes a tar stream under dst, rejecting entries that would escape
// it. Hardlinks are resolved within the extraction root.
func untar(r io.Reader, dst string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		target, err := safeJoin(dst, hdr.Name)
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
			link, err := safeJoin(dst, hdr.Linkname)
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
			debugf("skipping tar entry %s (type %d)", hdr.Name, hdr.Typeflag)
		}
	}
}

func extractZip(archive, dst string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open zip %s: %w", archive, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode()&os.ModePerm)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin joins an archive member name under root and errors on traversal.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, name)
	if !strings.HasPrefix(target, filepath.Clean(root)+string(os.PathSeparator)) && target != filepath.Clean(root) {
		return "", fmt.Errorf("archive entry escapes extraction dir: %s", name)
	}
	return target, nil
}

// collapseSingleDir hoists the contents of a lone top-level directory so the
// build always starts at the source root, matching the common
// name-version/ tarball layout.
func collapseSingleDir(dst string) error {
	entries, err := os.ReadDir(dst)
	if err != nil {
		return err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	inner := filepath.Join(dst, entries[0].Name())
	children, err := os.ReadDir(inner)
	if err != nil {
		return err
	}
	for _, c := range children {
		// Renaming inner/x to dst/x can collide only if the tarball
		// contained a dir named after itself; fail loudly then.
		if err := os.Rename(filepath.Join(inner, c.Name()), filepath.Join(dst, c.Name())); err != nil {
			return fmt.Errorf("failed to collapse %s: %w", inner, err)
		}
	}
	return os.Remove(inner)
}
