package minipm

import (
	"archive/tar"
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

// createPackageTarball packs the staged install tree into
// packages/<name>-<version>.tar.<comp>, forcing root ownership so the
// artifact installs identically for any builder.
func createPackageTarball(r *Recipe, stageDir string) (string, error) {
	if err := os.MkdirAll(packagesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create packages dir: %w", err)
	}
	out := filepath.Join(packagesDir, r.artifactName())
	tmp := out + ".part"
	defer os.Remove(tmp)

	if _, err := exec.LookPath("tar"); err == nil {
		flag, ok := tarCompressFlag(compression)
		if ok {
			cmd := exec.Command("tar", flag, "--owner=0", "--group=0", "--numeric-owner",
				"-cf", tmp, "-C", stageDir, ".")
			if err := FakerootExec.Run(cmd); err == nil {
				return out, os.Rename(tmp, out)
			}
			debugf("system tar failed packaging %s, using native writer", r.Name)
		}
	}

	if err := nativeTarball(stageDir, tmp); err != nil {
		return "", err
	}
	return out, os.Rename(tmp, out)
}

func tarCompressFlag(comp string) (string, bool) {
	switch comp {
	case "gz":
		return "-z", true
	case "xz":
		return "-J", true
	case "zst":
		return "--zstd", true
	}
	return "", false
}

// nativeTarball writes a compressed tar of stageDir with every entry owned
// by uid/gid 0 regardless of on-disk ownership.
func nativeTarball(stageDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	var w io.WriteCloser
	switch compression {
	case "gz":
		w = pgzip.NewWriter(f)
	case "xz":
		xw, err := xz.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to init xz writer: %w", err)
		}
		w = xw
	case "zst":
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to init zstd writer: %w", err)
		}
		w = zw
	default:
		return fmt.Errorf("unsupported compression %q", compression)
	}

	tw := tar.NewWriter(w)
	err = filepath.Walk(stageDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stageDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = "./" + filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			src, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, src)
			src.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}

// packageReader wraps an artifact in the matching decompressor.
func packageReader(f *os.File, name string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(name, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() {}, nil
	case strings.HasSuffix(name, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported package format: %s", name)
}
