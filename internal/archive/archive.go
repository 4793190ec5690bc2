// Package archive builds and extracts the POSIX tar streams used by the
// docker executor's copy_in/copy_out contract (spec §4.5): a tar stream
// preserving relative structure, modes, and symlink targets, piped
// directly to and from the container CLI subprocess.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stepchowfun/toast/internal/pathcollector"
)

// WriteTar streams entries (already in the deterministic order produced
// by pathcollector.Collect) as a POSIX tar archive to w.
func WriteTar(w io.Writer, entries []pathcollector.Entry) error {
	tw := tar.NewWriter(w)

	for _, e := range entries {
		name := string(e.RelPath)

		switch e.Kind {
		case pathcollector.KindDirectory:
			hdr := &tar.Header{
				Name:     name + "/",
				Typeflag: tar.TypeDir,
				Mode:     int64(e.Mode),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return fmt.Errorf("failed to write tar header for %q: %w", name, err)
			}

		case pathcollector.KindSymlink:
			hdr := &tar.Header{
				Name:     name,
				Typeflag: tar.TypeSymlink,
				Linkname: string(e.LinkTarget),
				Mode:     int64(0o777),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return fmt.Errorf("failed to write tar header for %q: %w", name, err)
			}

		default:
			hdr := &tar.Header{
				Name:     name,
				Typeflag: tar.TypeReg,
				Mode:     int64(e.Mode),
				Size:     int64(len(e.Content)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return fmt.Errorf("failed to write tar header for %q: %w", name, err)
			}
			if _, err := tw.Write(e.Content); err != nil {
				return fmt.Errorf("failed to write tar content for %q: %w", name, err)
			}
		}
	}

	return tw.Close()
}

// ExtractTar extracts a tar stream read from r into destDir, which must
// already exist. It's used to stage copy_out's output into a temporary
// directory before entries are atomically moved to their final host
// paths (spec §4.6 phase 7).
func ExtractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}

		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}

		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
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
		}
	}
}

// MoveTree relocates every entry under srcDir to the same relative path
// under dstRoot, preferring a rename and falling back to copy-then-remove
// when the move straddles filesystems (spec §4.6 phase 7).
func MoveTree(srcDir, dstRoot string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		dst := filepath.Join(dstRoot, rel)

		if info.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}

		if err := os.Rename(path, dst); err != nil {
			if err := copyThenRemove(path, dst, info); err != nil {
				return fmt.Errorf("failed to move %q to %q: %w", path, dst, err)
			}
		}

		return nil
	})
}

func copyThenRemove(src, dst string, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(dst)
		if err := os.Symlink(target, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(src)
}
