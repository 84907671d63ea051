package source

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Extract unpacks the gzipped tarball at archive into dest, stripping
// the first path component of every entry. It returns the number of
// entries written.
func Extract(archive, dest string) (int, error) {
	f, err := os.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("gunzip: %w", err)
	}
	defer gz.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return 0, err
	}
	// Every write goes through ws, which refuses paths that resolve
	// outside dest, symlinks included.
	ws, err := os.OpenRoot(realRoot)
	if err != nil {
		return 0, err
	}
	defer ws.Close()

	tr := tar.NewReader(gz)
	written := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("read tar: %w", err)
		}

		rel, ok := stripComponent(hdr.Name)
		if !ok {
			continue
		}
		name := filepath.FromSlash(rel)
		if !within(realRoot, filepath.Join(realRoot, name)) {
			return written, fmt.Errorf("entry %q escapes workspace", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := ws.MkdirAll(name, 0o755); err != nil {
				return written, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(ws, name, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return written, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := mkdirParent(ws, name); err != nil {
				return written, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
			if !linkWithin(realRoot, filepath.Join(realRoot, name), hdr.Linkname) {
				continue
			}
			if err := ws.Symlink(hdr.Linkname, name); err != nil {
				return written, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
		default:
			// pax global headers, hard links, devices
			continue
		}
		written++
	}
}

// stripComponent drops the leading directory GitHub wraps every tarball
// entry in. Entries that are only that directory yield ok=false.
func stripComponent(name string) (string, bool) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	_, rest, ok := strings.Cut(name, "/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// linkWithin reports whether a symlink at target pointing to link
// stays inside root once the links already on disk are followed.
func linkWithin(root, target, link string) bool {
	if filepath.IsAbs(link) {
		return false
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil || !within(root, parent) {
		return false
	}
	// Resolve the longest existing prefix on disk, so ".." applies after
	// earlier links, then append the missing remainder lexically.
	parts := strings.Split(filepath.FromSlash(link), string(filepath.Separator))
	resolved := parent
	for i, part := range parts {
		next, err := filepath.EvalSymlinks(resolved + string(filepath.Separator) + part)
		if err != nil {
			resolved = filepath.Join(append([]string{resolved}, parts[i:]...)...)
			break
		}
		resolved = next
	}
	return within(root, resolved)
}

func mkdirParent(ws *os.Root, name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	return ws.MkdirAll(dir, 0o755)
}

func writeFile(ws *os.Root, name string, r io.Reader, perm os.FileMode) error {
	if err := mkdirParent(ws, name); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := ws.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
