// Package archive exports a content tree as a zstd-compressed tar stream and restores it.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/javanhut/fxstore/internal/fsutil"
	"github.com/javanhut/fxstore/internal/tree"
)

// Ext is the conventional file extension of an export.
const Ext = ".tar.zst"

var ErrUnsafePath = errors.New("archive entry escapes destination")

// Stats summarizes an archive operation.
type Stats struct {
	Dirs  int
	Files int
	Bytes int64
}

// Write streams root, its auxiliary files and every descendant to w. Entry names are
// relative to root. Nodes whose files are missing are skipped.
func Write(ctx context.Context, root *tree.Node, w io.Writer) (Stats, error) {
	var st Stats
	if !root.DiskBacked() {
		return st, errors.New("archive source must be a tree on disk")
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return st, err
	}
	tw := tar.NewWriter(zw)
	base := root.Path()

	err = root.Walk(func(n *tree.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var files []string
		if n.Kind() == tree.KindFolder {
			if n != root {
				if err := addDir(tw, base, n.Path()); err != nil {
					return err
				}
				st.Dirs++
			}
			for _, name := range n.AuxFiles() {
				files = append(files, filepath.Join(n.Path(), name))
			}
		} else {
			files = append(files, n.Path())
			for _, name := range n.AuxFiles() {
				files = append(files, filepath.Join(filepath.Dir(n.Path()), name))
			}
		}
		for _, f := range files {
			n, err := addFile(tw, base, f)
			if err != nil {
				return err
			}
			if n >= 0 {
				st.Files++
				st.Bytes += n
			}
		}
		return nil
	})
	if err != nil {
		tw.Close()
		zw.Close()
		return st, err
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return st, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return st, fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return st, nil
}

func entryName(base, p string) (string, error) {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func addDir(tw *tar.Writer, base, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return nil
	}
	name, err := entryName(base, dir)
	if err != nil {
		return err
	}
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Format:   tar.FormatPAX,
		Name:     name + "/",
		Mode:     0755,
		ModTime:  info.ModTime(),
	})
}

// addFile returns the number of bytes written, or -1 when the file does not exist.
func addFile(tw *tar.Writer, base, p string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	name, err := entryName(base, p)
	if err != nil {
		return 0, err
	}
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
		Name:     name,
		Mode:     int64(info.Mode().Perm()),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}); err != nil {
		return 0, err
	}
	n, err := io.Copy(tw, f)
	if err != nil {
		return n, fmt.Errorf("failed to archive %s: %w", name, err)
	}
	return n, nil
}

// Extract restores an archive produced by Write into dir. Modification times are kept
// with sub-second precision so restored leaf sidecars stay valid.
func Extract(ctx context.Context, r io.Reader, dir string) (Stats, error) {
	var st Stats
	zr, err := zstd.NewReader(r)
	if err != nil {
		return st, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return st, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return st, err
			}
			st.Dirs++
		case tar.TypeReg:
			if err := fsutil.WriteAtomic(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return st, err
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return st, err
			}
			st.Files++
			st.Bytes += hdr.Size
		default:
			return st, fmt.Errorf("unsupported archive entry %q", hdr.Name)
		}
	}
}

func safeJoin(dir, name string) (string, error) {
	clean := path.Clean("/" + name)
	if name == "" || strings.Contains(name, "\\") || path.IsAbs(name) || clean != "/"+strings.TrimSuffix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean[1:])), nil
}
