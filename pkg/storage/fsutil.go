package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// CopyFile copies src to dst on fsys, replacing dst. A partially written dst
// is removed on failure.
func CopyFile(fsys afero.Fs, src, dst string) (err error) {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = fsys.Remove(dst)
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// copyTree recursively copies the directory src to dst. skip, if set, is
// given paths relative to src and excludes matching files.
func copyTree(fsys afero.Fs, src, dst string, skip func(rel string) bool) error {
	return afero.Walk(fsys, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return fsys.MkdirAll(target, 0o755)
		}
		if skip != nil && skip(rel) {
			return nil
		}
		if err := CopyFile(fsys, path, target); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		return nil
	})
}

// treeSize sums the sizes of all regular files under dir.
func treeSize(fsys afero.Fs, dir string) (int64, error) {
	var total int64
	err := afero.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func exists(fsys afero.Fs, path string) bool {
	_, err := fsys.Stat(path)
	return err == nil
}
