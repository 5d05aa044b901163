// Copyright 2020 Nokia
// Licensed under the BSD 3-Clause License.
// SPDX-License-Identifier: BSD-3-Clause

package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FileSpec describes a single file of a group written by WriteFiles.
type FileSpec struct {
	Path    string
	Content []byte
	Perm    os.FileMode
}

// AnyFileExists returns true if at least one of the given paths exists, regardless of its type.
func AnyFileExists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Lstat(p); err == nil {
			return true
		}
	}
	return false
}

// ReadFileContent returns the content of a file. The returned error satisfies
// errors.Is(err, os.ErrNotExist) when the file is absent.
func ReadFileContent(file string) ([]byte, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateDirectory creates a directory by a path with a mode/permission specified by perm.
// If directory exists, the function does not do anything.
func CreateDirectory(path string, perm os.FileMode) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, perm)
	}
	return nil
}

// ExpandPath expands a leading ~ and returns the absolute form of path.
// An empty path resolves to the current working directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	p, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand path %q", path)
	}

	return filepath.Abs(p)
}

// WriteFiles writes a group of files so that either all of them end up on disk or none does.
// Contents are first written to temporary files next to their targets and only then
// moved into place. When overwrite is false an existing target aborts the whole group
// and the returned error satisfies errors.Is(err, os.ErrExist).
func WriteFiles(files []FileSpec, overwrite bool) (err error) {
	if !overwrite {
		for _, f := range files {
			if AnyFileExists(f.Path) {
				return fmt.Errorf("%s: %w", f.Path, os.ErrExist)
			}
		}
	}

	temps := make([]string, 0, len(files))
	defer func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}()

	for _, f := range files {
		tmp, err := writeTemp(f)
		if err != nil {
			return err
		}
		temps = append(temps, tmp)
	}

	placed := make([]string, 0, len(files))
	for i, f := range files {
		log.Debugf("writing %s", f.Path)

		if err := place(temps[i], f.Path, overwrite); err != nil {
			// roll back the targets already placed by this call
			for _, p := range placed {
				_ = os.Remove(p)
			}
			return err
		}
		placed = append(placed, f.Path)
	}

	return nil
}

func writeTemp(f FileSpec) (string, error) {
	dir, base := filepath.Split(f.Path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return "", err
	}

	name := tmp.Name()
	if err := writeAndClose(tmp, f); err != nil {
		_ = os.Remove(name)
		return "", err
	}

	return name, nil
}

func writeAndClose(tmp *os.File, f FileSpec) error {
	if _, err := tmp.Write(f.Content); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Chmod(f.Perm); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}

	return tmp.Close()
}

// place moves the temporary file to its target. Without overwrite a hard link is used,
// which fails atomically when the target appeared in the meantime.
func place(tmp, target string, overwrite bool) error {
	if overwrite {
		return os.Rename(tmp, target)
	}

	if err := os.Link(tmp, target); err != nil {
		return err
	}

	return os.Remove(tmp)
}
