//go:build !unix

package realpath

import (
	"errors"
	"io/fs"
	"os"
)

// OSFS is the host filesystem. File identity is not reported here, so every
// symlink is read on each visit.
type OSFS struct{}

func (OSFS) Lstat(path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Info{}, unwrapPathError(err)
	}
	return Info{Symlink: fi.Mode()&fs.ModeSymlink != 0}, nil
}

func (OSFS) Access(path string) error {
	_, err := os.Stat(path)
	return unwrapPathError(err)
}

func (OSFS) Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	return target, unwrapPathError(err)
}

// unwrapPathError drops the *fs.PathError layer; the walker adds its own.
func unwrapPathError(err error) error {
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return perr.Err
	}
	return err
}
