// Package fault classifies resolve and realpath failures.
package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

type Kind string

const (
	KindNameTooLong Kind = "name_too_long"
	KindFilesystem  Kind = "filesystem"
	KindEncoding    Kind = "encoding"
	KindInvalid     Kind = "invalid"
)

var ErrInvalidEncoding = errors.New("invalid character encoding for path")

// Error carries the failing operation and the path it was applied to. Err is
// the collaborator's error, unchanged.
type Error struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func FS(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Kind: KindFilesystem, Err: err}
}

func NameTooLong(op, path string) *Error {
	return &Error{Op: op, Path: path, Kind: KindNameTooLong, Err: syscall.ENAMETOOLONG}
}

func Encoding(op, path string, cause error) *Error {
	err := ErrInvalidEncoding
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidEncoding, cause)
	}
	return &Error{Op: op, Path: path, Kind: KindEncoding, Err: err}
}

func Invalid(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Kind: KindInvalid, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr.Kind
	}
	return ""
}

// Code returns a short errno-style name for err, such as ENOENT or ELOOP.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name := errnoName(errno); name != "" {
			return name
		}
	}
	switch KindOf(err) {
	case KindEncoding, KindInvalid:
		return "EINVAL"
	case KindNameTooLong:
		return "ENAMETOOLONG"
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "ENOENT"
	case errors.Is(err, fs.ErrPermission):
		return "EACCES"
	case errors.Is(err, fs.ErrInvalid):
		return "EINVAL"
	}
	if errno != 0 {
		return fmt.Sprintf("errno %d", uintptr(errno))
	}
	return "UNKNOWN"
}
