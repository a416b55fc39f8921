//go:build unix

package realpath

import "golang.org/x/sys/unix"

// OSFS is the host filesystem.
type OSFS struct{}

func (OSFS) Lstat(path string) (Info, error) {
	var st unix.Stat_t
	if err := ignoringEINTR(func() error { return unix.Lstat(path, &st) }); err != nil {
		return Info{}, err
	}
	return Info{
		Dev:         uint64(st.Dev),
		Ino:         uint64(st.Ino),
		Symlink:     st.Mode&unix.S_IFMT == unix.S_IFLNK,
		HasIdentity: true,
	}, nil
}

func (OSFS) Access(path string) error {
	return ignoringEINTR(func() error { return unix.Access(path, unix.F_OK) })
}

func (OSFS) Readlink(path string) (string, error) {
	for size := 256; ; size *= 2 {
		buf := make([]byte, size)
		var n int
		err := ignoringEINTR(func() error {
			var err error
			n, err = unix.Readlink(path, buf)
			return err
		})
		if err != nil {
			return "", err
		}
		if n < size {
			return string(buf[:n]), nil
		}
	}
}

func ignoringEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}
