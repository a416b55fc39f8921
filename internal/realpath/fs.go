package realpath

// Info is the part of an lstat result the walker needs.
type Info struct {
	Dev     uint64
	Ino     uint64
	Symlink bool
	// HasIdentity is false on platforms without stable (dev, ino) pairs; the
	// link target cache is bypassed for such entries.
	HasIdentity bool
}

// FS is the filesystem the walker observes. Errors are returned as the
// platform reports them and are forwarded to the caller unchanged.
type FS interface {
	// Lstat describes path without following a final symlink.
	Lstat(path string) (Info, error)
	// Access checks that path exists, following symlinks.
	Access(path string) error
	// Readlink returns the raw target text of the symlink at path.
	Readlink(path string) (string, error)
}

type fileID struct {
	dev uint64
	ino uint64
}
