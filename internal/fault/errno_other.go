//go:build !unix

package fault

import "syscall"

var errnoNames = map[syscall.Errno]string{
	syscall.ENOENT:       "ENOENT",
	syscall.ENOTDIR:      "ENOTDIR",
	syscall.ELOOP:        "ELOOP",
	syscall.EACCES:       "EACCES",
	syscall.EINVAL:       "EINVAL",
	syscall.ENAMETOOLONG: "ENAMETOOLONG",
}

func errnoName(errno syscall.Errno) string {
	return errnoNames[errno]
}
