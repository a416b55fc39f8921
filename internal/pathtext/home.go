package pathtext

import (
	"github.com/mitchellh/go-homedir"

	"github.com/pathcanon/pathcanon/internal/fault"
)

// ExpandHome replaces a leading "~" with the current user's home directory.
// Other paths are returned as they are.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	out, err := homedir.Expand(path)
	if err != nil {
		return "", fault.Invalid("expand", path, err)
	}
	return out, nil
}
