package resolve

import "github.com/pathcanon/pathcanon/internal/normalize"

type root struct {
	device   string
	end      int
	absolute bool
}

// parseRoot splits a drive letter or UNC share off the front of path.
//
//	C:\dir          device "C:", absolute
//	C:dir           device "C:", drive-relative
//	\\host\share\x  device "\\host\share", absolute
//	\dir            no device, absolute
func parseRoot(path string, g normalize.Grammar) root {
	var r root
	if len(path) == 0 {
		return r
	}
	c := path[0]

	if len(path) == 1 {
		if g.IsSeparator(c) {
			r.end = 1
			r.absolute = true
		}
		return r
	}

	switch {
	case g.IsSeparator(c):
		r.absolute = true
		if !g.IsSeparator(path[1]) {
			r.end = 1
			return r
		}
		if device, end, ok := parseUNC(path, g); ok {
			r.device = device
			r.end = end
		}
	case isDriveLetter(c) && path[1] == ':':
		r.device = path[:2]
		r.end = 2
		if len(path) > 2 && g.IsSeparator(path[2]) {
			r.absolute = true
			r.end = 3
		}
	}
	return r
}

// parseUNC matches \\host\share at the start of path. A leading double
// separator without a share is not a device.
func parseUNC(path string, g normalize.Grammar) (string, int, bool) {
	n := len(path)
	j := 2
	for j < n && !g.IsSeparator(path[j]) {
		j++
	}
	if j == n || j == 2 {
		return "", 0, false
	}
	host := path[2:j]

	last := j
	for j < n && g.IsSeparator(path[j]) {
		j++
	}
	if j == n || j == last {
		return "", 0, false
	}

	last = j
	for j < n && !g.IsSeparator(path[j]) {
		j++
	}
	share := path[last:j]

	device := make([]byte, 0, 3+len(host)+len(share))
	device = append(device, g.Separator, g.Separator)
	device = append(device, host...)
	device = append(device, g.Separator)
	device = append(device, share...)
	return string(device), j, true
}

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
