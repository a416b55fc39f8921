// Package resolve combines path fragments into one absolute, normalized path
// for either the POSIX or the Windows grammar.
//
// Fragments are evaluated right to left: a later fragment wins over an earlier
// one, and the working directory is consulted only when no fragment is
// absolute. Under the Windows grammar the resolver also tracks a device prefix
// (X: or \\host\share) and skips fragments that belong to another device.
package resolve

import (
	"os"
	"strings"

	"github.com/pathcanon/pathcanon/internal/fault"
	"github.com/pathcanon/pathcanon/internal/normalize"
)

// MaxPath bounds working directory values and drive-local env keys.
const MaxPath = 4096

// Env supplies the working directory and, for the Windows grammar, the
// drive-local working directories stored in "=X:" variables.
type Env interface {
	Getwd() (string, error)
	Getenv(key string) (string, bool)
}

type OSEnv struct{}

func (OSEnv) Getwd() (string, error) {
	return os.Getwd()
}

func (OSEnv) Getenv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Result is a resolved path. DeviceLen is the number of leading bytes that
// form the device prefix. Under the POSIX grammar the root separator is the
// device, so an absolute path reports 1 and a relative one 0.
type Result struct {
	Path      string
	DeviceLen int
	Absolute  bool

	// rootIsDevice marks a device prefix that already includes the root
	// separator.
	rootIsDevice bool
}

func (r Result) Device() string {
	return r.Path[:r.DeviceLen]
}

// RootLen is the length of the root prefix: the device plus the separator
// that follows it when the path is absolute.
func (r Result) RootLen() int {
	if r.Absolute && !r.rootIsDevice {
		return r.DeviceLen + 1
	}
	return r.DeviceLen
}

type Resolver struct {
	Grammar normalize.Grammar
	Env     Env
}

func New(g normalize.Grammar, env Env) *Resolver {
	return &Resolver{Grammar: g, Env: env}
}

// Resolve joins fragments into a normalized path. Empty fragments are
// ignored. The result is absolute unless the working directory is not.
func (r *Resolver) Resolve(fragments ...string) (Result, error) {
	if r.Grammar.Devices {
		return r.resolveDevice(fragments)
	}
	return r.resolvePosix(fragments)
}

func (r *Resolver) resolvePosix(fragments []string) (Result, error) {
	g := r.Grammar
	var parts []string
	absolute := false

	for i := len(fragments) - 1; i >= -1 && !absolute; i-- {
		var path string
		if i >= 0 {
			path = fragments[i]
		} else {
			cwd, err := r.getwd()
			if err != nil {
				return Result{}, err
			}
			path = cwd
		}
		if path == "" {
			continue
		}
		parts = append(parts, path)
		absolute = path[0] == g.Separator
	}

	tail := joinReversed(parts, g.Separator)
	buf := make([]byte, 0, len(tail)+1)
	if absolute {
		buf = append(buf, g.Separator)
	}
	buf = normalize.AppendSegments(buf, tail, g, !absolute)
	if len(buf) == 0 {
		return Result{Path: "."}, nil
	}
	res := Result{Path: string(buf), Absolute: absolute, rootIsDevice: true}
	if absolute {
		res.DeviceLen = 1
	}
	return res, nil
}

func (r *Resolver) resolveDevice(fragments []string) (Result, error) {
	g := r.Grammar
	var device string
	var parts []string
	absolute := false

	for i := len(fragments) - 1; i >= -1; i-- {
		var path string
		switch {
		case i >= 0:
			path = fragments[i]
		case device == "":
			cwd, err := r.getwd()
			if err != nil {
				return Result{}, err
			}
			path = cwd
		default:
			cwd, err := r.driveCwd(device)
			if err != nil {
				return Result{}, err
			}
			path = cwd
		}
		if path == "" {
			continue
		}

		root := parseRoot(path, g)
		if root.device != "" && device != "" && !g.SameDevice(root.device, device) {
			// Another device's path cannot be composed with this one.
			continue
		}
		if device == "" && root.device != "" {
			device = root.device
		}
		if !absolute {
			parts = append(parts, path[root.end:])
			absolute = root.absolute
		}
		if device != "" && absolute {
			break
		}
	}

	tail := joinReversed(parts, g.Separator)
	buf := make([]byte, 0, len(device)+1+len(tail))
	buf = append(buf, device...)
	if absolute {
		buf = append(buf, g.Separator)
	}
	buf = normalize.AppendSegments(buf, tail, g, !absolute)
	if len(buf) == 0 {
		return Result{Path: "."}, nil
	}
	return Result{Path: string(buf), DeviceLen: len(device), Absolute: absolute}, nil
}

func (r *Resolver) env() Env {
	if r.Env == nil {
		return OSEnv{}
	}
	return r.Env
}

func (r *Resolver) getwd() (string, error) {
	cwd, err := r.env().Getwd()
	if err != nil {
		return "", fault.FS("getcwd", "", err)
	}
	if len(cwd) >= MaxPath {
		return "", fault.NameTooLong("getcwd", cwd)
	}
	return cwd, nil
}

// driveCwd returns the working directory remembered for a drive, or the
// drive root when none is recorded.
func (r *Resolver) driveCwd(device string) (string, error) {
	key := "=" + device
	if len(key) >= MaxPath {
		return "", fault.NameTooLong("getenv", key)
	}
	if cwd, ok := r.env().Getenv(key); ok && sameDrive(cwd, device) {
		if len(cwd) >= MaxPath {
			return "", fault.NameTooLong("getenv", key)
		}
		return cwd, nil
	}
	return device + `\`, nil
}

func sameDrive(cwd, device string) bool {
	return len(device) == 2 && len(cwd) >= 3 &&
		lowerASCII(cwd[0]) == lowerASCII(device[0]) &&
		cwd[1] == device[1] &&
		cwd[2] == '\\'
}

func joinReversed(parts []string, sep byte) string {
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
		if i > 0 {
			b.WriteByte(sep)
		}
	}
	return b.String()
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
