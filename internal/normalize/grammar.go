package normalize

import (
	"fmt"
	"runtime"
	"strings"
)

// Grammar describes the separator set and root syntax of a path family.
type Grammar struct {
	Name string
	// Separator is the canonical separator written to output.
	Separator byte
	// Alternate is also accepted as a separator on input. Zero means none.
	Alternate byte
	// Devices enables drive letters (X:) and UNC roots (\\host\share).
	Devices bool
	// FoldCase makes device comparisons case-insensitive.
	FoldCase bool
}

var (
	Posix   = Grammar{Name: "posix", Separator: '/'}
	Windows = Grammar{Name: "win32", Separator: '\\', Alternate: '/', Devices: true, FoldCase: true}
)

const (
	GrammarPosix  = "posix"
	GrammarWin32  = "win32"
	GrammarNative = "native"
)

// Native returns the grammar of the running platform.
func Native() Grammar {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Posix
}

func ParseGrammar(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", GrammarNative:
		return Native(), nil
	case GrammarPosix:
		return Posix, nil
	case GrammarWin32, "windows":
		return Windows, nil
	default:
		return Grammar{}, fmt.Errorf("unknown grammar %q", name)
	}
}

func (g Grammar) IsSeparator(c byte) bool {
	return c == g.Separator || (g.Alternate != 0 && c == g.Alternate)
}

// IndexSeparator returns the index of the first separator in s at or after
// from, or -1.
func (g Grammar) IndexSeparator(s string, from int) int {
	for i := from; i < len(s); i++ {
		if g.IsSeparator(s[i]) {
			return i
		}
	}
	return -1
}

// SameDevice reports whether two device prefixes name the same root.
func (g Grammar) SameDevice(a, b string) bool {
	if g.FoldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (g Grammar) String() string {
	return g.Name
}
