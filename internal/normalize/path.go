package normalize

// Segments collapses separator runs and resolves "." and ".." segments in
// path. The result has no leading or trailing separator. A ".." with nothing
// left to pop is dropped, or kept literally when allowAboveRoot is set.
func Segments(path string, g Grammar, allowAboveRoot bool) string {
	return string(AppendSegments(make([]byte, 0, len(path)), path, g, allowAboveRoot))
}

// AppendSegments normalizes path onto dst. Bytes already in dst are treated
// as a fixed head (a device or root prefix) and are never popped.
func AppendSegments(dst []byte, path string, g Grammar, allowAboveRoot bool) []byte {
	head := len(dst)
	out := dst
	lastSep := -1
	// dots counts a segment made only of dots; -1 once anything else is seen.
	dots := 0
	// lastLen is the length of the last segment written to out.
	lastLen := 0

	// The extra iteration past the end acts as a trailing separator.
	for i := 0; i <= len(path); i++ {
		c := g.Separator
		if i < len(path) {
			c = path[i]
		}
		if !g.IsSeparator(c) {
			if c == '.' && dots != -1 {
				dots++
			} else {
				dots = -1
			}
			continue
		}

		switch {
		case lastSep == i-1 || dots == 1:
		case dots == 2:
			if len(out) > head && !endsAboveRoot(out[head:], lastLen) {
				out, lastLen = popSegment(out, head, g.Separator)
			} else if allowAboveRoot {
				if len(out) > head {
					out = append(out, g.Separator)
				}
				out = append(out, '.', '.')
				lastLen = 2
			}
		default:
			if len(out) > head {
				out = append(out, g.Separator)
			}
			out = append(out, path[lastSep+1:i]...)
			lastLen = i - lastSep - 1
		}
		lastSep = i
		dots = 0
	}
	return out
}

func endsAboveRoot(out []byte, lastLen int) bool {
	n := len(out)
	return lastLen == 2 && n >= 2 && out[n-1] == '.' && out[n-2] == '.'
}

func popSegment(out []byte, head int, sep byte) ([]byte, int) {
	j := len(out) - 1
	for j >= head && out[j] != sep {
		j--
	}
	if j < head {
		return out[:head], 0
	}
	out = out[:j]

	k := j - 1
	for k >= head && out[k] != sep {
		k--
	}
	return out, j - k - 1
}
