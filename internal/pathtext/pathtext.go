// Package pathtext checks that path text is valid UTF-8 before it is handed
// to callers that expect a string encoding.
package pathtext

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/pathcanon/pathcanon/internal/fault"
)

// Decode returns path unchanged when it is valid UTF-8 and a
// fault.KindEncoding error otherwise.
func Decode(path string) (string, error) {
	out, _, err := transform.String(encoding.UTF8Validator, path)
	if err != nil {
		return "", fault.Encoding("decode", path, err)
	}
	return out, nil
}
