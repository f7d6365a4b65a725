// Package dateformat resolves date strings through an ordered cascade of
// strftime-style conversions.
//
// A Cascade is a list of (input, output) format pairs. Resolve tries each
// input format in order and reformats with the paired output format on the
// first strict parse. Later pairs are never tried once one succeeds, even
// if they would also match.
package dateformat

import (
	"strings"

	"github.com/itchyny/timefmt-go"
)

// Format is a strftime-style date format, e.g. "%Y-%m-%d".
type Format string

// Commonly used formats.
const (
	YMD Format = "%Y-%m-%d"
	YM  Format = "%Y-%m"
	Y   Format = "%Y"
)

// Conversion is one cascade entry.
type Conversion struct {
	Input  Format
	Output Format
}

// Cascade is an ordered list of conversions; order is significant.
type Cascade []Conversion

// Pair builds a Conversion.
func Pair(input, output Format) Conversion {
	return Conversion{Input: input, Output: output}
}

// Reformat parses s strictly against in and formats the result with out.
// The second return value is false when s does not match in, including
// impossible calendar dates such as 2021-02-29. Fields may omit their zero
// padding.
func Reformat(s string, in, out Format) (string, bool) {
	t, err := timefmt.Parse(s, string(in))
	if err != nil {
		return "", false
	}
	// Parsing normalizes out-of-range days into the next month.
	if unpadded(timefmt.Format(t, string(in))) != unpadded(s) {
		return "", false
	}
	return timefmt.Format(t, string(out)), true
}

// unpadded lowercases s and drops leading zeros from every run of digits.
func unpadded(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '0' && (i == 0 || !isDigit(s[i-1])) {
			j := i
			for j < len(s) && s[j] == '0' {
				j++
			}
			if j == len(s) || !isDigit(s[j]) {
				b.WriteByte('0')
			}
			i = j - 1
			continue
		}
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// Resolve returns the output of the first conversion whose input format
// parses s. It returns false when no conversion matches; the caller decides
// what an unresolvable date becomes.
func Resolve(s string, c Cascade) (string, bool) {
	for _, conv := range c {
		if out, ok := Reformat(s, conv.Input, conv.Output); ok {
			return out, true
		}
	}
	return "", false
}
