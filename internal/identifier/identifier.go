package identifier

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Token is one parsed suffix segment of a control number. Segments that
// parse as integers compare numerically, so "0001" and "1" are the same
// token; everything else stays a string.
type Token struct {
	Num   int
	Str   string
	IsNum bool
}

func (t Token) String() string {
	if t.IsNum {
		return strconv.Itoa(t.Num)
	}
	return t.Str
}

// FamilyKey returns the base control number of a filename: the extension is
// stripped, then everything from the first "." on is dropped.
// "CTRL001.0001.0002.pdf" -> "CTRL001".
func FamilyKey(filename string) string {
	name := stripExt(filename)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// OrderKey returns the parsed suffix tokens used to sort a family's members
// into merge order. An unsuffixed name yields an empty key, marking the
// primary member. "CTRL001.0001.0002.pdf" -> [1 2].
func OrderKey(filename string) []Token {
	name := stripExt(filename)
	parts := strings.Split(name, ".")
	if len(parts) <= 1 {
		return nil
	}
	key := make([]Token, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if n, err := strconv.Atoi(p); err == nil {
			key = append(key, Token{Num: n, IsNum: true})
		} else {
			key = append(key, Token{Str: p})
		}
	}
	return key
}

// Label returns the filename without its extension: the full control number
// including suffixes, as printed on placeholder pages.
// "CTRL001.1.xlsx" -> "CTRL001.1".
func Label(filename string) string {
	return stripExt(filename)
}

// Compare defines the total order over order keys: fewer tokens sort first,
// equal-length keys compare element-wise. At a single position two numeric
// tokens compare numerically, two string tokens lexicographically, and a
// numeric token always precedes a string token. The numeric-before-string
// rule makes mixed suffixes like "DOC.1" vs "DOC.attachment" well ordered.
func Compare(a, b []Token) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := range a {
		if c := compareToken(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Less reports whether a sorts before b. Suitable for sort.SliceStable.
func Less(a, b []Token) bool { return Compare(a, b) < 0 }

func compareToken(a, b Token) int {
	switch {
	case a.IsNum && b.IsNum:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case a.IsNum:
		return -1
	case b.IsNum:
		return 1
	default:
		return strings.Compare(a.Str, b.Str)
	}
}

// stripExt removes the final extension. A name that consists only of an
// extension (".hidden") keeps itself, matching os.path.splitext semantics
// rather than filepath.Ext's.
func stripExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return name
	}
	return strings.TrimSuffix(name, ext)
}
