package identifier

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(n int) Token    { return Token{Num: n, IsNum: true} }
func str(s string) Token { return Token{Str: s} }

func TestFamilyKey(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"CTRL0000002291.pdf", "CTRL0000002291"},
		{"CTRL001.0001.0002.pdf", "CTRL001"},
		{"CTRL001.1.xlsx", "CTRL001"},
		{"plain", "plain"},
		{"plain.pdf", "plain"},
		{"A.attachment.msg", "A"},
		{".hidden", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, FamilyKey(tt.filename))
		})
	}
}

func TestOrderKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     []Token
	}{
		{"unsuffixed", "CTRL001.pdf", nil},
		{"single numeric", "CTRL001.0001.pdf", []Token{num(1)}},
		{"nested numeric", "CTRL001.0001.0002.pdf", []Token{num(1), num(2)}},
		{"string token kept", "CTRL001.attachment.pdf", []Token{str("attachment")}},
		{"mixed tokens", "CTRL001.0002.final.pdf", []Token{num(2), str("final")}},
		{"no extension", "CTRL001.3", []Token{num(3)}},
		{"negative parses as int", "CTRL001.-1.pdf", []Token{num(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderKey(tt.filename))
		})
	}
}

func TestOrderKeyNormalizesLeadingZeros(t *testing.T) {
	// "1" and "0001" parse to the same token, so the names collide only
	// when the parsed sequences are literally equal.
	assert.Equal(t, OrderKey("A.1.pdf"), OrderKey("A.0001.pdf"))
	assert.NotEqual(t, OrderKey("A.1.pdf"), OrderKey("A.01x.pdf"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "CTRL001.1", Label("CTRL001.1.xlsx"))
	assert.Equal(t, "CTRL001", Label("CTRL001.pdf"))
	assert.Equal(t, "CTRL001.0001.0002", Label("CTRL001.0001.0002.pdf"))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b []Token
		want int
	}{
		{"empty before suffixed", nil, []Token{num(1)}, -1},
		{"fewer tokens first", []Token{num(9)}, []Token{num(1), num(1)}, -1},
		{"numeric order", []Token{num(1)}, []Token{num(2)}, -1},
		{"equal numeric", []Token{num(3)}, []Token{num(3)}, 0},
		{"element-wise on later position", []Token{num(1), num(2)}, []Token{num(1), num(3)}, -1},
		{"string order", []Token{str("a")}, []Token{str("b")}, -1},
		{"numeric precedes string", []Token{num(99)}, []Token{str("a")}, -1},
		{"string follows numeric", []Token{str("a")}, []Token{num(0)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestSortOrderMatchesMergeExpectations(t *testing.T) {
	// The primary unsuffixed member leads, then .0001 before .0001.0002.
	names := []string{
		"CTRL001.0001.0002.pdf",
		"CTRL001.0002.pdf",
		"CTRL001.pdf",
		"CTRL001.0001.pdf",
	}
	sort.SliceStable(names, func(i, j int) bool {
		return Less(OrderKey(names[i]), OrderKey(names[j]))
	})
	require.Equal(t, []string{
		"CTRL001.pdf",
		"CTRL001.0001.pdf",
		"CTRL001.0002.pdf",
		"CTRL001.0001.0002.pdf",
	}, names)
}

func TestSortIsStableForEqualKeys(t *testing.T) {
	// A.1 and A.0001 carry equal keys; stable sort keeps scan order.
	names := []string{"A.0001.pdf", "A.1.pdf"}
	sort.SliceStable(names, func(i, j int) bool {
		return Less(OrderKey(names[i]), OrderKey(names[j]))
	})
	assert.Equal(t, []string{"A.0001.pdf", "A.1.pdf"}, names)
}
