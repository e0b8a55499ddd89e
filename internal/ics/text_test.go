package ics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`a\b`, `a\\b`},
		{"a;b,c", `a\;b\,c`},
		{"line1\nline2", `line1\nline2`},
		{"crlf\r\nend", `crlf\nend`},
		{"課程代碼: C1\n授課教師: 王", `課程代碼: C1\n授課教師: 王`},
		{"bad\x80\xffbyte", "bad\uFFFDbyte"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EscapeText(tc.in), "input %q", tc.in)
	}
}

func TestUnescapeTextRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "plain", `back\slash`, "semi;colon,comma", "a\nb\nc", `\;\,\n`} {
		assert.Equal(t, s, UnescapeText(EscapeText(s)))
	}
	assert.Equal(t, "a\nb", UnescapeText(`a\Nb`))
}

func TestFoldLineShort(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("x", MaxLineOctets)
	assert.Equal(t, line, FoldLine(line))
}

func TestFoldLineASCII(t *testing.T) {
	t.Parallel()

	line := "DESCRIPTION:" + strings.Repeat("abcdefghij", 20)
	folded := FoldLine(line)

	parts := strings.Split(folded, CRLF)
	require.Greater(t, len(parts), 1)
	assert.Len(t, parts[0], MaxLineOctets)
	for _, p := range parts[1:] {
		assert.True(t, strings.HasPrefix(p, " "))
		assert.LessOrEqual(t, len(p), MaxLineOctets)
	}
	for _, p := range parts[1 : len(parts)-1] {
		assert.Len(t, p, MaxLineOctets)
	}
	assert.False(t, strings.HasSuffix(folded, CRLF))
}

func TestFoldLineMultibyte(t *testing.T) {
	t.Parallel()

	line := "SUMMARY:" + strings.Repeat("資料結構", 30)
	folded := FoldLine(line)

	for _, p := range strings.Split(folded, CRLF) {
		assert.LessOrEqual(t, len(p), MaxLineOctets)
		assert.True(t, utf8.ValidString(p), "physical line %q splits a rune", p)
	}
	assert.Equal(t, []string{line}, UnfoldLines(folded))
}

func TestFoldLineStrayContinuationBytes(t *testing.T) {
	t.Parallel()

	line := "X-WR-CALNAME:" + strings.Repeat("\x80", 100)
	folded := FoldLine(line)

	parts := strings.Split(folded, CRLF)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), MaxLineOctets)
	}
	assert.Equal(t, []string{line}, UnfoldLines(folded))
}

func TestUnfoldLinesRoundTrip(t *testing.T) {
	t.Parallel()

	desc := "DESCRIPTION:" + EscapeText("課程代碼: C1234\n授課教師: 王小明\n班級: 資科二\n課程時長: 3節課 "+strings.Repeat("long text ", 12))
	lines := []string{"BEGIN:VEVENT", desc, "END:VEVENT"}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(FoldLine(l))
		b.WriteString(CRLF)
	}
	assert.Equal(t, lines, UnfoldLines(b.String()))

	assert.Equal(t, []string{"AB", "C"}, UnfoldLines("A\n B\nC\n"))
	assert.Equal(t, []string{"AB"}, UnfoldLines("A\r\n\tB"))
}
