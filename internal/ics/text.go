package ics

import (
	"strings"
	"unicode/utf8"
)

// MaxLineOctets is the longest content line emitted before folding.
const MaxLineOctets = 75

// CRLF terminates every content line.
const CRLF = "\r\n"

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
)

// EscapeText escapes a TEXT property value: backslash, semicolon and comma
// are backslash-prefixed and line breaks become the two characters `\n`.
// Invalid UTF-8 sequences are replaced with U+FFFD.
func EscapeText(s string) string {
	return textEscaper.Replace(strings.ToValidUTF8(s, "\uFFFD"))
}

// UnescapeText reverses EscapeText. `\N` is accepted as a line break too.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// FoldLine splits a content line into physical lines of at most
// MaxLineOctets octets. Continuation lines start with a single space, which
// counts toward their length. Multi-byte characters are never split; a run
// of stray continuation bytes longer than a line is cut at the limit.
// The result is joined with CRLF and carries no trailing line break.
func FoldLine(line string) string {
	if len(line) <= MaxLineOctets {
		return line
	}
	var b strings.Builder
	b.Grow(len(line) + len(line)/MaxLineOctets*3)

	limit := MaxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		b.WriteString(line[:cut])
		b.WriteString(CRLF + " ")
		line = line[cut:]
		limit = MaxLineOctets - 1
	}
	b.WriteString(line)
	return b.String()
}

// UnfoldLines joins folded physical lines back into content lines. Both CRLF
// and bare LF separators are accepted; a line starting with a space or tab
// continues the previous one.
func UnfoldLines(doc string) []string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	raw := strings.Split(doc, "\n")

	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l != "" && (l[0] == ' ' || l[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += l[1:]
			continue
		}
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}
