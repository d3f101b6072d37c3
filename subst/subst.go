// Package subst expands frame and variable references in file paths.
//
// A run of '#' characters is replaced by the current frame rounded to the
// nearest integer and zero padded to the length of the run. "$name" and
// "${name}" are replaced by a context variable; unknown variables expand to
// the empty string. A backslash makes the next character literal.
package subst

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// FrameVar is always defined and holds the current frame.
const FrameVar = "frame"

// Context carries the values a path may reference.
type Context struct {
	Frame float64
	Vars  map[string]string
}

// Lookup returns the value of a variable.
func (c Context) Lookup(name string) (string, bool) {
	if v, ok := c.Vars[name]; ok {
		return v, true
	}
	if name == FrameVar {
		return strconv.FormatFloat(c.Frame, 'f', -1, 64), true
	}
	return "", false
}

// With returns a copy of c with name set to value.
func (c Context) With(name, value string) Context {
	vars := maps.Clone(c.Vars)
	if vars == nil {
		vars = map[string]string{}
	}
	vars[name] = value
	return Context{Frame: c.Frame, Vars: vars}
}

type token struct {
	kind  tokenKind
	text  string // literal text or variable name
	width int    // frame padding
}

type tokenKind uint8

const (
	tokLiteral tokenKind = iota
	tokFrame
	tokVar
)

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9', c == ':':
		return !first
	}
	return false
}

func scan(s string) []token {
	var toks []token
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			toks = append(toks, token{kind: tokLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			lit.WriteByte(s[i+1])
			i += 2
		case c == '#':
			j := i
			for j < len(s) && s[j] == '#' {
				j++
			}
			flush()
			toks = append(toks, token{kind: tokFrame, width: j - i})
			i = j
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				lit.WriteString(s[i:])
				i = len(s)
				continue
			}
			flush()
			toks = append(toks, token{kind: tokVar, text: s[i+2 : i+2+end]})
			i += end + 3
		case c == '$' && i+1 < len(s) && isNameByte(s[i+1], true):
			j := i + 2
			for j < len(s) && isNameByte(s[j], false) {
				j++
			}
			flush()
			toks = append(toks, token{kind: tokVar, text: s[i+1 : j]})
			i = j
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return toks
}

// Substitute expands the references in s using ctx.
func Substitute(s string, ctx Context) string {
	if !strings.ContainsAny(s, `#$\`) {
		return s
	}
	var b strings.Builder
	for _, t := range scan(s) {
		switch t.kind {
		case tokLiteral:
			b.WriteString(t.text)
		case tokFrame:
			b.WriteString(padFrame(ctx.Frame, t.width))
		case tokVar:
			v, _ := ctx.Lookup(t.text)
			b.WriteString(v)
		}
	}
	return b.String()
}

func padFrame(frame float64, width int) string {
	n := int64(math.Round(frame))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	if pad := width - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// References reports whether s depends on the frame and which variables it
// names, sorted and without duplicates. A reference to "$frame" counts as a
// frame dependency.
func References(s string) (frame bool, names []string) {
	for _, t := range scan(s) {
		switch t.kind {
		case tokFrame:
			frame = true
		case tokVar:
			if t.text == FrameVar {
				frame = true
				continue
			}
			names = append(names, t.text)
		}
	}
	slices.Sort(names)
	return frame, slices.Compact(names)
}
