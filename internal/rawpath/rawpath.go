package rawpath

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrBadQuoting is returned by Unquote for words that no Quote call could
// have produced.
var ErrBadQuoting = errors.New("bad path quoting")

const hexDigits = "0123456789abcdef"

// needsEscape reports whether b must be written as \xNN inside a quoted
// path: ASCII whitespace, backslash and both quote characters. Every other
// byte, including control and non-ASCII bytes, is written raw.
func needsEscape(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r', '\\', '"', '\'':
		return true
	}
	return false
}

// needsQuoting reports whether p cannot be written as a bare word.
// The empty path is quoted so it stays visible as a word.
func needsQuoting(p []byte) bool {
	return len(p) == 0 || anyByte(p, needsEscape)
}

func anyByte(p []byte, f func(byte) bool) bool {
	for _, b := range p {
		if f(b) {
			return true
		}
	}
	return false
}

// Quote encodes raw path bytes as a single whitespace-free word, the way
// duplicity writes manifest paths. Paths without whitespace, backslashes or
// quotes are returned unchanged. Anything else is wrapped in double quotes
// with each of those bytes written as \xNN.
func Quote(p []byte) []byte {
	return quote(p, needsQuoting(p), needsEscape)
}

func quote(p []byte, quoted bool, escape func(byte) bool) []byte {
	if !quoted {
		return append([]byte(nil), p...)
	}
	out := make([]byte, 0, len(p)+2)
	out = append(out, '"')
	for _, b := range p {
		if escape(b) {
			out = append(out, '\\', 'x', hexDigits[b>>4], hexDigits[b&0x0f])
			continue
		}
		out = append(out, b)
	}
	return append(out, '"')
}

// Unquote inverts Quote. Bare words are returned as-is; quoted words must use
// lowercase \xNN escapes for exactly the bytes Quote escapes. Other bytes
// are taken literally.
func Unquote(s []byte) ([]byte, error) {
	if len(s) == 0 || s[0] != '"' {
		if needsQuoting(s) {
			return nil, fmt.Errorf("%w: bare word %q", ErrBadQuoting, s)
		}
		return append([]byte(nil), s...), nil
	}
	if len(s) < 2 || s[len(s)-1] != '"' {
		return nil, fmt.Errorf("%w: unterminated %q", ErrBadQuoting, s)
	}

	body := s[1 : len(s)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != '\\' {
			if needsEscape(b) {
				return nil, fmt.Errorf("%w: unescaped byte %#x in %q", ErrBadQuoting, b, s)
			}
			out = append(out, b)
			continue
		}
		if i+3 >= len(body) {
			return nil, fmt.Errorf("%w: truncated escape in %q", ErrBadQuoting, s)
		}
		if body[i+1] != 'x' {
			return nil, fmt.Errorf("%w: unknown escape in %q", ErrBadQuoting, s)
		}
		hi, ok1 := unhex(body[i+2])
		lo, ok2 := unhex(body[i+3])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: bad hex escape in %q", ErrBadQuoting, s)
		}
		v := hi<<4 | lo
		if !needsEscape(v) {
			return nil, fmt.Errorf("%w: needless escape of %#x in %q", ErrBadQuoting, v, s)
		}
		out = append(out, v)
		i += 3
	}
	if !needsQuoting(out) {
		return nil, fmt.Errorf("%w: needless quotes in %q", ErrBadQuoting, s)
	}
	return out, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Compare orders paths component by component, so "a/b" sorts before "a.b"
// and a parent directory sorts before everything below it.
func Compare(a, b []byte) int {
	for {
		ca, resta, moreA := cut(a)
		cb, restb, moreB := cut(b)
		if c := bytes.Compare(ca, cb); c != 0 {
			return c
		}
		switch {
		case !moreA && !moreB:
			return 0
		case !moreA:
			return -1
		case !moreB:
			return 1
		}
		a, b = resta, restb
	}
}

func cut(p []byte) (head, rest []byte, more bool) {
	if i := bytes.IndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:], true
	}
	return p, nil, false
}

// displayEscape adds control bytes and DEL to the manifest escapes so a
// displayed path cannot move the terminal cursor. UTF-8 stays readable.
func displayEscape(b byte) bool {
	return needsEscape(b) || b < ' ' || b == 0x7f
}

// Display renders a path for humans: the root becomes "." and everything
// else is quoted only when it has to be.
func Display(p []byte) string {
	if len(p) == 0 {
		return "."
	}
	return string(quote(p, anyByte(p, displayEscape), displayEscape))
}
