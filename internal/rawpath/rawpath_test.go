package rawpath

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "home/user/file.txt", want: "home/user/file.txt"},
		{name: "empty", in: "", want: `""`},
		{name: "space", in: "my file", want: `"my\x20file"`},
		{name: "newline", in: "a\nb", want: `"a\x0ab"`},
		{name: "quotes and backslash", in: `a"b'c\d`, want: `"a\x22b\x27c\x5cd"`},
		{name: "utf-8 stays raw", in: "caf\xc3\xa9", want: "caf\xc3\xa9"},
		{name: "utf-8 with space", in: "my caf\xc3\xa9", want: "\"my\\x20caf\xc3\xa9\""},
		{name: "control bytes stay raw", in: "x\x01\x7f", want: "x\x01\x7f"},
		{name: "vertical tab and form feed", in: "a\vb\fc", want: `"a\x0bb\x0cc"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quote([]byte(tt.in))
			if string(got) != tt.want {
				t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare word", in: "etc/passwd", want: "etc/passwd"},
		{name: "quoted space", in: `"a\x20b"`, want: "a b"},
		{name: "quoted empty", in: `""`, want: ""},
		{name: "uppercase hex", in: `"a\x2Fb"`, wantErr: true},
		{name: "needless escape", in: `"a\x41\x20"`, wantErr: true},
		{name: "needless quotes", in: `"abc"`, wantErr: true},
		{name: "unterminated", in: `"a\x20b`, wantErr: true},
		{name: "truncated escape", in: `"a\x2"`, wantErr: true},
		{name: "unknown escape", in: `"a\n"`, wantErr: true},
		{name: "raw space inside quotes", in: `"a b"`, wantErr: true},
		{name: "bare utf-8", in: "caf\xc3\xa9", want: "caf\xc3\xa9"},
		{name: "bare control byte", in: "a\x01b", want: "a\x01b"},
		{name: "raw utf-8 inside quotes", in: "\"my\\x20caf\xc3\xa9\"", want: "my caf\xc3\xa9"},
		{name: "escaped utf-8", in: `"caf\xc3\xa9\x20"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unquote([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrBadQuoting) {
					t.Fatalf("Unquote(%s) error = %v, want ErrBadQuoting", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unquote(%s) error = %v", tt.in, err)
			}
			if string(got) != tt.want {
				t.Errorf("Unquote(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuote_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Unquote(Quote(p)) == p", prop.ForAll(
		func(p []byte) bool {
			got, err := Unquote(Quote(p))
			return err == nil && bytes.Equal(got, p)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("Quote(Unquote(s)) == s for quoted words", prop.ForAll(
		func(p []byte) bool {
			s := Quote(p)
			raw, err := Unquote(s)
			if err != nil {
				return false
			}
			return bytes.Equal(Quote(raw), s)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("quoted words carry no whitespace", prop.ForAll(
		func(p []byte) bool {
			return !bytes.ContainsAny(Quote(p), " \t\r\n\v\f")
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{a: "", b: "a", want: -1},
		{a: "a", b: "a", want: 0},
		{a: "a", b: "a/b", want: -1},
		{a: "a/b", b: "a.b", want: -1},
		{a: "a/z", b: "ab", want: -1},
		{a: "b", b: "a/z", want: 1},
	}

	for _, tt := range tests {
		if got := Compare([]byte(tt.a), []byte(tt.b)); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Compare([]byte(tt.b), []byte(tt.a)); got != -tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestDisplay(t *testing.T) {
	if got := Display(nil); got != "." {
		t.Errorf("Display(nil) = %q, want %q", got, ".")
	}
	tests := []struct {
		in   string
		want string
	}{
		{in: "a b", want: `"a\x20b"`},
		{in: "caf\xc3\xa9", want: "caf\xc3\xa9"},
		{in: "x\x1b[2J", want: `"x\x1b[2J"`},
		{in: "del\x7f", want: `"del\x7f"`},
	}
	for _, tt := range tests {
		if got := Display([]byte(tt.in)); got != tt.want {
			t.Errorf("Display(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
