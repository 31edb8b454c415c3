package sigtar_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"dupview/internal/sigtar"
	"dupview/internal/testutil"
)

var mtime = time.Date(2015, 1, 1, 12, 0, 0, 0, time.UTC)

func readAll(t *testing.T, data []byte) []*sigtar.Record {
	t.Helper()
	var recs []*sigtar.Record
	for rec, err := range sigtar.NewReader(bytes.NewReader(data)).All() {
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestReader_Roles(t *testing.T) {
	data := testutil.NewSigtarBuilder(t).
		Dir("signature", "", mtime).
		Dir("signature", "docs", mtime).
		Signature("docs/a.txt", 5000, mtime).
		Symlink("snapshot", "docs/link", "a.txt", mtime).
		Snapshot("docs/b.txt", 42, mtime).
		Deleted("old.txt").
		Raw(&tar.Header{Typeflag: tar.TypeReg, Name: "other/ignored", Mode: 0o644}, []byte("x")).
		Bytes()

	recs := readAll(t, data)

	want := []struct {
		path string
		role sigtar.Role
		typ  sigtar.EntryType
	}{
		{"", sigtar.RoleBaseline, sigtar.TypeDir},
		{"docs", sigtar.RoleBaseline, sigtar.TypeDir},
		{"docs/a.txt", sigtar.RoleBaseline, sigtar.TypeFile},
		{"docs/link", sigtar.RoleChanged, sigtar.TypeSymlink},
		{"docs/b.txt", sigtar.RoleChanged, sigtar.TypeFile},
		{"old.txt", sigtar.RoleDeleted, 0},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, w := range want {
		rec := recs[i]
		if string(rec.Path) != w.path || rec.Role != w.role {
			t.Errorf("record %d = %q %v, want %q %v", i, rec.Path, rec.Role, w.path, w.role)
		}
		if w.role == sigtar.RoleDeleted {
			if rec.Stat != nil {
				t.Errorf("record %d: deleted record has stat %+v", i, rec.Stat)
			}
			continue
		}
		if rec.Stat == nil {
			t.Fatalf("record %d: missing stat", i)
		}
		if rec.Stat.Type != w.typ {
			t.Errorf("record %d: Type = %v, want %v", i, rec.Stat.Type, w.typ)
		}
		if len(rec.Stat.Header) != 512 {
			t.Errorf("record %d: len(Header) = %d, want 512", i, len(rec.Stat.Header))
		}
		if !rec.Stat.ModTime.Equal(mtime) {
			t.Errorf("record %d: ModTime = %v, want %v", i, rec.Stat.ModTime, mtime)
		}
	}

	if got := string(recs[3].Stat.Linkname); got != "a.txt" {
		t.Errorf("Linkname = %q, want %q", got, "a.txt")
	}
	if got := recs[4].Stat.Size; got != (sigtar.SizeHint{Min: 42, Max: 42}) {
		t.Errorf("snapshot Size = %v, want exact 42", got)
	}
	if got := recs[2].Stat; got.Mode != 0o644 || got.UID != 1000 || got.Uname != "user" {
		t.Errorf("signature stat = %+v", got)
	}
}

func TestReader_HeaderIsVerbatim(t *testing.T) {
	data := testutil.NewSigtarBuilder(t).Snapshot("a", 3, mtime).Bytes()

	recs := readAll(t, data)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if !bytes.Equal(recs[0].Stat.Header, data[:512]) {
		t.Error("Header does not match the first block of the archive")
	}
}

func TestReader_SignatureSize(t *testing.T) {
	tests := []struct {
		size int64
		want sigtar.SizeHint
	}{
		{size: 0, want: sigtar.SizeHint{}},
		{size: 1, want: sigtar.SizeHint{Min: 1, Max: 2048}},
		{size: 2048, want: sigtar.SizeHint{Min: 1, Max: 2048}},
		{size: 2049, want: sigtar.SizeHint{Min: 2049, Max: 4096}},
		{size: 10000, want: sigtar.SizeHint{Min: 8193, Max: 10240}},
	}

	for _, tt := range tests {
		data := testutil.NewSigtarBuilder(t).Signature("f", tt.size, mtime).Bytes()
		recs := readAll(t, data)
		if len(recs) != 1 {
			t.Fatalf("size %d: got %d records", tt.size, len(recs))
		}
		got := recs[0].Stat.Size
		if got != tt.want {
			t.Errorf("size %d: Size = %v, want %v", tt.size, got, tt.want)
		}
		if tt.size > 0 && (tt.size < got.Min || tt.size > got.Max) {
			t.Errorf("size %d outside hint %v", tt.size, got)
		}
	}
}

func TestReader_BadMagicIsSticky(t *testing.T) {
	bad := testutil.RsyncSignature(100)
	bad[0] = 0xff
	data := testutil.NewSigtarBuilder(t).
		Dir("signature", "", mtime).
		Raw(&tar.Header{Typeflag: tar.TypeReg, Name: "signature/f", Mode: 0o644}, bad).
		Snapshot("g", 1, mtime).
		Bytes()

	r := sigtar.NewReader(bytes.NewReader(data))
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	_, err := r.Next()
	if !errors.Is(err, sigtar.ErrMalformed) {
		t.Fatalf("Next() error = %v, want ErrMalformed", err)
	}
	if _, again := r.Next(); !errors.Is(again, sigtar.ErrMalformed) {
		t.Errorf("second Next() error = %v, want ErrMalformed", again)
	}
}

func TestReader_Truncated(t *testing.T) {
	data := testutil.NewSigtarBuilder(t).Snapshot("a", 1000, mtime).Bytes()

	r := sigtar.NewReader(bytes.NewReader(data[:700]))
	_, err := r.Next()
	if err == nil {
		_, err = r.Next()
	}
	if !errors.Is(err, sigtar.ErrMalformed) {
		t.Errorf("Next() error = %v, want ErrMalformed", err)
	}
}

func TestReader_LongAndRawPaths(t *testing.T) {
	long := strings.Repeat("d/", 90) + "file"
	raw := "caf\xe9"
	data := testutil.NewSigtarBuilder(t).
		Snapshot(long, 1, mtime).
		Snapshot(raw, 1, mtime).
		Bytes()

	recs := readAll(t, data)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if string(recs[0].Path) != long {
		t.Errorf("Path = %q, want %q", recs[0].Path, long)
	}
	if string(recs[1].Path) != raw {
		t.Errorf("Path = %q, want %q", recs[1].Path, raw)
	}
}

func TestReader_Empty(t *testing.T) {
	data := testutil.NewSigtarBuilder(t).Bytes()
	r := sigtar.NewReader(bytes.NewReader(data))
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}
