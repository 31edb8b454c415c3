package testutil

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Signature block parameters used for generated rsync signatures.
const (
	SigBlockLen  = 2048
	SigStrongLen = 8
)

// SigtarBuilder writes signature archives laid out the way duplicity
// writes them: signature/, snapshot/ and deleted/ roots.
type SigtarBuilder struct {
	t   testing.TB
	buf bytes.Buffer
	tw  *tar.Writer
}

// NewSigtarBuilder starts an empty archive.
func NewSigtarBuilder(t testing.TB) *SigtarBuilder {
	t.Helper()
	b := &SigtarBuilder{t: t}
	b.tw = tar.NewWriter(&b.buf)
	return b
}

// Raw appends an arbitrary entry.
func (b *SigtarBuilder) Raw(hdr *tar.Header, payload []byte) *SigtarBuilder {
	b.t.Helper()
	hdr.Size = int64(len(payload))
	if err := b.tw.WriteHeader(hdr); err != nil {
		b.t.Fatalf("writing tar header %s: %v", hdr.Name, err)
	}
	if _, err := b.tw.Write(payload); err != nil {
		b.t.Fatalf("writing tar payload %s: %v", hdr.Name, err)
	}
	return b
}

// Signature adds a regular file under signature/ whose payload is an rsync
// signature of a file of the given size.
func (b *SigtarBuilder) Signature(path string, size int64, mtime time.Time) *SigtarBuilder {
	b.t.Helper()
	return b.Raw(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     "signature/" + path,
		Mode:     0o644,
		ModTime:  mtime,
		Uid:      1000,
		Gid:      1000,
		Uname:    "user",
		Gname:    "user",
	}, RsyncSignature(size))
}

// Snapshot adds a regular file under snapshot/ with size bytes of content.
func (b *SigtarBuilder) Snapshot(path string, size int64, mtime time.Time) *SigtarBuilder {
	b.t.Helper()
	return b.Raw(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     "snapshot/" + path,
		Mode:     0o600,
		ModTime:  mtime,
	}, make([]byte, size))
}

// Dir adds a directory under root ("signature" or "snapshot").
func (b *SigtarBuilder) Dir(root, path string, mtime time.Time) *SigtarBuilder {
	b.t.Helper()
	name := root + "/"
	if path != "" {
		name += path + "/"
	}
	return b.Raw(&tar.Header{Typeflag: tar.TypeDir, Name: name, Mode: 0o755, ModTime: mtime}, nil)
}

// Symlink adds a symbolic link under root.
func (b *SigtarBuilder) Symlink(root, path, target string, mtime time.Time) *SigtarBuilder {
	b.t.Helper()
	return b.Raw(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     root + "/" + path,
		Linkname: target,
		Mode:     0o777,
		ModTime:  mtime,
	}, nil)
}

// Deleted records the removal of path.
func (b *SigtarBuilder) Deleted(path string) *SigtarBuilder {
	b.t.Helper()
	return b.Raw(&tar.Header{Typeflag: tar.TypeReg, Name: "deleted/" + path, Mode: 0o644}, nil)
}

// Bytes finishes the archive and returns it.
func (b *SigtarBuilder) Bytes() []byte {
	b.t.Helper()
	if err := b.tw.Close(); err != nil {
		b.t.Fatalf("closing tar writer: %v", err)
	}
	return b.buf.Bytes()
}

// RsyncSignature returns a librsync MD4 signature header followed by enough
// zeroed block checksums to cover size bytes.
func RsyncSignature(size int64) []byte {
	blocks := (size + SigBlockLen - 1) / SigBlockLen
	out := make([]byte, 12, 12+blocks*(4+SigStrongLen))
	binary.BigEndian.PutUint32(out[0:4], 0x72730136)
	binary.BigEndian.PutUint32(out[4:8], SigBlockLen)
	binary.BigEndian.PutUint32(out[8:12], SigStrongLen)
	return append(out, make([]byte, blocks*(4+SigStrongLen))...)
}

// Gzip compresses data.
func Gzip(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}
