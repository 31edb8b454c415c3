package testutil

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"testing"
	"time"

	"dupview/internal/backend"
	"dupview/internal/decode"
	"dupview/internal/manifest"
	"dupview/internal/naming"
)

// Archive writes duplicity backup sets into a MemoryBackend.
type Archive struct {
	t       testing.TB
	Backend *backend.MemoryBackend
	Prefix  string
	// Encrypted stores files wrapped for decode.TestDecoder instead of
	// gzip-compressed.
	Encrypted bool
}

// NewArchive starts an empty archive with the "duplicity" prefix.
func NewArchive(t testing.TB) *Archive {
	return &Archive{t: t, Backend: backend.NewMemoryBackend("test"), Prefix: "duplicity"}
}

// SetFiles names the files of one backup set.
type SetFiles struct {
	Manifest  string
	Signature string
	Volumes   []string
}

// Full writes a full set at at with the given number of volumes. sigtar is
// the uncompressed signature archive.
func (a *Archive) Full(at time.Time, volumes int, sigtar []byte) SetFiles {
	a.t.Helper()
	return a.put(naming.Descriptor{Prefix: a.Prefix, Time: at}, volumes, sigtar)
}

// Inc writes an incremental set covering [start, end).
func (a *Archive) Inc(start, end time.Time, volumes int, sigtar []byte) SetFiles {
	a.t.Helper()
	return a.put(naming.Descriptor{Prefix: a.Prefix, Time: end, Range: &naming.TimeRange{Start: start, End: end}}, volumes, sigtar)
}

func (a *Archive) put(d naming.Descriptor, volumes int, sigtar []byte) SetFiles {
	a.t.Helper()
	var files SetFiles

	m := &manifest.Manifest{Hostname: "testhost", LocalDir: []byte("/home/user")}
	for v := 1; v <= volumes; v++ {
		vd := d
		vd.Kind = naming.KindFull
		if d.Incremental() {
			vd.Kind = naming.KindIncremental
		}
		vd.Volume = v
		data := a.encode(&vd, []byte(fmt.Sprintf("volume %d of %s", v, naming.FormatTime(d.Time))))
		name := vd.Name()
		a.Backend.Put(name, data)
		files.Volumes = append(files.Volumes, name)

		sum := SHA1(data)
		m.Volumes = append(m.Volumes, manifest.Volume{
			Number: v,
			Start:  manifest.PathBlock{Path: []byte(fmt.Sprintf("part%d", v))},
			End:    manifest.PathBlock{Path: []byte(fmt.Sprintf("part%d/end", v))},
			Hashes: []manifest.Hash{{Type: "SHA1", Sum: sum[:]}},
		})
	}

	var buf bytes.Buffer
	if err := manifest.Write(&buf, m); err != nil {
		a.t.Fatalf("writing manifest: %v", err)
	}
	md := d
	md.Kind = naming.KindManifest
	files.Manifest = a.putFile(md, buf.Bytes())

	sd := d
	sd.Kind = naming.KindSignature
	files.Signature = a.putFile(sd, sigtar)
	return files
}

// PutManifest replaces the manifest of a set with raw text.
func (a *Archive) PutManifest(name string, text string) {
	a.t.Helper()
	d, ok := naming.Classify(name)
	if !ok {
		a.t.Fatalf("not an archive name: %s", name)
	}
	a.Backend.Put(name, a.encode(&d, []byte(text)))
}

func (a *Archive) putFile(d naming.Descriptor, plain []byte) string {
	data := a.encode(&d, plain)
	name := d.Name()
	a.Backend.Put(name, data)
	return name
}

// encode stores plain the way d's suffixes say, marking d accordingly.
func (a *Archive) encode(d *naming.Descriptor, plain []byte) []byte {
	if a.Encrypted {
		d.Encrypted = true
		d.Compressed = false
		return decode.TestEncrypt(plain)
	}
	if d.Kind == naming.KindManifest {
		return plain
	}
	d.Compressed = true
	return Gzip(a.t, plain)
}

// SHA1 returns the SHA-1 checksum of data, the hash duplicity records per
// volume.
func SHA1(data []byte) [sha1.Size]byte {
	return sha1.Sum(data)
}
