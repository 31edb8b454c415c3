package sigtar

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
)

// ErrMalformed is wrapped by every decoding failure. Once returned, the
// Reader keeps returning it.
var ErrMalformed = errors.New("malformed signature archive")

const blockSize = 512

// librsync signature magics
const (
	magicMD4     = 0x72730136
	magicBLAKE2  = 0x72730137
	sigHeaderLen = 12
)

// recorder remembers the bytes read while enabled, so the raw header block
// consumed by tar.Reader.Next can be recovered.
type recorder struct {
	r   io.Reader
	on  bool
	buf bytes.Buffer
}

func (rc *recorder) Read(p []byte) (int, error) {
	n, err := rc.r.Read(p)
	if rc.on && n > 0 {
		rc.buf.Write(p[:n])
	}
	return n, err
}

// Reader decodes a signature archive one entry at a time.
type Reader struct {
	rec *recorder
	tr  *tar.Reader
	err error
}

// NewReader reads an already decompressed and decrypted signature archive.
func NewReader(r io.Reader) *Reader {
	rec := &recorder{r: r}
	return &Reader{rec: rec, tr: tar.NewReader(rec)}
}

// Next returns the next record. It returns io.EOF after the last one.
// Entries outside the signature/, snapshot/ and deleted/ roots are skipped.
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	rec, err := r.next()
	if err != nil {
		r.err = err
		return nil, err
	}
	return rec, nil
}

func (r *Reader) next() (*Record, error) {
	for {
		// drain the previous payload without recording it
		if _, err := io.Copy(io.Discard, r.tr); err != nil {
			return nil, fmt.Errorf("%w: skipping payload: %v", ErrMalformed, err)
		}

		r.rec.buf.Reset()
		r.rec.on = true
		hdr, err := r.tr.Next()
		r.rec.on = false
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading header: %v", ErrMalformed, err)
		}

		role, path, ok := splitRoot([]byte(hdr.Name))
		if !ok {
			continue
		}

		rec := &Record{Path: path, Role: role}
		if role == RoleDeleted {
			return rec, nil
		}

		st, err := r.stat(hdr, role)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", hdr.Name, err)
		}
		rec.Stat = st
		return rec, nil
	}
}

// All iterates over the remaining records. Iteration stops after the first
// error, which is yielded with a nil record.
func (r *Reader) All() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// splitRoot maps the first path component to a role and returns the rest
// of the path with any trailing slash removed.
func splitRoot(name []byte) (Role, []byte, bool) {
	root, rest, _ := bytes.Cut(name, []byte("/"))
	var role Role
	switch string(root) {
	case "signature":
		role = RoleBaseline
	case "snapshot":
		role = RoleChanged
	case "deleted":
		role = RoleDeleted
	default:
		return 0, nil, false
	}
	rest = bytes.TrimSuffix(rest, []byte("/"))
	return role, append([]byte{}, rest...), true
}

func (r *Reader) stat(hdr *tar.Header, role Role) (*Stat, error) {
	raw := r.rec.buf.Bytes()
	if len(raw) < blockSize {
		return nil, fmt.Errorf("%w: short header block", ErrMalformed)
	}

	st := &Stat{
		Type:     entryType(hdr.Typeflag),
		TypeFlag: hdr.Typeflag,
		Mode:     uint32(hdr.Mode) & 0o7777,
		ModTime:  hdr.ModTime.UTC(),
		UID:      hdr.Uid,
		GID:      hdr.Gid,
		Uname:    hdr.Uname,
		Gname:    hdr.Gname,
		DevMajor: hdr.Devmajor,
		DevMinor: hdr.Devminor,
		Header:   append([]byte(nil), raw[len(raw)-blockSize:]...),
	}
	if hdr.Linkname != "" {
		st.Linkname = []byte(hdr.Linkname)
	}
	if len(hdr.PAXRecords) > 0 {
		st.PAXRecords = maps.Clone(hdr.PAXRecords)
	}

	switch {
	case role == RoleBaseline && st.Type == TypeFile:
		hint, err := signatureSize(r.tr, hdr.Size)
		if err != nil {
			return nil, err
		}
		st.Size = hint
	default:
		st.Size = SizeHint{Min: hdr.Size, Max: hdr.Size}
	}
	return st, nil
}

func entryType(flag byte) EntryType {
	switch flag {
	case tar.TypeReg, '\x00', tar.TypeLink, tar.TypeCont:
		return TypeFile
	case tar.TypeDir:
		return TypeDir
	case tar.TypeSymlink:
		return TypeSymlink
	default:
		return TypeSpecial
	}
}

// signatureSize bounds the size of the file a librsync signature was
// computed from: n block checksums cover between (n-1)*blockLen+1 and
// n*blockLen bytes.
func signatureSize(r io.Reader, payload int64) (SizeHint, error) {
	if payload < sigHeaderLen {
		return SizeHint{}, fmt.Errorf("%w: signature payload of %d bytes", ErrMalformed, payload)
	}
	var hdr [sigHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return SizeHint{}, fmt.Errorf("%w: reading signature header: %v", ErrMalformed, err)
	}
	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != magicMD4 && magic != magicBLAKE2 {
		return SizeHint{}, fmt.Errorf("%w: unknown signature magic %#x", ErrMalformed, magic)
	}
	blockLen := int64(binary.BigEndian.Uint32(hdr[4:8]))
	strongLen := int64(binary.BigEndian.Uint32(hdr[8:12]))

	n := (payload - sigHeaderLen) / (4 + strongLen)
	if n == 0 {
		return SizeHint{}, nil
	}
	return SizeHint{Min: (n-1)*blockLen + 1, Max: n * blockLen}, nil
}
