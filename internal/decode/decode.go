// Package decode turns stored archive files back into plaintext.
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrDecode wraps every failure to decompress or decrypt a file.
var ErrDecode = errors.New("decode failed")

func decodeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// gunzip opens a gzip stream and keeps decompression errors tagged with
// ErrDecode as the stream is consumed.
func gunzip(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, decodeError("opening gzip stream: %v", err)
	}
	return &taggedReader{r: zr, c: zr}, nil
}

type taggedReader struct {
	r io.Reader
	c io.Closer
}

func (t *taggedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && !errors.Is(err, ErrDecode) {
		err = fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return n, err
}

func (t *taggedReader) Close() error {
	if t.c == nil {
		return nil
	}
	return t.c.Close()
}

// NoneDecoder reads unencrypted archives. Gzip files are still
// decompressed; encrypted files are refused.
type NoneDecoder struct{}

func (NoneDecoder) Decode(r io.Reader, compressed, encrypted bool) (io.ReadCloser, error) {
	if encrypted {
		return nil, decodeError("file is encrypted and no decryption is configured")
	}
	if compressed {
		return gunzip(r)
	}
	return io.NopCloser(r), nil
}
