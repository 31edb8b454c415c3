package decode

import (
	"bytes"
	"io"
)

// TestHeader marks content "encrypted" by TestDecoder.
var TestHeader = []byte("DVENC\x00\x00\x00")

// TestDecoder is a deterministic stand-in for gpg. Encrypted files are the
// plaintext behind TestHeader; compressed files are ordinary gzip, under
// the header when both apply.
type TestDecoder struct{}

func (TestDecoder) Decode(r io.Reader, compressed, encrypted bool) (io.ReadCloser, error) {
	if !encrypted {
		return NoneDecoder{}.Decode(r, compressed, false)
	}
	header := make([]byte, len(TestHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, decodeError("reading test header: %v", err)
	}
	if !bytes.Equal(header, TestHeader) {
		return nil, decodeError("invalid test encryption header")
	}
	return NoneDecoder{}.Decode(r, compressed, false)
}

// TestEncrypt is the inverse of TestDecoder for encrypted files.
func TestEncrypt(plain []byte) []byte {
	return append(append([]byte(nil), TestHeader...), plain...)
}
