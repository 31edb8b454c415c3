package manifest

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"dupview/internal/rawpath"
)

// Parse reads a manifest. Volume numbers must start at 1 and increase by
// one; any deviation, unknown keyword or bad quoting rejects the manifest.
func Parse(r io.Reader) (*Manifest, error) {
	p := &parser{r: bufio.NewReader(r)}
	m, err := p.parse()
	if err != nil {
		return nil, err
	}
	return m, nil
}

type parser struct {
	r      *bufio.Reader
	lineNo int
	words  [][]byte
	peeked bool
	eof    bool
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, p.lineNo, fmt.Sprintf(format, args...))
}

// next advances to the next non-blank line and splits it into words.
// It returns false at end of input.
func (p *parser) next() (bool, error) {
	if p.peeked {
		p.peeked = false
		return !p.eof, nil
	}
	for {
		line, err := p.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				p.eof = true
				p.words = nil
				return false, nil
			}
			return false, fmt.Errorf("reading manifest: %w", err)
		}
		p.lineNo++
		p.words = bytes.FieldsFunc(line, isSpace)
		if len(p.words) > 0 {
			return true, nil
		}
		if err != nil {
			p.eof = true
			p.words = nil
			return false, nil
		}
	}
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// unread makes the current line the result of the following next call.
func (p *parser) unread() {
	p.peeked = true
}

func (p *parser) keyword() string {
	return string(p.words[0])
}

func (p *parser) parse() (*Manifest, error) {
	m := &Manifest{}
	seen := make(map[string]bool)

	for {
		ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return m, nil
		}

		kw := p.keyword()
		switch kw {
		case "Hostname", "Localdir", "Filelist":
			if len(m.Volumes) > 0 {
				return nil, p.errorf("%s after first volume", kw)
			}
			if seen[kw] {
				return nil, p.errorf("duplicate %s", kw)
			}
			seen[kw] = true
		}

		switch kw {
		case "Hostname":
			if len(p.words) != 2 {
				return nil, p.errorf("Hostname takes one word")
			}
			m.Hostname = string(p.words[1])
		case "Localdir":
			if len(p.words) != 2 {
				return nil, p.errorf("Localdir takes one path")
			}
			dir, err := p.path(p.words[1])
			if err != nil {
				return nil, err
			}
			m.LocalDir = dir
		case "Filelist":
			files, err := p.fileList()
			if err != nil {
				return nil, err
			}
			m.Files = files
		case "Volume":
			v, err := p.volume()
			if err != nil {
				return nil, err
			}
			if v.Number != len(m.Volumes)+1 {
				return nil, p.errorf("volume %d out of sequence, expected %d", v.Number, len(m.Volumes)+1)
			}
			m.Volumes = append(m.Volumes, v)
		default:
			return nil, p.errorf("unexpected keyword %q", kw)
		}
	}
}

func (p *parser) fileList() ([]ChangedFile, error) {
	if len(p.words) != 2 {
		return nil, p.errorf("Filelist takes a count")
	}
	n, err := strconv.Atoi(string(p.words[1]))
	if err != nil || n < 0 {
		return nil, p.errorf("bad Filelist count %q", p.words[1])
	}
	files := make([]ChangedFile, 0, n)
	for range n {
		ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, p.errorf("Filelist ends after %d of %d entries", len(files), n)
		}
		if len(p.words) != 2 {
			return nil, p.errorf("Filelist entry takes status and path")
		}
		st := Status(p.words[0])
		switch st {
		case StatusChanged, StatusNew, StatusDeleted:
		default:
			return nil, p.errorf("unknown file status %q", p.words[0])
		}
		path, err := p.path(p.words[1])
		if err != nil {
			return nil, err
		}
		files = append(files, ChangedFile{Status: st, Path: path})
	}
	return files, nil
}

func (p *parser) volume() (Volume, error) {
	var v Volume
	if len(p.words) != 2 {
		return v, p.errorf("Volume takes a number")
	}
	num := bytes.TrimSuffix(p.words[1], []byte(":"))
	n, err := strconv.Atoi(string(num))
	if err != nil || n < 1 {
		return v, p.errorf("bad volume number %q", p.words[1])
	}
	v.Number = n

	if v.Start, err = p.pathBlock("StartingPath"); err != nil {
		return v, err
	}
	if v.End, err = p.pathBlock("EndingPath"); err != nil {
		return v, err
	}

	for {
		ok, err := p.next()
		if err != nil {
			return v, err
		}
		if !ok {
			return v, nil
		}
		if p.keyword() != "Hash" {
			p.unread()
			return v, nil
		}
		if len(p.words) != 3 {
			return v, p.errorf("Hash takes a type and a digest")
		}
		sum, err := hex.DecodeString(string(p.words[2]))
		if err != nil {
			return v, p.errorf("bad hash digest: %v", err)
		}
		v.Hashes = append(v.Hashes, Hash{Type: string(p.words[1]), Sum: sum})
	}
}

func (p *parser) pathBlock(key string) (PathBlock, error) {
	var pb PathBlock
	ok, err := p.next()
	if err != nil {
		return pb, err
	}
	if !ok {
		return pb, p.errorf("missing %s", key)
	}
	if p.keyword() != key {
		return pb, p.errorf("expected %s, got %q", key, p.words[0])
	}
	if len(p.words) < 2 || len(p.words) > 3 {
		return pb, p.errorf("%s takes a path and an optional block", key)
	}
	if pb.Path, err = p.path(p.words[1]); err != nil {
		return pb, err
	}
	if len(p.words) == 3 {
		n, err := strconv.Atoi(string(p.words[2]))
		if err != nil || n < 0 {
			return pb, p.errorf("bad block number %q", p.words[2])
		}
		pb.Block, pb.HasBlock = n, true
	}
	return pb, nil
}

// path decodes a quoted path word; "." is the root.
func (p *parser) path(word []byte) ([]byte, error) {
	if string(word) == "." {
		return []byte{}, nil
	}
	raw, err := rawpath.Unquote(word)
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	return raw, nil
}

// Write renders m in the manifest text format accepted by Parse.
func Write(w io.Writer, m *Manifest) error {
	bw := bufio.NewWriter(w)
	if m.Hostname != "" {
		fmt.Fprintf(bw, "Hostname %s\n", m.Hostname)
	}
	if m.LocalDir != nil {
		fmt.Fprintf(bw, "Localdir %s\n", quotePath(m.LocalDir))
	}
	if len(m.Files) > 0 {
		fmt.Fprintf(bw, "Filelist %d\n", len(m.Files))
		for _, f := range m.Files {
			fmt.Fprintf(bw, "    %-7s  %s\n", f.Status, quotePath(f.Path))
		}
	}
	for _, v := range m.Volumes {
		fmt.Fprintf(bw, "Volume %d:\n", v.Number)
		fmt.Fprintf(bw, "    StartingPath   %s\n", pathBlockString(v.Start))
		fmt.Fprintf(bw, "    EndingPath     %s\n", pathBlockString(v.End))
		for _, h := range v.Hashes {
			fmt.Fprintf(bw, "    Hash %s %s\n", h.Type, hex.EncodeToString(h.Sum))
		}
	}
	return bw.Flush()
}

func quotePath(p []byte) []byte {
	if len(p) == 0 {
		return []byte(".")
	}
	return rawpath.Quote(p)
}

func pathBlockString(pb PathBlock) string {
	if pb.HasBlock {
		return fmt.Sprintf("%s %d", quotePath(pb.Path), pb.Block)
	}
	return string(quotePath(pb.Path))
}
