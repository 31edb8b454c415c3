package secrets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PromptSource asks for the passphrase once and remembers the answer.
// On a terminal the input is not echoed.
type PromptSource struct {
	in     *os.File
	out    io.Writer
	prompt string

	once       sync.Once
	passphrase string
	err        error
}

// NewPromptSource prompts on out and reads from in.
func NewPromptSource(in *os.File, out io.Writer, prompt string) *PromptSource {
	return &PromptSource{in: in, out: out, prompt: prompt}
}

func (s *PromptSource) Passphrase() (string, error) {
	s.once.Do(func() {
		s.passphrase, s.err = s.read()
	})
	return s.passphrase, s.err
}

func (s *PromptSource) read() (string, error) {
	fmt.Fprint(s.out, s.prompt)
	defer fmt.Fprintln(s.out)

	fd := int(s.in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if len(b) == 0 {
			return "", ErrNoPassphrase
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(s.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrNoPassphrase
	}
	return line, nil
}
