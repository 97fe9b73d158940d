// Package ioline is the thin out-of-scope collaborator spec.md §1 calls
// for: "an abstract line-producer on the transmitter side and an abstract
// line-consumer on the receiver side". File I/O itself is not part of the
// core protocol; these interfaces let the Transmitter/Receiver core stay
// ignorant of where lines come from or go.
package ioline

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Producer yields the input lines to be segmented into DATA frames, in
// order, newline included.
type Producer interface {
	// Lines returns every line of the input, in order, each with its
	// trailing newline preserved (or appended, for a final unterminated
	// line) — matching spec.md §6's "one line <= 256 bytes, including
	// newline, per frame".
	Lines() ([][]byte, error)
}

// Consumer accepts delivered payloads in strictly increasing order and
// persists them.
type Consumer interface {
	// Write appends one delivered payload to the output.
	Write(payload []byte) error
	// Close releases any underlying resource.
	Close() error
}

// FileProducer reads an on-disk text file into memory line by line.
type FileProducer struct {
	Path string
}

// Lines implements Producer by reading Path fully and splitting on '\n',
// keeping the newline on every line including a synthesized one on the
// final line if the file didn't end with one.
func (p *FileProducer) Lines() ([][]byte, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open input file")
	}
	defer f.Close()

	var lines [][]byte
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if line[len(line)-1] != '\n' {
				line = append(line, '\n')
			}
			lines = append(lines, line)
		}
		if err != nil {
			break
		}
	}
	return lines, nil
}

// FileConsumer appends delivered payloads to an on-disk file, auto-creating
// its parent directory, matching spec.md §6's "./data/message.txt (directory
// auto-created)".
type FileConsumer struct {
	f *os.File
}

// NewFileConsumer opens path for append (creating it if absent; existing
// content is kept), creating its parent directory first.
func NewFileConsumer(path string) (*FileConsumer, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create output directory")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open output file")
	}
	return &FileConsumer{f: f}, nil
}

// Write implements Consumer.
func (c *FileConsumer) Write(payload []byte) error {
	_, err := c.f.Write(payload)
	return err
}

// Close implements Consumer.
func (c *FileConsumer) Close() error {
	return c.f.Close()
}
