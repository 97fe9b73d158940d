// Package sendbuf holds the Transmitter's send buffer: spec.md §3's "full
// ordered sequence of DATA frames to ever be transmitted", indexed by
// seq-1, persistent for the session so retransmission can re-read it.
package sendbuf

import "dev.c0redev.rdtp/internal/config"

// InitialSeqNum is the first sequence number used in a session.
const InitialSeqNum = config.InitialSeqNum

// Buffer is the Transmitter's ordered, persistent list of lines to send.
type Buffer struct {
	lines [][]byte
}

// New loads lines (already split by the caller's ioline.Producer) into a
// Buffer. seq N corresponds to lines[N-InitialSeqNum].
func New(lines [][]byte) *Buffer {
	return &Buffer{lines: lines}
}

// Len reports the total number of DATA frames in the session.
func (b *Buffer) Len() int {
	return len(b.lines)
}

// Get returns the line for seq, and whether seq falls within the buffer.
func (b *Buffer) Get(seq uint32) ([]byte, bool) {
	idx := int(seq) - InitialSeqNum
	if idx < 0 || idx >= len(b.lines) {
		return nil, false
	}
	return b.lines[idx], true
}

// LastSeq returns the final DATA seq in the session (0 if empty).
func (b *Buffer) LastSeq() uint32 {
	if len(b.lines) == 0 {
		return 0
	}
	return uint32(len(b.lines)-1) + InitialSeqNum
}
