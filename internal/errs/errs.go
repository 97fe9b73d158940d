// Package errs classifies failures into the kinds spec'd for this protocol:
// configuration, transient I/O, fatal I/O, protocol, and timeout. Only
// Config and IOFatal ever reach a process's exit path; the rest are
// recovered locally by the component that saw them.
package errs

import "github.com/pkg/errors"

// Kind is one of the five error categories every peer distinguishes.
type Kind int

const (
	// Config covers unknown hosts, unreadable input files, ports already bound.
	// Fatal at startup.
	Config Kind = iota
	// Transient covers an empty non-blocking socket read. Not actually an error.
	Transient
	// IOFatal covers socket creation, bind, and short/failed sendto.
	IOFatal
	// Protocol covers malformed frames, unknown sources, size mismatches.
	// Logged and discarded, never propagated.
	Protocol
	// Timeout covers a missed ACK deadline. Recovered via retransmission.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Transient:
		return "transient"
	case IOFatal:
		return "io_fatal"
	case Protocol:
		return "protocol"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with the wrapped cause so callers can both log the
// chain and branch on Kind with errors.As.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.cause.Error() }
func (e *kindError) Unwrap() error { return e.cause }

// Wrap annotates err with kind and a message, preserving the causal chain
// (github.com/pkg/errors.Wrap) so a top-level log.Fatal prints the full
// trail instead of the last message only.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.Wrap(err, message)}
}

// New builds a fresh error of kind with no existing cause.
func New(kind Kind, message string) error {
	return &kindError{kind: kind, cause: errors.New(message)}
}

// KindOf extracts the Kind a Wrap/New error was created with, false if err
// was never classified by this package.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return 0, false
}
