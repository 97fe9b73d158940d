// Package emulator implements spec.md §4.3: a bidirectional store-and-
// forward relay between the Transmitter and Receiver that applies a
// configurable per-hop delay and a configurable per-packet drop
// probability, with observability counters and a packet trace.
//
// Grounded on the teacher's internal/agent/relay.go store-and-forward
// shape (read one message, classify, optionally forward to the other
// side) generalized from TCP stream relaying to single-datagram UDP
// relaying with inline delay/loss instead of byte-stream copying.
package emulator

import (
	"math/rand"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"dev.c0redev.rdtp/internal/frame"
	"dev.c0redev.rdtp/internal/logx"
	"dev.c0redev.rdtp/internal/trace"
)

// Knobs are the operator-mutable runtime parameters spec.md §4.3 allows to
// change at any time, taking effect on the next datagram. Stored as
// atomics since the datagram loop and an operator surface (§4.3's "runtime
// knobs") may run on different goroutines.
type Knobs struct {
	delayMS     atomic.Int64
	probability atomic.Int32
	paused      atomic.Bool
}

// SetDelay sets the per-hop delay in milliseconds.
func (k *Knobs) SetDelay(ms int64) { k.delayMS.Store(ms) }

// Delay returns the current per-hop delay in milliseconds.
func (k *Knobs) Delay() int64 { return k.delayMS.Load() }

// SetProbability sets the per-packet drop probability in percent [0, 100].
func (k *Knobs) SetProbability(p int32) { k.probability.Store(p) }

// Probability returns the current drop probability in percent.
func (k *Knobs) Probability() int32 { return k.probability.Load() }

// SetPaused toggles the paused knob: while paused, every datagram is
// dropped silently (not forwarded, not counted).
func (k *Knobs) SetPaused(p bool) { k.paused.Store(p) }

// Paused reports the current paused state.
func (k *Knobs) Paused() bool { return k.paused.Load() }

// Engine is the single-threaded, single-socket relay loop. Because delay
// is applied inline, a datagram from one direction that is still "in its
// delay window" blocks processing of the other direction's datagrams —
// acceptable at this protocol's scale (spec.md §5).
type Engine struct {
	conn            *net.UDPConn
	transmitterAddr *net.UDPAddr
	receiverAddr    *net.UDPAddr
	Knobs           *Knobs
	trace           *trace.DB
	log             *logx.Logger
	rng             *rand.Rand

	// Sleep is the delay primitive; overridable in tests to avoid real
	// wall-clock sleeps while still exercising the pipeline.
	Sleep func(time.Duration)
}

// New builds an Engine relaying between transmitterAddr and receiverAddr
// over conn, recording observability data into tr.
func New(conn *net.UDPConn, transmitterAddr, receiverAddr *net.UDPAddr, tr *trace.DB, log *logx.Logger) *Engine {
	return &Engine{
		conn:            conn,
		transmitterAddr: transmitterAddr,
		receiverAddr:    receiverAddr,
		Knobs:           &Knobs{},
		trace:           tr,
		log:             log,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		Sleep:           time.Sleep,
	}
}

// SeedRand fixes the loss-draw PRNG, for reproducible scenario tests
// (spec.md §8 S2: "fixed PRNG seed").
func (e *Engine) SeedRand(seed int64) {
	e.rng = rand.New(rand.NewSource(seed))
}

// Run reads and relays datagrams until conn is closed (returns nil), a read
// fails, or a datagram's forward fails or writes short — spec.md's I/O
// fatal case, which is fatal for the whole relay rather than recoverable
// per-datagram.
func (e *Engine) Run() error {
	buf := make([]byte, frame.Size)
	for {
		n, src, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return errors.Wrap(err, "recvfrom")
		}
		if err := e.handleDatagram(append([]byte(nil), buf[:n]...), src); err != nil {
			return err
		}
	}
}

func (e *Engine) handleDatagram(datagram []byte, src *net.UDPAddr) error {
	if e.Knobs.Paused() {
		return nil // dropped silently: no forward, no count.
	}

	dir, ok := e.classify(src)
	if !ok {
		e.log.Logf(logx.WARN, "discarding datagram from unrecognized source %s", src)
		return nil
	}

	if len(datagram) != frame.Size {
		e.log.Logf(logx.WARN, "discarding malformed datagram from %s: %d bytes", src, len(datagram))
		return nil
	}
	f, err := frame.Decode(datagram)
	if err != nil {
		e.log.Logf(logx.WARN, "discarding malformed frame from %s: %v", src, err)
		return nil
	}

	if delayMS := e.Knobs.Delay(); delayMS > 0 {
		e.Sleep(time.Duration(delayMS) * time.Millisecond)
	}

	dropped := e.drawDrop()
	if e.trace != nil {
		if err := e.trace.RecordEvent(dir, f.Kind.String(), f.Seq, f.Retransmit, dropped); err != nil {
			e.log.Logf(logx.ERROR, "record trace event: %v", err)
		}
	}
	if dropped {
		return nil
	}

	return e.forward(dir, datagram)
}

func (e *Engine) classify(src *net.UDPAddr) (trace.Direction, bool) {
	switch {
	case addrEqual(src, e.transmitterAddr):
		return trace.FromTransmitter, true
	case addrEqual(src, e.receiverAddr):
		return trace.FromReceiver, true
	default:
		return "", false
	}
}

// drawDrop implements spec.md §9 Open Question 4's resolved rule exactly:
// draw a uniform integer in [1, 100]; drop if probability >= draw. A
// probability of 0 never drops (draw is never <= 0); a probability of 100
// always drops (draw is always <= 100).
func (e *Engine) drawDrop() bool {
	draw := e.rng.Intn(100) + 1
	return int32(draw) <= e.Knobs.Probability()
}

// forward relays datagram to its destination. A short write here is the
// I/O fatal case spec.md calls out: unlike a malformed or dropped
// datagram, it is not recoverable per-datagram, so it propagates up
// through Run() instead of being logged and swallowed.
func (e *Engine) forward(dir trace.Direction, datagram []byte) error {
	var dst *net.UDPAddr
	if dir == trace.FromTransmitter {
		dst = e.receiverAddr
	} else {
		dst = e.transmitterAddr
	}
	n, err := e.conn.WriteToUDP(datagram, dst)
	if err != nil {
		return errors.Wrap(err, "forward to "+dst.String())
	}
	if n != len(datagram) {
		return errors.New("short write forwarding to " + dst.String())
	}
	return nil
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

func isClosed(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
