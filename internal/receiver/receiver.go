// Package receiver implements spec.md §4.2: immediate per-frame ACK,
// duplicate/gap classification, an out-of-order buffer bounded by window
// size, and contiguous-prefix delivery to a line consumer.
package receiver

import (
	"net"

	"github.com/pkg/errors"

	"dev.c0redev.rdtp/internal/config"
	"dev.c0redev.rdtp/internal/frame"
	"dev.c0redev.rdtp/internal/ioline"
	"dev.c0redev.rdtp/internal/logx"
)

// Receiver is single-threaded cooperative: blocking receive, process
// frame, send ACK, repeat. ACK emission happens synchronously before the
// next receive (spec.md §5).
type Receiver struct {
	conn         *net.UDPConn
	emulatorAddr *net.UDPAddr
	consumer     ioline.Consumer
	log          *logx.Logger

	nextSeqNum uint32
	windowSize int
	buffer     map[uint32][]byte

	// Stats exposed for tests/observability; not part of the protocol.
	DeliveredCount int
	DuplicateCount int
}

// New builds a Receiver bound to conn, ACKing toward emulatorAddr and
// delivering contiguous payloads to consumer.
func New(conn *net.UDPConn, emulatorAddr *net.UDPAddr, consumer ioline.Consumer, log *logx.Logger) *Receiver {
	return &Receiver{
		conn:         conn,
		emulatorAddr: emulatorAddr,
		consumer:     consumer,
		log:          log,
		nextSeqNum:   config.InitialSeqNum,
		windowSize:   config.MaxWindowSize,
		buffer:       make(map[uint32][]byte),
	}
}

// Run blocks receiving frames until EOT, then flushes whatever contiguous
// prefix remains and returns.
func (r *Receiver) Run() error {
	buf := make([]byte, frame.Size)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return errors.Wrap(err, "recvfrom")
		}
		if n != frame.Size {
			r.log.Logf(logx.WARN, "discarding malformed datagram: %d bytes", n)
			continue
		}
		f, err := frame.Decode(buf[:n])
		if err != nil {
			r.log.Logf(logx.WARN, "discarding malformed frame: %v", err)
			continue
		}
		switch f.Kind {
		case frame.EOT:
			r.flushContiguous()
			if len(r.buffer) > 0 {
				r.log.Logf(logx.ERROR, "EOT with %d unrecovered buffered seq(s): data lost", len(r.buffer))
			}
			return nil
		case frame.DATA:
			r.handleData(&f)
		default:
			r.log.Logf(logx.WARN, "discarding unexpected frame kind %v", f.Kind)
		}
	}
}

func (r *Receiver) handleData(f *frame.Frame) {
	if f.Window > 0 {
		r.windowSize = int(f.Window)
	}
	if err := r.sendAck(f.Seq); err != nil {
		r.log.Logf(logx.ERROR, "send ack for seq %d: %v", f.Seq, err)
	}

	switch {
	case f.Seq < r.nextSeqNum:
		r.DuplicateCount++
		r.log.Logf(logx.DEBUG, "duplicate seq=%d (already delivered)", f.Seq)
	case f.Seq == r.nextSeqNum:
		r.deliver(f.PayloadBytes())
		r.nextSeqNum++
		r.flushContiguous()
	default:
		if _, buffered := r.buffer[f.Seq]; !buffered {
			if len(r.buffer) < r.windowSize {
				payload := append([]byte(nil), f.PayloadBytes()...)
				r.buffer[f.Seq] = payload
			}
		}
	}
}

func (r *Receiver) flushContiguous() {
	for {
		payload, ok := r.buffer[r.nextSeqNum]
		if !ok {
			return
		}
		delete(r.buffer, r.nextSeqNum)
		r.deliver(payload)
		r.nextSeqNum++
	}
}

func (r *Receiver) deliver(payload []byte) {
	if err := r.consumer.Write(payload); err != nil {
		r.log.Logf(logx.ERROR, "write delivered payload: %v", err)
		return
	}
	r.DeliveredCount++
}

func (r *Receiver) sendAck(seq uint32) error {
	ack := frame.NewAck(seq)
	b := frame.Encode(&ack)
	n, err := r.conn.WriteToUDP(b, r.emulatorAddr)
	if err != nil {
		return errors.Wrap(err, "sendto")
	}
	if n != len(b) {
		return errors.New("short write")
	}
	return nil
}
