// Package transmitter implements spec.md §4.1: the four-state sliding
// window send engine with adaptive RTO-driven selective retransmission and
// a terminating EOT burst.
package transmitter

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"dev.c0redev.rdtp/internal/config"
	"dev.c0redev.rdtp/internal/frame"
	"dev.c0redev.rdtp/internal/logx"
	"dev.c0redev.rdtp/internal/rto"
	"dev.c0redev.rdtp/internal/sendbuf"
	"dev.c0redev.rdtp/internal/unacked"
)

// pollQuantum is the non-blocking receive-poll timeout spec.md §4.1/§5
// fixes at ~300µs.
var pollQuantum = time.Duration(config.PollInterval) * time.Microsecond

// state is one of the four states of spec.md §4.1.
type state int

const (
	sendingPackets state = iota
	waitForACKs
	allACKsReceived
	allPacketsSent
)

// Transmitter drives the sliding window over a UDP socket addressed at the
// Network Emulator. Single-threaded cooperative: Run never spawns a
// goroutine and never blocks longer than pollQuantum.
type Transmitter struct {
	conn         *net.UDPConn
	emulatorAddr *net.UDPAddr
	buf          *sendbuf.Buffer
	unacked      *unacked.Set
	estimator    *rto.Estimator
	log          *logx.Logger

	window  int
	nextSeq uint32
	state   state
	start   time.Time

	// Stats exposed for tests/observability; not part of the protocol.
	SentCount        int
	RetransmitCount  int
	AckReceivedCount int
}

// New builds a Transmitter on the already bound conn, sending to
// emulatorAddr, delivering buf's lines.
func New(conn *net.UDPConn, emulatorAddr *net.UDPAddr, buf *sendbuf.Buffer, log *logx.Logger) *Transmitter {
	return &Transmitter{
		conn:         conn,
		emulatorAddr: emulatorAddr,
		buf:          buf,
		unacked:      unacked.New(),
		estimator:    rto.New(),
		log:          log,
		window:       config.InitialWindowSize,
		nextSeq:      sendbuf.InitialSeqNum,
		state:        sendingPackets,
	}
}

// Run drives the state machine to completion: every line in buf delivered
// and acknowledged (as far as this side can tell), followed by the EOT
// burst. Returns only on completion or a fatal socket error.
func (t *Transmitter) Run() error {
	for {
		switch t.state {
		case sendingPackets:
			t.sendBurst()
		case waitForACKs:
			if err := t.pollOnce(); err != nil {
				return err
			}
		case allACKsReceived:
			if t.nextSeq <= t.buf.LastSeq() {
				t.unacked.Reset()
				t.state = sendingPackets
			} else {
				t.state = allPacketsSent
			}
		case allPacketsSent:
			t.sendEOTBurst()
			return nil
		}
	}
}

func (t *Transmitter) sendBurst() {
	sent := 0
	for sent < t.window {
		line, ok := t.buf.Get(t.nextSeq)
		if !ok {
			break // end of send buffer reached mid-burst; shorten and move on.
		}
		f := frame.NewData(t.nextSeq, line, int32(t.window), false)
		if err := t.sendFrame(&f); err != nil {
			t.log.Logf(logx.ERROR, "send seq %d: %v", t.nextSeq, err)
		} else {
			t.unacked.Insert(t.nextSeq, f)
			t.SentCount++
			t.log.Logf(logx.INFO, "sent DATA seq=%d window=%d", t.nextSeq, t.window)
		}
		t.nextSeq++
		sent++
	}
	t.start = time.Now()
	t.state = waitForACKs
}

func (t *Transmitter) pollOnce() error {
	if t.unacked.Len() == 0 {
		t.state = allACKsReceived
		return nil
	}

	elapsed := time.Since(t.start)
	if elapsed >= t.estimator.TimeoutInterval() {
		t.retransmitAll(elapsed)
		return nil
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(pollQuantum)); err != nil {
		return errors.Wrap(err, "set read deadline")
	}
	buf := make([]byte, frame.Size)
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return nil // expected; not an error, loop continues.
		}
		t.log.Logf(logx.WARN, "recv: %v", err)
		return nil
	}
	if n != frame.Size {
		t.log.Logf(logx.WARN, "discarding malformed datagram: %d bytes", n)
		return nil
	}
	f, err := frame.Decode(buf[:n])
	if err != nil {
		t.log.Logf(logx.WARN, "discarding malformed frame: %v", err)
		return nil
	}
	if f.Kind != frame.ACK {
		return nil
	}
	if !t.unacked.Has(f.Ack) {
		return nil // duplicate or unknown ACK, silently ignored.
	}
	t.unacked.Delete(f.Ack)
	t.AckReceivedCount++
	t.estimator.Update(time.Since(t.start))
	if t.window < config.MaxWindowSize {
		t.window++
	}
	t.log.Logf(logx.INFO, "acked seq=%d window=%d rto=%v", f.Ack, t.window, t.estimator.TimeoutInterval())
	return nil
}

func (t *Transmitter) retransmitAll(sample time.Duration) {
	t.estimator.Update(sample)
	t.window = t.window / 2
	if t.window < 1 {
		t.window = 1
	}
	t.unacked.Ascend(func(seq uint32, f frame.Frame) bool {
		f.Retransmit = true
		if err := t.sendFrame(&f); err != nil {
			t.log.Logf(logx.ERROR, "retransmit seq %d: %v", seq, err)
		} else {
			t.RetransmitCount++
			t.log.Logf(logx.INFO, "retransmitted DATA seq=%d window=%d", seq, t.window)
		}
		return true
	})
	t.start = time.Now()
}

func (t *Transmitter) sendEOTBurst() {
	eot := frame.NewEOT()
	for i := 0; i < config.EOTBurstCopies; i++ {
		if err := t.sendFrame(&eot); err != nil {
			t.log.Logf(logx.ERROR, "send EOT copy %d: %v", i, err)
		}
	}
	t.log.Log(logx.INFO, "transmission complete")
}

func (t *Transmitter) sendFrame(f *frame.Frame) error {
	b := frame.Encode(f)
	n, err := t.conn.WriteToUDP(b, t.emulatorAddr)
	if err != nil {
		return errors.Wrap(err, "sendto")
	}
	if n != len(b) {
		return errors.New("short write")
	}
	return nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
