package receiver

import (
	"bytes"
	"net"
	"testing"
	"time"

	"dev.c0redev.rdtp/internal/frame"
	"dev.c0redev.rdtp/internal/logx"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type memConsumer struct {
	buf bytes.Buffer
}

func (m *memConsumer) Write(p []byte) error { _, err := m.buf.Write(p); return err }
func (m *memConsumer) Close() error         { return nil }

func newTestReceiver(t *testing.T) (*Receiver, *net.UDPConn, *memConsumer, func()) {
	t.Helper()
	rxConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	peerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	consumer := &memConsumer{}
	log := logx.New(discardWriter{})
	r := New(rxConn, peerConn.LocalAddr().(*net.UDPAddr), consumer, log)
	cleanup := func() {
		rxConn.Close()
		peerConn.Close()
	}
	return r, peerConn, consumer, cleanup
}

func sendFrame(t *testing.T, conn *net.UDPConn, to *net.UDPAddr, f frame.Frame) {
	t.Helper()
	b := frame.Encode(&f)
	if _, err := conn.WriteToUDP(b, to); err != nil {
		t.Fatal(err)
	}
}

func recvAck(t *testing.T, conn *net.UDPConn) frame.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, frame.Size)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	f, err := frame.Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestInOrderDelivery(t *testing.T) {
	r, peer, consumer, cleanup := newTestReceiver(t)
	defer cleanup()

	go r.Run()

	rxAddr := r.conn.LocalAddr().(*net.UDPAddr)
	for i, line := range []string{"a\n", "b\n", "c\n"} {
		sendFrame(t, peer, rxAddr, frame.NewData(uint32(i+1), []byte(line), 1, false))
		ack := recvAck(t, peer)
		if ack.Kind != frame.ACK || ack.Ack != uint32(i+1) {
			t.Fatalf("unexpected ack: %+v", ack)
		}
	}
	sendFrame(t, peer, rxAddr, frame.NewEOT())
	time.Sleep(50 * time.Millisecond)

	if consumer.buf.String() != "a\nb\nc\n" {
		t.Fatalf("delivered = %q, want %q", consumer.buf.String(), "a\nb\nc\n")
	}
}

func TestOutOfOrderReassembly(t *testing.T) {
	r, peer, consumer, cleanup := newTestReceiver(t)
	defer cleanup()

	go r.Run()
	rxAddr := r.conn.LocalAddr().(*net.UDPAddr)

	// arrive out of order: 2, 3, 1 (one burst of three, so window=3)
	sendFrame(t, peer, rxAddr, frame.NewData(2, []byte("b\n"), 3, false))
	recvAck(t, peer)
	sendFrame(t, peer, rxAddr, frame.NewData(3, []byte("c\n"), 3, false))
	recvAck(t, peer)
	sendFrame(t, peer, rxAddr, frame.NewData(1, []byte("a\n"), 3, false))
	recvAck(t, peer)
	sendFrame(t, peer, rxAddr, frame.NewEOT())
	time.Sleep(50 * time.Millisecond)

	if consumer.buf.String() != "a\nb\nc\n" {
		t.Fatalf("delivered = %q, want %q", consumer.buf.String(), "a\nb\nc\n")
	}
}

func TestDuplicateDataIgnored(t *testing.T) {
	r, peer, consumer, cleanup := newTestReceiver(t)
	defer cleanup()

	go r.Run()
	rxAddr := r.conn.LocalAddr().(*net.UDPAddr)

	sendFrame(t, peer, rxAddr, frame.NewData(1, []byte("a\n"), 1, false))
	recvAck(t, peer)
	sendFrame(t, peer, rxAddr, frame.NewData(1, []byte("a\n"), 1, true)) // retransmit duplicate
	recvAck(t, peer)
	sendFrame(t, peer, rxAddr, frame.NewEOT())
	time.Sleep(50 * time.Millisecond)

	if consumer.buf.String() != "a\n" {
		t.Fatalf("delivered = %q, want %q (no duplicate)", consumer.buf.String(), "a\n")
	}
	if r.DuplicateCount != 1 {
		t.Fatalf("DuplicateCount = %d, want 1", r.DuplicateCount)
	}
}
