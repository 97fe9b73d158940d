// Package integration wires a Transmitter, a Network Emulator, and a
// Receiver together over real loopback UDP sockets, exercising the
// scenarios spec.md §8 describes at the level no single package's own
// tests can reach: the full three-party pipeline.
package integration

import (
	"bytes"
	"net"
	"testing"
	"time"

	"dev.c0redev.rdtp/internal/emulator"
	"dev.c0redev.rdtp/internal/logx"
	"dev.c0redev.rdtp/internal/receiver"
	"dev.c0redev.rdtp/internal/sendbuf"
	"dev.c0redev.rdtp/internal/transmitter"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type memConsumer struct {
	buf bytes.Buffer
}

func (m *memConsumer) Write(p []byte) error { _, err := m.buf.Write(p); return err }
func (m *memConsumer) Close() error         { return nil }

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

// runPipeline wires tx <-emulator-> rx, seeds the emulator's loss PRNG for
// reproducibility, and returns once the Receiver sees EOT or the deadline
// passes.
func runPipeline(t *testing.T, lines [][]byte, delayMS int64, dropPct int32, seed int64) *memConsumer {
	t.Helper()

	txConn := listen(t)
	defer txConn.Close()
	emuConn := listen(t)
	defer emuConn.Close()
	rxConn := listen(t)
	defer rxConn.Close()

	txAddr := txConn.LocalAddr().(*net.UDPAddr)
	rxAddr := rxConn.LocalAddr().(*net.UDPAddr)
	emuAddr := emuConn.LocalAddr().(*net.UDPAddr)

	log := logx.New(discardWriter{})

	eng := emulator.New(emuConn, txAddr, rxAddr, nil, log)
	eng.SeedRand(seed)
	eng.Knobs.SetDelay(delayMS)
	eng.Knobs.SetProbability(dropPct)
	go eng.Run()

	consumer := &memConsumer{}
	rx := receiver.New(rxConn, emuAddr, consumer, log)
	rxDone := make(chan error, 1)
	go func() { rxDone <- rx.Run() }()

	buf := sendbuf.New(lines)
	tx := transmitter.New(txConn, emuAddr, buf, log)
	txDone := make(chan error, 1)
	go func() { txDone <- tx.Run() }()

	select {
	case err := <-txDone:
		if err != nil {
			t.Fatalf("transmitter: %v", err)
		}
	// Each loss costs a full RTO (2 s initially, up to the 5 s cap after a
	// timeout), so a lossy run can need several timeouts' worth of time.
	case <-time.After(60 * time.Second):
		t.Fatal("transmitter did not finish in time")
	}

	select {
	case err := <-rxDone:
		if err != nil {
			t.Fatalf("receiver: %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("receiver did not see EOT in time")
	}

	return consumer
}

// TestLosslessDelivery covers spec.md §8 S1: no delay, no loss, message
// arrives byte-for-byte and in order.
func TestLosslessDelivery(t *testing.T) {
	lines := [][]byte{[]byte("alpha\n"), []byte("beta\n"), []byte("gamma\n")}
	consumer := runPipeline(t, lines, 0, 0, 1)

	want := "alpha\nbeta\ngamma\n"
	if consumer.buf.String() != want {
		t.Fatalf("delivered = %q, want %q", consumer.buf.String(), want)
	}
}

// TestDeliveryUnderLossAndDelay covers spec.md §8 S2: a fixed PRNG seed and
// nonzero drop probability still converges on full, correct, in-order
// delivery because the Transmitter retransmits anything the Emulator drops.
func TestDeliveryUnderLossAndDelay(t *testing.T) {
	lines := make([][]byte, 0, 12)
	for i := 0; i < 12; i++ {
		lines = append(lines, []byte(string(rune('a'+i))+"\n"))
	}
	consumer := runPipeline(t, lines, 2, 10, 7)

	var want bytes.Buffer
	for _, l := range lines {
		want.Write(l)
	}
	if consumer.buf.String() != want.String() {
		t.Fatalf("delivered = %q, want %q", consumer.buf.String(), want.String())
	}
}
