package trace

import (
	"bytes"
	"strings"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordAndCounters(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.RecordEvent(FromTransmitter, "DATA", 1, false, false); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordEvent(FromTransmitter, "DATA", 1, true, false); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordEvent(FromReceiver, "ACK", 1, false, true); err != nil {
		t.Fatal(err)
	}

	c, err := db.LoadCounters()
	if err != nil {
		t.Fatal(err)
	}
	if c.Seen != 3 {
		t.Fatalf("Seen = %d, want 3", c.Seen)
	}
	if c.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", c.Dropped)
	}
	if c.Retransmits != 1 {
		t.Fatalf("Retransmits = %d, want 1", c.Retransmits)
	}
}

func TestDataTraceAndCSV(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for _, seq := range []uint32{1, 2, 3} {
		if err := db.RecordEvent(FromTransmitter, "DATA", seq, false, false); err != nil {
			t.Fatal(err)
		}
	}
	trace, err := db.DataTrace()
	if err != nil {
		t.Fatal(err)
	}
	if len(trace) != 3 || trace[0][1] != 1 || trace[2][1] != 3 {
		t.Fatalf("unexpected trace: %+v", trace)
	}

	var buf bytes.Buffer
	if err := db.ExportCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 { // header + 3 rows
		t.Fatalf("got %d CSV lines, want 4: %q", len(lines), buf.String())
	}
}
