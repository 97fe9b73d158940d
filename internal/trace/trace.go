// Package trace persists the Network Emulator's observability data:
// counters and a (relative_time, seq) time-sequence of DATA frames seen
// from the Transmitter, per spec.md §4.3/§6. Grounded on the teacher's
// internal/store package — sqlite via github.com/mattn/go-sqlite3, the
// same Open/migrate/DB{*sql.DB} shape — repurposed from a control-plane
// user/token store into a packet-trace store with CSV export, since
// spec.md §6 asks for "Optional CSV export of the emulator packet trace."
package trace

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pkg/errors"
)

// DB wraps the emulator's trace store.
type DB struct {
	*sql.DB
	start time.Time
}

// Open opens (creating if absent) the sqlite trace database at path and
// runs its migration. Pass ":memory:" for an ephemeral, test-only store.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "open trace db")
	}
	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "migrate trace db")
	}
	return &DB{DB: sqlDB, start: time.Now()}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			relative_ms INTEGER NOT NULL,
			direction TEXT NOT NULL,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			retransmit INTEGER NOT NULL,
			dropped INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_seq ON events(seq);
	`)
	return err
}

// Direction is the relayed datagram's origin, from the Emulator's point of
// view.
type Direction string

const (
	FromTransmitter Direction = "transmitter"
	FromReceiver    Direction = "receiver"
)

// RecordEvent appends one relayed-or-dropped datagram observation.
func (db *DB) RecordEvent(dir Direction, kind string, seq uint32, retransmit, dropped bool) error {
	relMS := time.Since(db.start).Milliseconds()
	_, err := db.Exec(
		`INSERT INTO events (relative_ms, direction, kind, seq, retransmit, dropped) VALUES (?, ?, ?, ?, ?, ?)`,
		relMS, string(dir), kind, seq, boolToInt(retransmit), boolToInt(dropped),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DataTrace returns the (relative_time_ms, seq) sequence observed from the
// Transmitter direction, in recorded order — spec.md §4.3's "time-sequence
// trace of (relative_time, seq) for DATA frames observed from the
// transmitter."
func (db *DB) DataTrace() ([][2]int64, error) {
	rows, err := db.Query(
		`SELECT relative_ms, seq FROM events WHERE direction = ? AND kind = 'DATA' ORDER BY id`,
		string(FromTransmitter),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]int64
	for rows.Next() {
		var relMS, seq int64
		if err := rows.Scan(&relMS, &seq); err != nil {
			return nil, err
		}
		out = append(out, [2]int64{relMS, seq})
	}
	return out, rows.Err()
}

// Counters summarizes total seen, dropped, and transmitter-side retransmits.
type Counters struct {
	Seen        int64
	Dropped     int64
	Retransmits int64
}

// LoadCounters aggregates the events table into Counters.
func (db *DB) LoadCounters() (Counters, error) {
	var c Counters
	row := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(dropped), 0) FROM events`)
	if err := row.Scan(&c.Seen, &c.Dropped); err != nil {
		return c, err
	}
	row = db.QueryRow(`SELECT COUNT(*) FROM events WHERE direction = ? AND kind = 'DATA' AND retransmit = 1`, string(FromTransmitter))
	if err := row.Scan(&c.Retransmits); err != nil {
		return c, err
	}
	return c, nil
}

// ExportCSV writes every recorded event to w as CSV, per spec.md §6's
// "Optional CSV export of the emulator packet trace."
func (db *DB) ExportCSV(w io.Writer) error {
	rows, err := db.Query(`SELECT relative_ms, direction, kind, seq, retransmit, dropped FROM events ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	if _, err := io.WriteString(w, "relative_ms,direction,kind,seq,retransmit,dropped\n"); err != nil {
		return err
	}
	for rows.Next() {
		var relMS int64
		var direction, kind string
		var seq int64
		var retransmit, dropped int
		if err := rows.Scan(&relMS, &direction, &kind, &seq, &retransmit, &dropped); err != nil {
			return err
		}
		line := fmt.Sprintf("%d,%s,%s,%d,%d,%d\n", relMS, direction, kind, seq, retransmit, dropped)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return rows.Err()
}
