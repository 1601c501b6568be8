package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/rvc"
)

// Sighting describes one frame seen on the bus.
type Sighting struct {
	DGN      rvc.DGN
	Instance string
	Source   uint8
	Name     string
	Matched  bool
}

// SightingRecorder records frames seen on the bus.
// This is optional - if nil, the bridge operates without recording.
type SightingRecorder interface {
	RecordSighting(s Sighting)
}

// SightingRecord is a stored sighting row.
type SightingRecord struct {
	DGN          string    `json:"dgn"`
	Instance     string    `json:"instance"`
	Source       int       `json:"source_address"`
	Name         string    `json:"name"`
	Matched      bool      `json:"matched"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
}

// Recorder passively records every (DGN, instance, source) seen on the bus,
// building a table operators can query for devices that have no config yet.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	logHolder

	db *sql.DB

	// Prepared upsert (created once, reused)
	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex

	closed bool
	mu     sync.RWMutex
}

// NewRecorder creates a recorder. The database must have the dgn_sightings
// table (see migrations).
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Start prepares the recorder for use.
// Must be called before RecordSighting.
func (r *Recorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.upsertStmt != nil {
		return nil
	}

	stmt, err := r.db.Prepare(`
		INSERT INTO dgn_sightings (dgn, instance, source_address, name, matched, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(dgn, instance, source_address) DO UPDATE SET
			name = excluded.name,
			matched = excluded.matched,
			last_seen = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		return fmt.Errorf("preparing sighting upsert statement: %w", err)
	}

	r.upsertStmt = stmt
	r.logInfo("sighting recorder started")
	return nil
}

// Stop closes the recorder and releases resources.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.upsertStmt != nil {
		r.upsertStmt.Close()
		r.upsertStmt = nil
	}

	r.logInfo("sighting recorder stopped")
}

// RecordSighting upserts one sighting. Called for every received frame.
func (r *Recorder) RecordSighting(s Sighting) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	stmt := r.upsertStmt
	r.stmtMu.Unlock()

	if stmt == nil {
		return // Not started
	}

	matched := 0
	if s.Matched {
		matched = 1
	}
	now := time.Now().Unix()
	if _, err := stmt.Exec(s.DGN.String(), s.Instance, int(s.Source), s.Name, matched, now, now); err != nil {
		r.logError("recording sighting", err, "dgn", s.DGN.String())
	}
}

// Unmatched returns sightings that matched no device config, most recent first.
func (r *Recorder) Unmatched(ctx context.Context) ([]SightingRecord, error) {
	return r.query(ctx, `WHERE matched = 0`)
}

// Count returns the number of distinct sightings.
func (r *Recorder) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dgn_sightings`).Scan(&count)
	return count, err
}

func (r *Recorder) query(ctx context.Context, where string) ([]SightingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dgn, instance, source_address, name, matched, first_seen, last_seen, message_count
		FROM dgn_sightings `+where+`
		ORDER BY last_seen DESC, dgn ASC, instance ASC, source_address ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SightingRecord
	for rows.Next() {
		var (
			rec         SightingRecord
			matched     int
			first, last int64
		)
		if err := rows.Scan(&rec.DGN, &rec.Instance, &rec.Source, &rec.Name, &matched, &first, &last, &rec.MessageCount); err != nil {
			return nil, err
		}
		rec.Matched = matched != 0
		rec.FirstSeen = time.Unix(first, 0)
		rec.LastSeen = time.Unix(last, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}
