// ════════════════════════════════════════════════════════════════════════════════════════════════
// Trace Store
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SQLite persistence for execution traces
//
// Tables:
//   commands(seq, nanos, addr, word, cmd, overlay, highpri)
//   meta(key, value)   value is a JSON document
//
// Inserts are batched in one transaction per call; the recorder hands over up
// to constants.TraceBatch records at a time.
// ════════════════════════════════════════════════════════════════════════════════════════════════

package trace

import (
	"database/sql"
	"fmt"

	"rspq/rdram"
	"rspq/utils"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"
)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	seq     INTEGER PRIMARY KEY,
	nanos   INTEGER NOT NULL,
	addr    INTEGER NOT NULL,
	word    INTEGER NOT NULL,
	cmd     INTEGER NOT NULL,
	overlay INTEGER NOT NULL,
	highpri INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS commands_overlay ON commands(overlay);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Store is a trace database.
type Store struct {
	db *sql.DB
}

// OverlayCount is the number of traced commands under one overlay id.
type OverlayCount struct {
	Overlay uint8
	Count   int
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes recs in one transaction.
func (s *Store) Insert(recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("trace: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO commands (seq, nanos, addr, word, cmd, overlay, highpri)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("trace: prepare: %w", err)
	}
	defer stmt.Close()

	for i := range recs {
		r := &recs[i]
		hp := 0
		if r.Highpri {
			hp = 1
		}
		if _, err := stmt.Exec(int64(r.Seq), r.Nanos, int64(r.Addr), int64(r.Word), int(r.ID()), int(r.Overlay()), hp); err != nil {
			tx.Rollback()
			return fmt.Errorf("trace: insert seq %d: %w", r.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("trace: commit: %w", err)
	}
	return nil
}

// Records returns every stored record in execution order.
func (s *Store) Records() ([]Record, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM commands").Scan(&n); err != nil {
		return nil, fmt.Errorf("trace: count: %w", err)
	}
	recs := make([]Record, 0, n)

	rows, err := s.db.Query("SELECT seq, nanos, addr, word, highpri FROM commands ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("trace: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq, nanos, addr, word int64
			hp                     int
		)
		if err := rows.Scan(&seq, &nanos, &addr, &word, &hp); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		recs = append(recs, Record{
			Seq:     uint64(seq),
			Nanos:   nanos,
			Addr:    rdram.Addr(addr),
			Word:    uint32(word),
			Highpri: hp != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trace: rows: %w", err)
	}
	return recs, nil
}

// CountByOverlay returns how many commands ran under each overlay id.
func (s *Store) CountByOverlay() ([]OverlayCount, error) {
	rows, err := s.db.Query("SELECT overlay, COUNT(*) FROM commands GROUP BY overlay ORDER BY overlay")
	if err != nil {
		return nil, fmt.Errorf("trace: query: %w", err)
	}
	defer rows.Close()

	var out []OverlayCount
	for rows.Next() {
		var c OverlayCount
		if err := rows.Scan(&c.Overlay, &c.Count); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetMeta stores v as JSON under key, replacing any previous value.
func (s *Store) SetMeta(key string, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("trace: encode meta %q: %w", key, err)
	}
	if _, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, utils.B2s(data)); err != nil {
		return fmt.Errorf("trace: store meta %q: %w", key, err)
	}
	return nil
}

// Meta decodes the JSON stored under key into v.
func (s *Store) Meta(key string, v any) error {
	var data string
	if err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&data); err != nil {
		return fmt.Errorf("trace: load meta %q: %w", key, err)
	}
	if err := sonnet.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("trace: decode meta %q: %w", key, err)
	}
	return nil
}
