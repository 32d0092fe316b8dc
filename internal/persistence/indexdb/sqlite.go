// Package indexdb is a queryable SQLite read-model of dispatch outcomes. The
// journal stays the source of truth; the index may drop rows under load.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelbuild.ai/internal/dispatch"
)

const defaultQueueSize = 4096

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	WriteErrTotal uint64 `json:"write_err_total"`
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan dispatch.Outcome
	wg   sync.WaitGroup
	once sync.Once

	closed   atomic.Bool
	drops    atomic.Uint64
	writeErr atomic.Uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan dispatch.Outcome, defaultQueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			kind TEXT NOT NULL,
			translated TEXT NOT NULL,
			error TEXT NOT NULL,
			commands INTEGER NOT NULL,
			enqueued_at TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_finished ON requests(finished_at);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_kind ON requests(kind);`,
		`CREATE TABLE IF NOT EXISTS builds (
			request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			origin_x INTEGER NOT NULL,
			origin_z INTEGER NOT NULL,
			material TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			hollow INTEGER NOT NULL,
			ground_y INTEGER NOT NULL,
			status TEXT NOT NULL,
			fills INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (request_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_pos ON builds(origin_x, origin_z);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Record queues an outcome for indexing. It never blocks; when the writer
// falls behind the outcome is dropped and counted.
func (s *SQLiteIndex) Record(o dispatch.Outcome) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- o:
	default:
		s.drops.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.drops.Load(),
		WriteErrTotal: s.writeErr.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRequest, _ := s.db.Prepare(`INSERT OR REPLACE INTO requests(id,text,kind,translated,error,commands,enqueued_at,started_at,finished_at,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	deleteBuilds, _ := s.db.Prepare(`DELETE FROM builds WHERE request_id = ?`)
	insertBuild, _ := s.db.Prepare(`INSERT INTO builds(request_id,seq,origin_x,origin_z,material,width,height,hollow,ground_y,status,fills,error) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRequest, deleteBuilds, insertBuild} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		commitEvery   = 256
		commitMaxWait = 500 * time.Millisecond
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErr.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErr.Add(1)
			s.drops.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.drops.Add(uint64(opCount))
		tx = nil
		opCount = 0
	}

	writeRows := func(o dispatch.Outcome, raw []byte) error {
		if _, err := tx.Stmt(insertRequest).Exec(
			o.Request.ID,
			o.Request.Text,
			string(o.Kind),
			o.Translated,
			o.Err,
			len(o.Commands),
			formatTime(o.Request.EnqueuedAt),
			formatTime(o.StartedAt),
			formatTime(o.FinishedAt),
			string(raw),
		); err != nil {
			return err
		}
		if _, err := tx.Stmt(deleteBuilds).Exec(o.Request.ID); err != nil {
			return err
		}
		for i, b := range o.Builds {
			in := b.Instruction
			if _, err := tx.Stmt(insertBuild).Exec(
				o.Request.ID, i,
				in.OriginX, in.OriginZ,
				b.Material,
				in.Width, in.Height,
				boolInt(in.Hollow),
				b.GroundY,
				string(b.Status),
				b.Fills,
				b.Err,
			); err != nil {
				return err
			}
		}
		return nil
	}

	// A failed write discards only its own outcome; the open batch survives.
	write := func(o dispatch.Outcome) error {
		if insertRequest == nil || deleteBuilds == nil || insertBuild == nil {
			return fmt.Errorf("statements not prepared")
		}
		raw, err := json.Marshal(o)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `SAVEPOINT outcome`); err != nil {
			return err
		}
		if err := writeRows(o, raw); err != nil {
			if _, rerr := tx.ExecContext(ctx, `ROLLBACK TO outcome`); rerr != nil {
				rollback()
				return err
			}
			_, _ = tx.ExecContext(ctx, `RELEASE outcome`)
			return err
		}
		if _, err := tx.ExecContext(ctx, `RELEASE outcome`); err != nil {
			rollback()
			return err
		}
		return nil
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case o, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				s.drops.Add(1)
				continue
			}
			if err := write(o); err != nil {
				s.writeErr.Add(1)
				s.drops.Add(1)
				continue
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}

// RecentOutcomes returns up to limit outcomes, most recently finished first.
func (s *SQLiteIndex) RecentOutcomes(ctx context.Context, limit int) ([]dispatch.Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM requests ORDER BY finished_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dispatch.Outcome
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var o dispatch.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountByStatus tallies indexed builds by status.
func (s *SQLiteIndex) CountByStatus(ctx context.Context) (map[dispatch.BuildStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM builds GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[dispatch.BuildStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[dispatch.BuildStatus(status)] = n
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
