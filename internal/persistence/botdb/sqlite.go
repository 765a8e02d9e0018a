package botdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("botdb: closed")

// SQLiteStore is the bot persistence backend. Writes go through a single writer
// goroutine and are grouped into transactions; reads use sqlx on the same pool.
type SQLiteStore struct {
	db     *sql.DB
	dbx    *sqlx.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal      atomic.Uint64
	committedTotal atomic.Uint64
	execErrTotal   atomic.Uint64
	txTotal        atomic.Uint64
	txFailTotal    atomic.Uint64
}

type reqKind int

const (
	reqExec reqKind = iota + 1
	reqTx
	reqDirect
	reqSync
)

type req struct {
	kind reqKind

	stmt StmtID
	args []any
	tx   *Tx

	done chan error
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTotal      uint64 `json:"drop_total"`
	OpsCommitted   uint64 `json:"ops_committed_total"`
	ExecErrorTotal uint64 `json:"exec_error_total"`
	TxTotal        uint64 `json:"tx_total"`
	TxFailTotal    uint64 `json:"tx_fail_total"`
}

func OpenSQLite(path string, logger *log.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection is held by the writer's open transaction; the rest serve loaders.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		dbx:    sqlx.NewDb(db, "sqlite"),
		logger: logger,
		ch:     make(chan req, 65536),
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
		`CREATE TABLE IF NOT EXISTS characters_npcbot (
			entry INTEGER PRIMARY KEY,
			owner INTEGER NOT NULL DEFAULT 0,
			roles INTEGER NOT NULL DEFAULT 0,
			spec INTEGER NOT NULL DEFAULT 1,
			faction INTEGER NOT NULL DEFAULT 35,
			` + equipColumnsDDL() + `,
			spells_disabled TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_npcbot_owner ON characters_npcbot(owner);`,
		`CREATE TABLE IF NOT EXISTS creature_template_npcbot_appearance (
			entry INTEGER PRIMARY KEY,
			gender INTEGER NOT NULL DEFAULT 0,
			skin INTEGER NOT NULL DEFAULT 0,
			face INTEGER NOT NULL DEFAULT 0,
			hair INTEGER NOT NULL DEFAULT 0,
			haircolor INTEGER NOT NULL DEFAULT 0,
			features INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS creature_template_npcbot_extras (
			entry INTEGER PRIMARY KEY,
			class INTEGER NOT NULL,
			race INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS characters_npcbot_transmog (
			entry INTEGER NOT NULL,
			slot INTEGER NOT NULL,
			item_id INTEGER NOT NULL DEFAULT 0,
			fake_id INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entry, slot)
		);`,
		`CREATE TABLE IF NOT EXISTS characters_npcbot_stats (
			entry INTEGER PRIMARY KEY,
			maxhealth INTEGER NOT NULL DEFAULT 0,
			maxpower INTEGER NOT NULL DEFAULT 0,
			strength INTEGER NOT NULL DEFAULT 0,
			agility INTEGER NOT NULL DEFAULT 0,
			stamina INTEGER NOT NULL DEFAULT 0,
			intellect INTEGER NOT NULL DEFAULT 0,
			spirit INTEGER NOT NULL DEFAULT 0,
			armor INTEGER NOT NULL DEFAULT 0,
			defense INTEGER NOT NULL DEFAULT 0,
			res_holy INTEGER NOT NULL DEFAULT 0,
			res_fire INTEGER NOT NULL DEFAULT 0,
			res_nature INTEGER NOT NULL DEFAULT 0,
			res_frost INTEGER NOT NULL DEFAULT 0,
			res_shadow INTEGER NOT NULL DEFAULT 0,
			res_arcane INTEGER NOT NULL DEFAULT 0,
			block_pct REAL NOT NULL DEFAULT 0,
			dodge_pct REAL NOT NULL DEFAULT 0,
			parry_pct REAL NOT NULL DEFAULT 0,
			crit_pct REAL NOT NULL DEFAULT 0,
			attack_power INTEGER NOT NULL DEFAULT 0,
			spell_power INTEGER NOT NULL DEFAULT 0,
			spell_pen INTEGER NOT NULL DEFAULT 0,
			haste_pct REAL NOT NULL DEFAULT 0,
			hit_bonus_pct REAL NOT NULL DEFAULT 0,
			expertise INTEGER NOT NULL DEFAULT 0,
			armor_pen_pct REAL NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS groups (
			guid INTEGER PRIMARY KEY,
			leader_guid INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS characters_npcbot_group_member (
			guid INTEGER NOT NULL,
			entry INTEGER NOT NULL,
			member_flags INTEGER NOT NULL DEFAULT 0,
			sub_group INTEGER NOT NULL DEFAULT 0,
			roles INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (guid, entry)
		);`,
		`CREATE TABLE IF NOT EXISTS creature_wander_nodes (
			id INTEGER PRIMARY KEY,
			mapid INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			o REAL NOT NULL DEFAULT 0,
			zoneid INTEGER NOT NULL,
			areaid INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS worldstates (
			entry INTEGER PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0,
			comment TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS item_instance (
			guid INTEGER PRIMARY KEY,
			item_entry INTEGER NOT NULL,
			owner_guid INTEGER NOT NULL DEFAULT 0,
			count INTEGER NOT NULL DEFAULT 1,
			durability INTEGER NOT NULL DEFAULT 0,
			enchantments TEXT NOT NULL DEFAULT '',
			random_property_id INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS character_inventory (
			guid INTEGER NOT NULL,
			bag INTEGER NOT NULL DEFAULT 0,
			slot INTEGER NOT NULL,
			item INTEGER NOT NULL,
			PRIMARY KEY (item)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTotal:      s.dropTotal.Load(),
		OpsCommitted:   s.committedTotal.Load(),
		ExecErrorTotal: s.execErrTotal.Load(),
		TxTotal:        s.txTotal.Load(),
		TxFailTotal:    s.txFailTotal.Load(),
	}
}

// Execute queues a single statement. It never blocks: when the queue is full the
// write is dropped and counted.
func (s *SQLiteStore) Execute(stmt StmtID, args ...any) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqExec, stmt: stmt, args: args}:
	default:
		s.dropTotal.Add(1)
	}
}

// CommitTransaction queues a batch that is applied atomically.
func (s *SQLiteStore) CommitTransaction(tx *Tx) {
	if s == nil || s.closed.Load() || tx == nil || len(tx.ops) == 0 {
		return
	}
	select {
	case s.ch <- req{kind: reqTx, tx: tx}:
	default:
		s.dropTotal.Add(1)
	}
}

// DirectExecute runs a statement through the writer and waits for its result.
// Everything queued before it is committed first.
func (s *SQLiteStore) DirectExecute(ctx context.Context, stmt StmtID, args ...any) error {
	return s.roundTrip(ctx, req{kind: reqDirect, stmt: stmt, args: args})
}

// Sync blocks until every write queued before the call is committed.
func (s *SQLiteStore) Sync(ctx context.Context) error {
	return s.roundTrip(ctx, req{kind: reqSync})
}

func (s *SQLiteStore) roundTrip(ctx context.Context, r req) (err error) {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// Close may race with the send; a send on the closed channel is reported as closed.
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	r.done = make(chan error, 1)
	select {
	case s.ch <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	prepared := make(map[StmtID]*sql.Stmt, len(statements))
	for id, q := range statements {
		st, err := s.db.Prepare(q)
		if err != nil {
			s.logger.Printf("botdb: prepare %s: %v", id, err)
			continue
		}
		prepared[id] = st
	}
	defer func() {
		for _, st := range prepared {
			_ = st.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 500 * time.Millisecond
	)

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logger.Printf("botdb: begin: %v", err)
			time.Sleep(50 * time.Millisecond)
			return false
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.logger.Printf("botdb: commit: %v", err)
		} else {
			s.committedTotal.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(t *sql.Tx, id StmtID, args []any) error {
		st := prepared[id]
		if st == nil {
			return fmt.Errorf("unknown statement %s", id)
		}
		_, err := t.Stmt(st).Exec(args...)
		return err
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var (
			r  req
			ok bool
		)
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		switch r.kind {
		case reqExec:
			if !begin() {
				s.dropTotal.Add(1)
				continue
			}
			if err := exec(tx, r.stmt, r.args); err != nil {
				s.execErrTotal.Add(1)
				s.logger.Printf("botdb: exec %s: %v", r.stmt, err)
				continue
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}

		case reqTx:
			commit()
			s.txTotal.Add(1)
			if err := s.applyTx(ctx, r.tx, exec); err != nil {
				s.txFailTotal.Add(1)
				s.logger.Printf("botdb: transaction of %d ops rolled back: %v", len(r.tx.ops), err)
			} else {
				s.committedTotal.Add(uint64(len(r.tx.ops)))
			}

		case reqDirect:
			commit()
			var err error
			if st := prepared[r.stmt]; st == nil {
				err = fmt.Errorf("unknown statement %s", r.stmt)
			} else if _, err = st.Exec(r.args...); err == nil {
				s.committedTotal.Add(1)
			}
			r.done <- err

		case reqSync:
			commit()
			r.done <- nil
		}
	}
}

func (s *SQLiteStore) applyTx(ctx context.Context, batch *Tx, exec func(*sql.Tx, StmtID, []any) error) error {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, o := range batch.ops {
		if err := exec(t, o.stmt, o.args); err != nil {
			_ = t.Rollback()
			return fmt.Errorf("%s: %w", o.stmt, err)
		}
	}
	return t.Commit()
}
