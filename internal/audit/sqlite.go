package audit

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// SQLiteLog implements Log using SQLite. Appends are serialized so the hash
// chain stays linear.
type SQLiteLog struct {
	db       *sql.DB
	mu       sync.Mutex
	lastHash string
}

// NewSQLiteLog opens a SQLite-backed audit log at path.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return &SQLiteLog{db: db, lastHash: ChainSeed()}, nil
}

func (l *SQLiteLog) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id         TEXT PRIMARY KEY,
		timestamp  DATETIME NOT NULL,
		operation  TEXT NOT NULL,
		trade_id   TEXT NOT NULL,
		ctx_user   TEXT NOT NULL,
		ctx_agent  TEXT NOT NULL,
		ctx_action TEXT NOT NULL,
		ctx_intent TEXT NOT NULL,
		prev_hash  TEXT NOT NULL DEFAULT '',
		hash       TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_trade ON audit_entries(trade_id);
	CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_entries(operation);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return err
	}

	// Resume the chain from the newest entry. ULID ids sort by creation
	// time, so max(id) is the chain tip.
	var tip string
	err := l.db.QueryRow("SELECT hash FROM audit_entries ORDER BY id DESC LIMIT 1").Scan(&tip)
	switch {
	case err == sql.ErrNoRows:
		l.lastHash = ChainSeed()
	case err != nil:
		return err
	default:
		l.lastHash = tip
	}
	return nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) Append(e *Entry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.PrevHash = l.lastHash
	e.Hash = ComputeHash(e)

	_, err := l.db.Exec(`INSERT INTO audit_entries
		(id, timestamp, operation, trade_id, ctx_user, ctx_agent, ctx_action, ctx_intent, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.Operation, e.TradeID,
		e.Context.User, e.Context.Agent, e.Context.Action, e.Context.Intent,
		e.PrevHash, e.Hash,
	)
	if err != nil {
		return err
	}
	l.lastHash = e.Hash
	return nil
}

func (l *SQLiteLog) List(filter Filter) ([]*Entry, error) {
	var conds []string
	var args []interface{}

	if filter.TradeID != "" {
		conds = append(conds, "trade_id = ?")
		args = append(args, filter.TradeID)
	}
	if filter.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, filter.Operation)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	return l.scanEntries(`SELECT id, timestamp, operation, trade_id,
		ctx_user, ctx_agent, ctx_action, ctx_intent, prev_hash, hash
		FROM audit_entries`+where+` ORDER BY timestamp DESC, id DESC LIMIT ?`, args...)
}

func (l *SQLiteLog) Count() (int64, error) {
	var n int64
	err := l.db.QueryRow("SELECT COUNT(*) FROM audit_entries").Scan(&n)
	return n, err
}

// Verify re-walks the full log in append order and checks the hash chain.
func (l *SQLiteLog) Verify() (bool, int, error) {
	entries, err := l.scanEntries(`SELECT id, timestamp, operation, trade_id,
		ctx_user, ctx_agent, ctx_action, ctx_intent, prev_hash, hash
		FROM audit_entries ORDER BY id ASC`)
	if err != nil {
		return false, 0, err
	}
	valid, brokenAt := VerifyChain(entries)
	return valid, brokenAt, nil
}

func (l *SQLiteLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.db.Exec("DELETE FROM audit_entries"); err != nil {
		return err
	}
	l.lastHash = ChainSeed()
	return nil
}

func (l *SQLiteLog) scanEntries(query string, args ...interface{}) ([]*Entry, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Operation, &e.TradeID,
			&e.Context.User, &e.Context.Agent, &e.Context.Action, &e.Context.Intent,
			&e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
