package audit

import "time"

// Operation names recorded in the log.
const (
	OpSaveNew     = "save-new"
	OpFullReplace = "save-full-replace"
	OpPartial     = "save-partial"
	OpDelete      = "delete"
	OpClear       = "clear"
)

// Entry is one recorded mutation. Entries are append-only; the log is the
// durable side of an otherwise volatile store. Each entry hashes over its
// fields and the previous entry's hash, so edits to stored history are
// detectable.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	TradeID   string    `json:"tradeId"`
	Context   Context   `json:"context"`
	PrevHash  string    `json:"prevHash,omitempty"`
	Hash      string    `json:"hash,omitempty"`
}

// Filter narrows a log listing. Zero values mean "any".
type Filter struct {
	TradeID   string
	Operation string
	Limit     int
}

// Log is the persistence interface for audit entries.
type Log interface {
	// Initialize creates tables and indexes.
	Initialize() error

	// Close cleanly shuts down the log.
	Close() error

	// Append records one entry. An empty entry ID is assigned by the
	// implementation.
	Append(e *Entry) error

	// List returns entries matching the filter, most recent first.
	List(filter Filter) ([]*Entry, error)

	// Count returns the total number of entries.
	Count() (int64, error)

	// Verify checks hash chain integrity over the whole log. Returns
	// (valid, brokenAtIndex); brokenAtIndex is -1 when the chain is
	// intact.
	Verify() (bool, int, error)

	// Clear removes all entries.
	Clear() error
}
