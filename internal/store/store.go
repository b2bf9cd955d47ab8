// Package store owns the mapping from trade identifier to trade record. It
// gates every mutation behind the context guard and the validation chain,
// applies deep merges for partial updates, and evaluates filters for
// queries. The backing collection is in-memory; the audit log is the
// durable side.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tradecapture/tradecapture/internal/audit"
	"github.com/tradecapture/tradecapture/internal/document"
	"github.com/tradecapture/tradecapture/internal/filter"
	"github.com/tradecapture/tradecapture/internal/validation"
)

// Record wraps one trade document with its store metadata. The id is unique
// across live records and never changes; the version strictly increases on
// every successful mutation.
type Record struct {
	ID          string            `json:"id"`
	Data        document.Document `json:"data"`
	Version     int64             `json:"version"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	LastContext audit.Context     `json:"lastContext"`
}

// DocumentValidator validates a document before the store accepts it.
// Satisfied by validation.Registry.
type DocumentValidator interface {
	Validate(doc document.Document) validation.Result
}

// Event describes a successful mutation, delivered to the optional
// mutation hook (the API layer uses it to feed the WebSocket event stream).
type Event struct {
	Operation string  `json:"operation"`
	TradeID   string  `json:"tradeId"`
	Record    *Record `json:"record,omitempty"`
}

// DocumentStore is the shared trade record collection. A single RWMutex
// guards the map: mutations take the write lock for their whole
// check-validate-write sequence so concurrent saves on one id cannot both
// observe "absent"; reads take the read lock only. Per-id locking is not
// warranted at expected scale.
//
// Documents are deep-copied on the way in and out, so callers never alias
// stored state.
type DocumentStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // insertion order, for stable listing

	validator DocumentValidator
	log       audit.Log
	onEvent   func(Event)
	logger    *slog.Logger
}

// New creates a DocumentStore. validator gates every mutation; log may be
// nil to disable audit recording.
func New(validator DocumentValidator, log audit.Log, logger *slog.Logger) *DocumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentStore{
		records:   make(map[string]*Record),
		validator: validator,
		log:       log,
		logger:    logger.With("component", "store.DocumentStore"),
	}
}

// OnEvent registers a hook invoked after every successful mutation. Set it
// before the store starts serving traffic; it is not guarded.
func (s *DocumentStore) OnEvent(fn func(Event)) {
	s.onEvent = fn
}

// guard runs the context guard and validation chain for a mutation. A nil
// return means the document may be persisted.
func (s *DocumentStore) guard(ctx audit.Context, doc document.Document) error {
	if r := ctx.Check(); !r.Success {
		return &ContextError{Result: r}
	}
	if r := s.validator.Validate(doc); !r.Success {
		return &ValidationError{Result: r}
	}
	return nil
}

// SaveNew creates a record at version 1. An empty id is assigned a ULID.
// Fails with ErrDuplicateID if the id already denotes a live record; on
// validation failure nothing is persisted.
func (s *DocumentStore) SaveNew(ctx audit.Context, id string, doc document.Document) (*Record, error) {
	if r := ctx.Check(); !r.Success {
		return nil, &ContextError{Result: r}
	}
	if id == "" {
		id = ulid.Make().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return nil, ErrDuplicateID
	}
	if r := s.validator.Validate(doc); !r.Success {
		return nil, &ValidationError{Result: r}
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:          id,
		Data:        document.CloneDocument(doc),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastContext: ctx,
	}
	s.records[id] = rec
	s.order = append(s.order, id)

	s.recordMutation(audit.OpSaveNew, id, ctx, rec)
	return snapshot(rec), nil
}

// SaveFullReplace replaces a live record's data wholesale and increments
// its version. The new document is validated in full, not merged.
// expectedVersion of 0 skips the optimistic version check.
func (s *DocumentStore) SaveFullReplace(ctx audit.Context, id string, doc document.Document, expectedVersion int64) (*Record, error) {
	if r := ctx.Check(); !r.Success {
		return nil, &ContextError{Result: r}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, ErrNotFound
	}
	if expectedVersion != 0 && rec.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if r := s.validator.Validate(doc); !r.Success {
		return nil, &ValidationError{Result: r}
	}

	rec.Data = document.CloneDocument(doc)
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	rec.LastContext = ctx

	s.recordMutation(audit.OpFullReplace, id, ctx, rec)
	return snapshot(rec), nil
}

// SavePartial deep-merges a patch onto a live record's data and validates
// the merged result. A patch that would leave the document invalid is
// rejected and the stored record is untouched. expectedVersion of 0 skips
// the optimistic version check.
func (s *DocumentStore) SavePartial(ctx audit.Context, id string, patch document.Document, expectedVersion int64) (*Record, error) {
	if r := ctx.Check(); !r.Success {
		return nil, &ContextError{Result: r}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, ErrNotFound
	}
	if expectedVersion != 0 && rec.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	merged := document.Merge(rec.Data, patch)
	if r := s.validator.Validate(merged); !r.Success {
		return nil, &ValidationError{Result: r}
	}

	rec.Data = merged
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	rec.LastContext = ctx

	s.recordMutation(audit.OpPartial, id, ctx, rec)
	return snapshot(rec), nil
}

// LoadByID returns the record for id, or ErrNotFound. Reads require no
// context and bypass validation.
func (s *DocumentStore) LoadByID(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, ErrNotFound
	}
	return snapshot(rec), nil
}

// LoadByIDs returns the records found, in the requested order, plus the ids
// with no live record. Missing ids are never an error.
func (s *DocumentStore) LoadByIDs(ids []string) ([]*Record, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*Record
	var missing []string
	for _, id := range ids {
		if rec, exists := s.records[id]; exists {
			found = append(found, snapshot(rec))
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

// List returns the records matching the filter, stable in insertion order.
// limit <= 0 means unlimited; offset skips matches from the front.
func (s *DocumentStore) List(f *filter.Filter, limit, offset int) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	skipped := 0
	for _, id := range s.order {
		rec := s.records[id]
		if !f.Matches(s.matchView(rec)) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, snapshot(rec))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Count returns the number of records matching the filter.
func (s *DocumentStore) Count(f *filter.Filter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.order {
		if f.Matches(s.matchView(s.records[id])) {
			n++
		}
	}
	return n
}

// DeleteByID removes the record for id. Deletion is idempotent: a missing
// id returns affected 0, never an error. The context is still required.
func (s *DocumentStore) DeleteByID(ctx audit.Context, id string) (int, error) {
	if r := ctx.Check(); !r.Success {
		return 0, &ContextError{Result: r}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteLocked(ctx, id), nil
}

// DeleteByGroup applies DeleteByID semantics to each id. The context is
// checked once for the whole batch; a bad context aborts the batch before
// any deletion. Returns the affected count and the ids with no live record.
func (s *DocumentStore) DeleteByGroup(ctx audit.Context, ids []string) (int, []string, error) {
	if r := ctx.Check(); !r.Success {
		return 0, nil, &ContextError{Result: r}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	var missing []string
	for _, id := range ids {
		if n := s.deleteLocked(ctx, id); n == 1 {
			affected++
		} else {
			missing = append(missing, id)
		}
	}
	return affected, missing, nil
}

func (s *DocumentStore) deleteLocked(ctx audit.Context, id string) int {
	if _, exists := s.records[id]; !exists {
		return 0
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.recordMutation(audit.OpDelete, id, ctx, nil)
	return 1
}

// Clear drops every live record. Admin operation; the audit log keeps its
// history plus one clear entry.
func (s *DocumentStore) Clear(ctx audit.Context) (int, error) {
	if r := ctx.Check(); !r.Success {
		return 0, &ContextError{Result: r}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = make(map[string]*Record)
	s.order = nil

	s.recordMutation(audit.OpClear, "*", ctx, nil)
	return n, nil
}

// Size returns the number of live records.
func (s *DocumentStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// recordMutation appends an audit entry and fires the event hook. Called
// with the write lock held; audit failures are logged, not propagated,
// since the mutation has already taken effect.
func (s *DocumentStore) recordMutation(op, id string, ctx audit.Context, rec *Record) {
	if s.log != nil {
		entry := &audit.Entry{Operation: op, TradeID: id, Context: ctx}
		if err := s.log.Append(entry); err != nil {
			s.logger.Error("failed to append audit entry", "operation", op, "trade_id", id, "error", err)
		}
	}
	if s.onEvent != nil {
		var snap *Record
		if rec != nil {
			snap = snapshot(rec)
		}
		s.onEvent(Event{Operation: op, TradeID: id, Record: snap})
	}
}

// matchView exposes a record to the filter engine. Document fields resolve
// at their own top-level paths; the same document is also reachable under
// the "data." prefix, and record metadata under reserved keys, so filters
// like {"data.notional": ...} and {"version": ...} both work. Document
// fields shadow the reserved keys on collision.
func (s *DocumentStore) matchView(rec *Record) document.Document {
	view := document.Document{
		"data":      rec.Data,
		"id":        rec.ID,
		"version":   rec.Version,
		"createdAt": rec.CreatedAt.Format(time.RFC3339),
		"updatedAt": rec.UpdatedAt.Format(time.RFC3339),
	}
	for k, v := range rec.Data {
		view[k] = v
	}
	return view
}

// snapshot deep-copies a record for return to callers.
func snapshot(rec *Record) *Record {
	out := *rec
	out.Data = document.CloneDocument(rec.Data)
	return &out
}
