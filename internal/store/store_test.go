package store

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/tradecapture/tradecapture/internal/audit"
	"github.com/tradecapture/tradecapture/internal/document"
	"github.com/tradecapture/tradecapture/internal/filter"
	"github.com/tradecapture/tradecapture/internal/validation"
)

// fakeLog is a simple in-memory audit.Log for testing.
type fakeLog struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (f *fakeLog) Initialize() error { return nil }
func (f *fakeLog) Close() error      { return nil }

func (f *fakeLog) Append(e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *e
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeLog) List(filter audit.Filter) ([]*audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*audit.Entry
	for _, e := range f.entries {
		if filter.TradeID != "" && e.TradeID != filter.TradeID {
			continue
		}
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLog) Count() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

func (f *fakeLog) Verify() (bool, int, error) { return true, -1, nil }

func (f *fakeLog) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
	return nil
}

func testRegistry() *validation.Registry {
	return validation.NewRegistry(
		validation.NewStructuralValidator(
			[]string{
				"general.tradeId",
				"general.transactionRoles.priceMaker",
				"common.book",
				"common.tradeDate",
				"common.counterparty",
				"common.inputDate",
			},
			[]string{"general.tradeId", "general.transactionRoles.priceMaker"},
		),
		validation.NewBusinessRuleValidator([]string{"common.tradeDate", "common.inputDate"}),
	)
}

func testContext() audit.Context {
	return audit.Context{User: "trader-1", Agent: "booking-ui", Action: "save", Intent: "test booking"}
}

func irSwapDoc() document.Document {
	return document.Document{
		"general": document.Document{
			"tradeId":          "NEW-1",
			"transactionRoles": document.Document{"priceMaker": ""},
		},
		"common": document.Document{
			"book":         "B1",
			"tradeDate":    "2026-01-20",
			"counterparty": "CP1",
			"inputDate":    "2026-01-20",
		},
		"swapDetails": document.Document{"effectiveDate": "2026-02-01"},
		"swapLegs": []interface{}{
			document.Document{"direction": "pay", "currency": "USD", "notional": 1000000},
		},
	}
}

func newTestStore(t *testing.T) (*DocumentStore, *fakeLog) {
	t.Helper()
	log := &fakeLog{}
	return New(testRegistry(), log, nil), log
}

func mustFilter(t *testing.T, raw map[string]map[string]interface{}) *filter.Filter {
	t.Helper()
	f, err := filter.Parse(raw)
	if err != nil {
		t.Fatalf("filter.Parse() error: %v", err)
	}
	return f
}

func TestSaveNew(t *testing.T) {
	t.Run("valid document stored at version 1", func(t *testing.T) {
		s, log := newTestStore(t)
		rec, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc())
		if err != nil {
			t.Fatalf("SaveNew() error: %v", err)
		}
		if rec.ID != "TRD-1" || rec.Version != 1 {
			t.Errorf("record = {id:%s version:%d}, want {TRD-1 1}", rec.ID, rec.Version)
		}
		if rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.UpdatedAt) {
			t.Error("timestamps not set on create")
		}

		entries, _ := log.List(audit.Filter{Operation: audit.OpSaveNew})
		if len(entries) != 1 || entries[0].TradeID != "TRD-1" {
			t.Errorf("audit entries = %v", entries)
		}
	})

	t.Run("duplicate id fails regardless of contents", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}
		other := irSwapDoc()
		document.Set(other, "common.book", "B2")
		_, err := s.SaveNew(testContext(), "TRD-1", other)
		if !errors.Is(err, ErrDuplicateID) {
			t.Errorf("err = %v, want ErrDuplicateID", err)
		}
	})

	t.Run("empty id gets generated", func(t *testing.T) {
		s, _ := newTestStore(t)
		rec, err := s.SaveNew(testContext(), "", irSwapDoc())
		if err != nil {
			t.Fatal(err)
		}
		if rec.ID == "" {
			t.Error("expected generated id")
		}
	})

	t.Run("incomplete context rejected before validation", func(t *testing.T) {
		s, log := newTestStore(t)
		_, err := s.SaveNew(audit.Context{User: "trader-1"}, "TRD-1", irSwapDoc())
		var ce *ContextError
		if !errors.As(err, &ce) {
			t.Fatalf("err = %v, want ContextError", err)
		}
		if len(ce.Result.Errors) != 3 {
			t.Errorf("got %d context errors, want 3: %v", len(ce.Result.Errors), ce.Result.Errors)
		}
		if s.Size() != 0 {
			t.Error("nothing should be persisted")
		}
		if n, _ := log.Count(); n != 0 {
			t.Error("no audit entry for rejected mutation")
		}
	})

	t.Run("invalid document returns full result and persists nothing", func(t *testing.T) {
		s, _ := newTestStore(t)
		doc := irSwapDoc()
		delete(doc["general"].(document.Document), "transactionRoles")
		document.Set(doc, "common.tradeDate", "garbage")

		_, err := s.SaveNew(testContext(), "TRD-1", doc)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
		if len(ve.Result.Errors) < 2 {
			t.Errorf("expected structural and business errors, got %v", ve.Result.Errors)
		}
		if s.Size() != 0 {
			t.Error("nothing should be persisted")
		}
	})

	t.Run("undetectable trade type rejected", func(t *testing.T) {
		s, _ := newTestStore(t)
		doc := irSwapDoc()
		delete(doc, "swapDetails")
		delete(doc, "swapLegs")
		_, err := s.SaveNew(testContext(), "TRD-1", doc)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})

	t.Run("stored document does not alias caller document", func(t *testing.T) {
		s, _ := newTestStore(t)
		doc := irSwapDoc()
		if _, err := s.SaveNew(testContext(), "TRD-1", doc); err != nil {
			t.Fatal(err)
		}
		document.Set(doc, "common.book", "MUTATED")

		rec, _ := s.LoadByID("TRD-1")
		if got, _ := document.Get(rec.Data, "common.book"); got != "B1" {
			t.Errorf("stored data mutated through caller's document: %v", got)
		}
	})
}

func TestSaveFullReplace(t *testing.T) {
	t.Run("replaces wholesale and bumps version", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}

		replacement := irSwapDoc()
		document.Set(replacement, "common.book", "B9")
		rec, err := s.SaveFullReplace(testContext(), "TRD-1", replacement, 0)
		if err != nil {
			t.Fatalf("SaveFullReplace() error: %v", err)
		}
		if rec.Version != 2 {
			t.Errorf("Version = %d, want 2", rec.Version)
		}
		if got, _ := document.Get(rec.Data, "common.book"); got != "B9" {
			t.Errorf("book = %v", got)
		}
	})

	t.Run("missing id fails", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.SaveFullReplace(testContext(), "NOPE", irSwapDoc(), 0)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}
		if _, err := s.SaveFullReplace(testContext(), "TRD-1", irSwapDoc(), 1); err != nil {
			t.Fatal(err)
		}
		// Now at version 2; expecting 1 is stale.
		_, err := s.SaveFullReplace(testContext(), "TRD-1", irSwapDoc(), 1)
		if !errors.Is(err, ErrVersionConflict) {
			t.Errorf("err = %v, want ErrVersionConflict", err)
		}
	})

	t.Run("new document validated in full", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}
		_, err := s.SaveFullReplace(testContext(), "TRD-1", document.Document{"swapDetails": document.Document{}}, 0)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
		rec, _ := s.LoadByID("TRD-1")
		if rec.Version != 1 {
			t.Error("failed replace must not bump version")
		}
	})
}

func TestSavePartial(t *testing.T) {
	t.Run("merges and validates merged result", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}

		patch := document.Document{
			"common": document.Document{"book": "B7"},
		}
		rec, err := s.SavePartial(testContext(), "TRD-1", patch, 0)
		if err != nil {
			t.Fatalf("SavePartial() error: %v", err)
		}
		if rec.Version != 2 {
			t.Errorf("Version = %d, want 2", rec.Version)
		}
		if got, _ := document.Get(rec.Data, "common.book"); got != "B7" {
			t.Errorf("book = %v", got)
		}
		// Siblings survive the merge.
		if got, _ := document.Get(rec.Data, "common.counterparty"); got != "CP1" {
			t.Errorf("counterparty = %v", got)
		}
	})

	t.Run("patch breaking required field leaves record untouched", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}
		before, _ := s.LoadByID("TRD-1")

		// Null-delete of the general subtree removes required fields.
		_, err := s.SavePartial(testContext(), "TRD-1", document.Document{"general": nil}, 0)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("err = %v, want ValidationError", err)
		}

		after, _ := s.LoadByID("TRD-1")
		if !reflect.DeepEqual(before.Data, after.Data) {
			t.Error("rejected patch modified stored document")
		}
		if after.Version != before.Version {
			t.Error("rejected patch bumped version")
		}
	})

	t.Run("missing id fails", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.SavePartial(testContext(), "NOPE", document.Document{"a": 1}, 0)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}
		_, err := s.SavePartial(testContext(), "TRD-1", document.Document{"common": document.Document{"book": "B2"}}, 7)
		if !errors.Is(err, ErrVersionConflict) {
			t.Errorf("err = %v, want ErrVersionConflict", err)
		}
	})
}

func TestLoad(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveNew(testContext(), "TRD-2", irSwapDoc()); err != nil {
		t.Fatal(err)
	}

	t.Run("by id", func(t *testing.T) {
		rec, err := s.LoadByID("TRD-1")
		if err != nil {
			t.Fatal(err)
		}
		if rec.ID != "TRD-1" {
			t.Errorf("ID = %s", rec.ID)
		}
	})

	t.Run("by id not found", func(t *testing.T) {
		if _, err := s.LoadByID("NOPE"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("by ids with missing silently reported", func(t *testing.T) {
		found, missing := s.LoadByIDs([]string{"TRD-2", "NOPE", "TRD-1"})
		if len(found) != 2 {
			t.Fatalf("found %d records, want 2", len(found))
		}
		if found[0].ID != "TRD-2" || found[1].ID != "TRD-1" {
			t.Error("found records not in requested order")
		}
		if len(missing) != 1 || missing[0] != "NOPE" {
			t.Errorf("missing = %v", missing)
		}
	})

	t.Run("loaded record does not alias stored state", func(t *testing.T) {
		rec, _ := s.LoadByID("TRD-1")
		document.Set(rec.Data, "common.book", "HACKED")
		again, _ := s.LoadByID("TRD-1")
		if got, _ := document.Get(again.Data, "common.book"); got != "B1" {
			t.Error("mutating a loaded record changed stored state")
		}
	})
}

func TestListAndCount(t *testing.T) {
	s, _ := newTestStore(t)

	small := irSwapDoc()
	document.Set(small, "type", "IR_SWAP")
	document.Set(small, "notional", 500000)
	big := irSwapDoc()
	document.Set(big, "type", "IR_SWAP")
	document.Set(big, "notional", 5000000)
	option := irSwapDoc()
	delete(option, "swapDetails")
	delete(option, "swapLegs")
	option["commodityDetails"] = document.Document{"commodity": "GOLD"}
	document.Set(option, "type", "COMMODITY_OPTION")
	document.Set(option, "notional", 8000000)

	if _, err := s.SaveNew(testContext(), "TRD-1", small); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveNew(testContext(), "TRD-2", big); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveNew(testContext(), "TRD-3", option); err != nil {
		t.Fatal(err)
	}

	t.Run("empty filter lists everything in insertion order", func(t *testing.T) {
		recs := s.List(mustFilter(t, nil), 0, 0)
		if len(recs) != 3 {
			t.Fatalf("got %d records, want 3", len(recs))
		}
		for i, want := range []string{"TRD-1", "TRD-2", "TRD-3"} {
			if recs[i].ID != want {
				t.Errorf("recs[%d].ID = %s, want %s", i, recs[i].ID, want)
			}
		}
	})

	t.Run("AND semantics", func(t *testing.T) {
		f := mustFilter(t, map[string]map[string]interface{}{
			"type":     {"eq": "IR_SWAP"},
			"notional": {"gte": 1000000},
		})
		recs := s.List(f, 0, 0)
		if len(recs) != 1 || recs[0].ID != "TRD-2" {
			t.Errorf("recs = %v", recs)
		}
		if s.Count(f) != 1 {
			t.Errorf("Count = %d, want 1", s.Count(f))
		}
	})

	t.Run("data prefix addresses the document", func(t *testing.T) {
		f := mustFilter(t, map[string]map[string]interface{}{
			"data.notional": {"gte": 1000000, "lte": 10000000},
		})
		if got := s.Count(f); got != 2 {
			t.Errorf("Count = %d, want 2", got)
		}
	})

	t.Run("metadata paths", func(t *testing.T) {
		f := mustFilter(t, map[string]map[string]interface{}{
			"id": {"eq": "TRD-3"},
		})
		recs := s.List(f, 0, 0)
		if len(recs) != 1 || recs[0].ID != "TRD-3" {
			t.Errorf("recs = %v", recs)
		}
	})

	t.Run("absent field never matches", func(t *testing.T) {
		f := mustFilter(t, map[string]map[string]interface{}{
			"x": {"eq": "anything"},
		})
		if got := s.Count(f); got != 0 {
			t.Errorf("Count = %d, want 0", got)
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		recs := s.List(mustFilter(t, nil), 1, 1)
		if len(recs) != 1 || recs[0].ID != "TRD-2" {
			t.Errorf("recs = %v", recs)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}

		affected, err := s.DeleteByID(testContext(), "TRD-1")
		if err != nil || affected != 1 {
			t.Fatalf("first delete = (%d, %v), want (1, nil)", affected, err)
		}
		affected, err = s.DeleteByID(testContext(), "TRD-1")
		if err != nil || affected != 0 {
			t.Fatalf("second delete = (%d, %v), want (0, nil)", affected, err)
		}
	})

	t.Run("requires context", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.DeleteByID(audit.Context{}, "TRD-1")
		var ce *ContextError
		if !errors.As(err, &ce) {
			t.Errorf("err = %v, want ContextError", err)
		}
	})

	t.Run("group delete with bad context aborts whole batch", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
			t.Fatal(err)
		}
		_, _, err := s.DeleteByGroup(audit.Context{User: "x"}, []string{"TRD-1"})
		var ce *ContextError
		if !errors.As(err, &ce) {
			t.Fatalf("err = %v, want ContextError", err)
		}
		if s.Size() != 1 {
			t.Error("batch with bad context must not delete anything")
		}
	})

	t.Run("group delete counts and reports missing", func(t *testing.T) {
		s, log := newTestStore(t)
		for _, id := range []string{"TRD-1", "TRD-2"} {
			if _, err := s.SaveNew(testContext(), id, irSwapDoc()); err != nil {
				t.Fatal(err)
			}
		}
		affected, missing, err := s.DeleteByGroup(testContext(), []string{"TRD-1", "NOPE", "TRD-2"})
		if err != nil {
			t.Fatal(err)
		}
		if affected != 2 {
			t.Errorf("affected = %d, want 2", affected)
		}
		if len(missing) != 1 || missing[0] != "NOPE" {
			t.Errorf("missing = %v", missing)
		}
		entries, _ := log.List(audit.Filter{Operation: audit.OpDelete})
		if len(entries) != 2 {
			t.Errorf("audit delete entries = %d, want 2", len(entries))
		}
	})
}

func TestClear(t *testing.T) {
	s, log := newTestStore(t)
	for _, id := range []string{"TRD-1", "TRD-2"} {
		if _, err := s.SaveNew(testContext(), id, irSwapDoc()); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Clear(testContext())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || s.Size() != 0 {
		t.Errorf("Clear returned %d, size now %d", n, s.Size())
	}

	entries, _ := log.List(audit.Filter{Operation: audit.OpClear})
	if len(entries) != 1 {
		t.Errorf("clear audit entries = %d, want 1", len(entries))
	}
}

func TestConcurrentSaveNewRace(t *testing.T) {
	s, _ := newTestStore(t)
	const n = 32

	var wg sync.WaitGroup
	results := make(chan error, n)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.SaveNew(testContext(), "RACE-1", irSwapDoc())
			results <- err
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	successes, duplicates := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateID):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if duplicates != n-1 {
		t.Errorf("duplicates = %d, want %d", duplicates, n-1)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.LoadByID("TRD-1")
				_ = s.Count(nil)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				patch := document.Document{"common": document.Document{"book": "B1"}}
				_, _ = s.SavePartial(testContext(), "TRD-1", patch, 0)
			}
		}()
	}
	wg.Wait()

	rec, err := s.LoadByID("TRD-1")
	if err != nil {
		t.Fatal(err)
	}
	// 8 writers x 50 partials on top of version 1.
	if rec.Version != 1+8*50 {
		t.Errorf("Version = %d, want %d", rec.Version, 1+8*50)
	}
}

func TestEndToEndScenario(t *testing.T) {
	s, _ := newTestStore(t)

	// priceMaker may be blank on presave payloads.
	doc := document.Document{
		"general": document.Document{
			"tradeId":          "NEW-1",
			"transactionRoles": document.Document{"priceMaker": ""},
		},
		"common": document.Document{
			"book":         "B1",
			"tradeDate":    "2026-01-20",
			"counterparty": "CP1",
			"inputDate":    "2026-01-20",
		},
		"swapDetails": document.Document{},
		"swapLegs":    []interface{}{document.Document{"direction": "pay", "currency": "USD"}},
	}
	if _, err := s.SaveNew(testContext(), "NEW-1", doc); err != nil {
		t.Fatalf("presave payload should succeed: %v", err)
	}

	// Omitting transactionRoles entirely fails naming the missing path.
	bad := document.CloneDocument(doc)
	delete(bad["general"].(document.Document), "transactionRoles")
	_, err := s.SaveNew(testContext(), "NEW-2", bad)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	found := false
	for _, e := range ve.Result.Errors {
		if e == "Required field missing: general.transactionRoles.priceMaker" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected error naming the missing path, got %v", ve.Result.Errors)
	}
}

func TestEventHook(t *testing.T) {
	s, _ := newTestStore(t)
	var events []Event
	s.OnEvent(func(e Event) { events = append(events, e) })

	if _, err := s.SaveNew(testContext(), "TRD-1", irSwapDoc()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteByID(testContext(), "TRD-1"); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Operation != audit.OpSaveNew || events[0].Record == nil {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Operation != audit.OpDelete || events[1].Record != nil {
		t.Errorf("second event = %+v", events[1])
	}
}
