package validation

import (
	"sync"

	"github.com/tradecapture/tradecapture/internal/document"
)

// Swappable wraps a Validator behind a RWMutex so the active validator can
// be replaced at runtime. Config hot reload swaps in a registry rebuilt from
// the new rule set without restarting the store.
type Swappable struct {
	mu    sync.RWMutex
	inner Validator
}

func NewSwappable(v Validator) *Swappable {
	return &Swappable{inner: v}
}

// Swap replaces the active validator. In-flight validations finish against
// the old one.
func (s *Swappable) Swap(v Validator) {
	s.mu.Lock()
	s.inner = v
	s.mu.Unlock()
}

func (s *Swappable) Validate(doc document.Document) Result {
	s.mu.RLock()
	v := s.inner
	s.mu.RUnlock()
	return v.Validate(doc)
}
