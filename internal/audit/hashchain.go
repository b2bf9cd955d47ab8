package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeHash computes the SHA-256 hash for an audit entry, chaining to the
// previous entry's hash.
func ComputeHash(e *Entry) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Operation,
		e.TradeID,
		e.Context.User,
		e.Context.Agent,
		e.Context.Action,
		e.Context.Intent,
		e.PrevHash,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ChainSeed is the prev_hash of the first entry in the log.
func ChainSeed() string {
	hash := sha256.Sum256([]byte("tradecapture-audit"))
	return hex.EncodeToString(hash[:])
}

// VerifyChain walks entries in append order and checks hash integrity.
// Returns (valid, brokenAtIndex). If valid is true, all hashes check out.
func VerifyChain(entries []*Entry) (bool, int) {
	for i, e := range entries {
		expected := ComputeHash(e)
		if e.Hash != expected {
			return false, i
		}
		// Check chain linkage
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return false, i
		}
	}
	return true, -1
}
