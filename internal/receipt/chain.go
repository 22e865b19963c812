package receipt

import (
	"fmt"
	"sync"

	"backplane/internal/contract"
)

// Chain accumulates sealed receipts from successive runs in order. Each
// entry records the hash of its predecessor so tampering with any
// receipt, or reordering them, is detectable after the fact.
type Chain struct {
	mu      sync.Mutex
	entries []Entry
}

// Entry is one link: a sealed receipt plus the digest of the previous
// link ("" for the first).
type Entry struct {
	Receipt  contract.Receipt `json:"receipt"`
	PrevHash string           `json:"prev_hash"`
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Push appends a sealed receipt. Unsealed receipts and receipts whose
// stored hash does not recompute are rejected.
func (c *Chain) Push(r contract.Receipt) error {
	if err := Verify(&r); err != nil {
		return fmt.Errorf("refusing to chain receipt: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := ""
	if n := len(c.entries); n > 0 {
		prev = *c.entries[n-1].Receipt.ReceiptSHA256
	}
	c.entries = append(c.entries, Entry{Receipt: r, PrevHash: prev})
	return nil
}

// Len returns the number of chained receipts.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a copy of the chain links in order.
func (c *Chain) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// VerifyAll re-verifies every receipt hash and every prev-hash link.
func (c *Chain) VerifyAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := ""
	for i := range c.entries {
		e := &c.entries[i]
		if err := Verify(&e.Receipt); err != nil {
			return fmt.Errorf("chain entry %d: %w", i, err)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("chain entry %d: broken link: expected prev %q, found %q", i, prev, e.PrevHash)
		}
		prev = *e.Receipt.ReceiptSHA256
	}
	return nil
}
