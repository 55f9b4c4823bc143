package node

import (
	"sync"

	"github.com/tolelom/votechain/ledger"
)

// OpenPool is a node's exclusively-owned set of unverified transactions.
// It never leaks a pointer into its internal storage: every accessor
// returns a clone, so a caller folding gossiped signatures into its own
// copy can never mutate another node's pool by accident.
type OpenPool struct {
	mu  sync.RWMutex
	txs map[string]*ledger.Transaction
	ord []string // insertion order, for deterministic iteration before tally sorts by hash
}

// NewOpenPool creates an empty pool.
func NewOpenPool() *OpenPool {
	return &OpenPool{txs: make(map[string]*ledger.Transaction)}
}

// Add inserts tx, or merges its signatures into an existing entry with the
// same id. Returns the pool's own copy.
func (p *OpenPool) Add(tx *ledger.Transaction) *ledger.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := tx.ID()
	if existing, ok := p.txs[id]; ok {
		existing.MergeSignatures(tx)
		return existing
	}
	cp := tx.Clone()
	p.txs[id] = cp
	p.ord = append(p.ord, id)
	return cp
}

// Get returns a clone of the pooled transaction with the given id.
func (p *OpenPool) Get(id string) (*ledger.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tx, ok := p.txs[id]
	if !ok {
		return nil, false
	}
	return tx.Clone(), true
}

// All returns clones of every pooled transaction, in insertion order.
func (p *OpenPool) All() []*ledger.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ledger.Transaction, 0, len(p.ord))
	for _, id := range p.ord {
		if tx, ok := p.txs[id]; ok {
			out = append(out, tx.Clone())
		}
	}
	return out
}

// Remove deletes transactions by id, e.g. after commit or a definitive
// rejection.
func (p *OpenPool) Remove(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(p.txs, id)
		removed[id] = true
	}
	filtered := p.ord[:0]
	for _, id := range p.ord {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	p.ord = filtered
}

// Size returns the number of pooled transactions.
func (p *OpenPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}
