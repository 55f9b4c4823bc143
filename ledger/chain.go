package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// BlockStore is the persistence interface used by Chain. Implementations
// live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	PutBlock(block *Block) error
	GetBlockByHeight(height int64) (*Block, error)
	PutBlockByHeight(height int64, hash string) error
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	SetTip(hash string) error
	// CommitBlock atomically writes the block, its height index entry and
	// the tip pointer.
	CommitBlock(block *Block) error
}

// StateTransition recomputes the state snapshot that results from
// applying txs (in the given order) to prevState. Implementations must be
// deterministic: same prevState + same ordered txs => same output
// (testable property 2). The voter and ballot ledgers each supply their
// own transition via the txexec package.
type StateTransition func(prevState json.RawMessage, txs []*Transaction) (json.RawMessage, error)

// Chain manages one ledger's ordered, append-only sequence of blocks.
type Chain struct {
	mu     sync.RWMutex
	kind   LedgerKind
	store  BlockStore
	tip    *Block
	height int64
}

// NewChain returns a Chain of the given kind backed by store. Call Init
// to load an existing tip from storage.
func NewChain(kind LedgerKind, store BlockStore) *Chain {
	return &Chain{kind: kind, store: store}
}

// Kind reports which ledger (voter or ballot) this chain belongs to.
func (c *Chain) Kind() LedgerKind { return c.kind }

// Init loads the persisted tip, if any.
func (c *Chain) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tipHash, err := c.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := c.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	c.tip = tip
	c.height = tip.Header.Height
	return nil
}

// Genesis commits block 0 directly, without linkage checks. It fails if
// the chain already has a tip.
func (c *Chain) Genesis(block *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tip != nil {
		return fmt.Errorf("chain already has a tip at height %d", c.height)
	}
	if block.Header.Height != 0 || !IsGenesisHash(block.Header.PrevHash) {
		return fmt.Errorf("invalid genesis block: height=%d prev_hash=%s", block.Header.Height, block.Header.PrevHash)
	}
	if err := c.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	c.tip = block
	c.height = 0
	return nil
}

// Append validates height continuity, PrevHash linkage and block integrity,
// then persists the block and advances the tip.
func (c *Chain) Append(block *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tip == nil {
		return fmt.Errorf("chain has no genesis block; call Genesis first")
	}
	if block.Header.Height != c.height+1 {
		return fmt.Errorf("block height %d does not follow tip %d", block.Header.Height, c.height)
	}
	if block.Header.PrevHash != c.tip.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, c.tip.Hash)
	}
	if err := block.VerifyIntegrity(); err != nil {
		return fmt.Errorf("block integrity: %w", err)
	}
	if err := c.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	c.tip = block
	c.height = block.Header.Height
	return nil
}

// CurrentTip returns the current tip block, or nil for a fresh chain.
func (c *Chain) CurrentTip() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// TipHash returns the current tip's hash, or "" for a fresh chain.
func (c *Chain) TipHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tip == nil {
		return ""
	}
	return c.tip.Hash
}

// Height returns the tip's height (0 for a chain with only genesis).
func (c *Chain) Height() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// GetBlock returns a block by hash.
func (c *Chain) GetBlock(hash string) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetBlock(hash)
}

// GetBlockByHeight returns the block at height.
func (c *Chain) GetBlockByHeight(height int64) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetBlockByHeight(height)
}

// Validate rechecks every linkage and every state transition from genesis
// to the tip, using transition to recompute each block's state from its
// predecessor's. It fails on the first inconsistency found (testable
// property 1).
func (c *Chain) Validate(transition StateTransition) error {
	c.mu.RLock()
	tipHeight := c.height
	hasTip := c.tip != nil
	c.mu.RUnlock()
	if !hasTip {
		return nil
	}

	var prev *Block
	for h := int64(0); h <= tipHeight; h++ {
		block, err := c.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("height %d: %w", h, err)
		}
		if err := block.VerifyIntegrity(); err != nil {
			return fmt.Errorf("height %d integrity: %w", h, err)
		}
		if h == 0 {
			if !IsGenesisHash(block.Header.PrevHash) {
				return fmt.Errorf("height 0: prev_hash is not the genesis hash")
			}
		} else {
			if block.Header.PrevHash != prev.Hash {
				return fmt.Errorf("height %d: prev_hash mismatch", h)
			}
			if block.Header.Height != prev.Header.Height+1 {
				return fmt.Errorf("height %d: non-contiguous height", h)
			}
			wantState, err := transition(prev.State, block.Transactions)
			if err != nil {
				return fmt.Errorf("height %d: recompute state: %w", h, err)
			}
			if !bytes.Equal(canonicalJSON(wantState), canonicalJSON(block.State)) {
				return fmt.Errorf("height %d: state mismatch", h)
			}
		}
		prev = block
	}
	return nil
}

// canonicalJSON re-marshals a JSON value through Go's map-key-sorting
// encoder so that two semantically equal snapshots compare equal
// regardless of original key order.
func canonicalJSON(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
