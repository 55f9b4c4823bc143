package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/votechain/crypto"
)

// GenesisHash is the canonical all-zero previous-hash for block 0.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Header carries the fields that determine a block's hash.
type Header struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	TxRoot    string `json:"tx_root"`    // hash of ordered transaction ids
	StateHash string `json:"state_hash"` // hash of the state snapshot
	Timestamp int64  `json:"timestamp"`
}

// Block is an immutable, ordered set of verified transactions plus the
// state snapshot that results from applying them.
type Block struct {
	Header       Header          `json:"header"`
	Transactions []*Transaction  `json:"transactions"`
	State        json.RawMessage `json:"state"`
	Hash         string          `json:"hash"`
}

// ComputeTxRoot builds a deterministic root hash over an ordered
// transaction list. Each id is length-prefixed to avoid boundary
// ambiguity between different transaction sets hashing to the same bytes.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, tx := range txs {
		id := []byte(tx.ID())
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(id)))
		buf.Write(lenBuf[:])
		buf.Write(id)
	}
	return crypto.Hash(buf.Bytes())
}

// ComputeHash returns H(height || prev_hash || tx_root || state_hash ||
// timestamp).
func (b *Block) ComputeHash() string {
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(b.Header.Height))
	buf.Write(lenBuf[:])
	writeLenPrefixed(&buf, []byte(b.Header.PrevHash))
	writeLenPrefixed(&buf, []byte(b.Header.TxRoot))
	writeLenPrefixed(&buf, []byte(b.Header.StateHash))
	binary.BigEndian.PutUint64(lenBuf[:], uint64(b.Header.Timestamp))
	buf.Write(lenBuf[:])
	return crypto.Hash(buf.Bytes())
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

// NewBlock builds a block from its constituent parts. state must already
// be the canonically-marshaled snapshot for the new height. NewBlock calls
// Finalize itself, so Header.TxRoot/StateHash/Hash are populated on return.
func NewBlock(height int64, prevHash string, txs []*Transaction, state json.RawMessage, timestamp int64) *Block {
	b := &Block{
		Header: Header{
			Height:    height,
			PrevHash:  prevHash,
			Timestamp: timestamp,
		},
		Transactions: txs,
		State:        state,
	}
	b.Finalize()
	return b
}

// Finalize (re)computes TxRoot, StateHash and Hash from the block's
// current contents. Every cohort node calling Finalize on independently
// but deterministically derived inputs produces byte-identical output.
func (b *Block) Finalize() {
	b.Header.TxRoot = ComputeTxRoot(b.Transactions)
	b.Header.StateHash = crypto.Hash(b.State)
	b.Hash = b.ComputeHash()
}

// VerifyIntegrity checks hash consistency and tx-root correctness,
// independent of any consensus-level verification (testable property 1).
func (b *Block) VerifyIntegrity() error {
	if computed := b.ComputeHash(); b.Hash != computed {
		return fmt.Errorf("block hash mismatch: stored %s computed %s", b.Hash, computed)
	}
	if txRoot := ComputeTxRoot(b.Transactions); b.Header.TxRoot != txRoot {
		return errors.New("tx_root mismatch")
	}
	if stateHash := crypto.Hash(b.State); b.Header.StateHash != stateHash {
		return errors.New("state_hash mismatch")
	}
	return nil
}

// IsGenesisHash reports whether h is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return h == GenesisHash
}
