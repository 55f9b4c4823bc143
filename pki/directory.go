// Package pki implements a fixed-at-setup fingerprint -> peer handle
// directory. A Directory is read-only after setup and shared by
// reference across every node on one ledger; it never copies itself
// into node state.
package pki

import (
	"fmt"
	"sync"

	"github.com/tolelom/votechain/crypto"
)

// PeerHandle is the lightweight identity a Directory hands out. It
// deliberately carries no reference back to the node it names — the
// node-lookup for gossip goes through a separate network collaborator,
// keeping Directory free of any node dependency.
type PeerHandle struct {
	ID          string
	PubKey      crypto.PublicKey
	IsAdversary bool
}

// Directory is a constant-time fingerprint -> PeerHandle lookup table.
// Each ledger owns an independent Directory; the voter-ledger and
// ballot-ledger PKIs never share state.
type Directory struct {
	mu      sync.RWMutex
	byFp    map[uint64]PeerHandle
	built   bool
}

// NewDirectory creates an empty, mutable Directory. Register every peer
// before calling Freeze; after Freeze, Register panics.
func NewDirectory() *Directory {
	return &Directory{byFp: make(map[uint64]PeerHandle)}
}

// Register adds a peer's handle under its public key's fingerprint. It
// panics if called after Freeze or on a fingerprint collision, since both
// indicate a setup-time programming error rather than a runtime
// condition.
func (d *Directory) Register(handle PeerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.built {
		panic("pki: Register called on a frozen Directory")
	}
	fp := handle.PubKey.Fingerprint()
	if _, exists := d.byFp[fp]; exists {
		panic(fmt.Sprintf("pki: fingerprint collision registering peer %s", handle.ID))
	}
	d.byFp[fp] = handle
}

// Freeze locks the Directory against further registration. Every node
// sharing this Directory is handed the same frozen instance; none of
// them ever mutates it.
func (d *Directory) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.built = true
}

// Lookup resolves a public key to its registered peer handle.
func (d *Directory) Lookup(pub crypto.PublicKey) (PeerHandle, bool) {
	return d.LookupFingerprint(pub.Fingerprint())
}

// LookupFingerprint resolves a fingerprint directly, as used when
// verifying a signature whose signer is named only by pubkey bytes.
func (d *Directory) LookupFingerprint(fp uint64) (PeerHandle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	handle, ok := d.byFp[fp]
	return handle, ok
}

// Peers returns every registered peer handle, in no particular order.
func (d *Directory) Peers() []PeerHandle {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerHandle, 0, len(d.byFp))
	for _, h := range d.byFp {
		out = append(out, h)
	}
	return out
}

// Size returns the number of registered peers.
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byFp)
}

// AdversaryCount returns how many registered peers carry IsAdversary.
func (d *Directory) AdversaryCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, h := range d.byFp {
		if h.IsAdversary {
			n++
		}
	}
	return n
}
