package transport

import (
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
)

// MeshNetwork implements node.Network over a mix of in-process replicas
// and replicas reachable only over the wire, so one process can host a
// handful of local nodes while the rest of the ledger's cohort runs
// elsewhere, addressed through cfg.SeedPeers. Every call is routed to
// local or remote by peer id; a peer configured as a seed always wins,
// since a node this process also hosts locally would never need to be
// dialed.
type MeshNetwork struct {
	local  node.Network
	remote *Client
}

// NewMeshNetwork builds a Network over local (this process's own nodes)
// and remote (the configured seed peers reachable over TCP).
func NewMeshNetwork(local node.Network, remote *Client) *MeshNetwork {
	return &MeshNetwork{local: local, remote: remote}
}

func (m *MeshNetwork) Peers(kind ledger.LedgerKind) []string {
	ids := append([]string{}, m.local.Peers(kind)...)
	return append(ids, m.remote.Peers(kind)...)
}

func (m *MeshNetwork) Cosign(peerID string, tx *ledger.Transaction) (*ledger.Transaction, error) {
	if m.remote.has(peerID) {
		return m.remote.Cosign(peerID, tx)
	}
	return m.local.Cosign(peerID, tx)
}

func (m *MeshNetwork) Pool(peerID string) []*ledger.Transaction {
	if m.remote.has(peerID) {
		return m.remote.Pool(peerID)
	}
	return m.local.Pool(peerID)
}

func (m *MeshNetwork) TipHash(peerID string) string {
	if m.remote.has(peerID) {
		return m.remote.TipHash(peerID)
	}
	return m.local.TipHash(peerID)
}

func (m *MeshNetwork) Merge(peerID string, txs []*ledger.Transaction) {
	if m.remote.has(peerID) {
		m.remote.Merge(peerID, txs)
		return
	}
	m.local.Merge(peerID, txs)
}

func (m *MeshNetwork) Finalize(peerID string, cohortSize int, minimumAgreementPct float64, timestamp int64) (*ledger.Block, error) {
	if m.remote.has(peerID) {
		return m.remote.Finalize(peerID, cohortSize, minimumAgreementPct, timestamp)
	}
	return m.local.Finalize(peerID, cohortSize, minimumAgreementPct, timestamp)
}
