package node

import "github.com/tolelom/votechain/ledger"

// Network is the collaborator that owns the set of live nodes and
// resolves a PKI peer handle to the node that can actually answer a
// cosign request or hand over its pool. Splitting this out of Directory
// avoids a cyclic node<->PKI reference: the PKI never holds a reference
// to a node, and a node never reaches into a peer's fields directly —
// every cross-node interaction goes through Network's explicit methods.
type Network interface {
	// Peers returns every node id this network knows about for the given
	// ledger kind.
	Peers(kind ledger.LedgerKind) []string
	// Cosign routes a cosign request to the named peer node.
	Cosign(peerID string, tx *ledger.Transaction) (*ledger.Transaction, error)
	// Pool returns the named peer's current open-pool snapshot.
	Pool(peerID string) []*ledger.Transaction
	// TipHash returns the named peer's current chain tip hash.
	TipHash(peerID string) string
	// Merge folds txs into the named peer's own open pool, accumulating
	// signatures on shared transactions.
	Merge(peerID string, txs []*ledger.Transaction)
	// Finalize runs the named peer's consensus-round finalization.
	Finalize(peerID string, cohortSize int, minimumAgreementPct float64, timestamp int64) (*ledger.Block, error)
}

// LocalNetwork is an in-process Network implementation: every "peer" is a
// *Node living in the same process, addressed by id. It is what the
// single-process simulation driver and tests use; a multi-process
// deployment would instead implement Network over the transport package's
// RPC calls.
type LocalNetwork struct {
	nodes map[string]*Node
}

// NewLocalNetwork builds a Network over an in-process set of nodes.
func NewLocalNetwork(nodes map[string]*Node) *LocalNetwork {
	return &LocalNetwork{nodes: nodes}
}

func (ln *LocalNetwork) Peers(kind ledger.LedgerKind) []string {
	var ids []string
	for id, n := range ln.nodes {
		if n.kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

func (ln *LocalNetwork) Cosign(peerID string, tx *ledger.Transaction) (*ledger.Transaction, error) {
	n, ok := ln.nodes[peerID]
	if !ok {
		return nil, errUnknownPeer(peerID)
	}
	return n.CosignRequest(tx)
}

func (ln *LocalNetwork) Pool(peerID string) []*ledger.Transaction {
	n, ok := ln.nodes[peerID]
	if !ok {
		return nil
	}
	return n.BeginConsensusRound()
}

func (ln *LocalNetwork) TipHash(peerID string) string {
	n, ok := ln.nodes[peerID]
	if !ok {
		return ""
	}
	return n.Chain().TipHash()
}

func (ln *LocalNetwork) Merge(peerID string, txs []*ledger.Transaction) {
	if n, ok := ln.nodes[peerID]; ok {
		n.MergeCohortPool(txs)
	}
}

func (ln *LocalNetwork) Finalize(peerID string, cohortSize int, minimumAgreementPct float64, timestamp int64) (*ledger.Block, error) {
	n, ok := ln.nodes[peerID]
	if !ok {
		return nil, errUnknownPeer(peerID)
	}
	return n.FinalizeConsensusRound(cohortSize, minimumAgreementPct, timestamp)
}

func errUnknownPeer(id string) error {
	return &unknownPeerError{id: id}
}

type unknownPeerError struct{ id string }

func (e *unknownPeerError) Error() string { return "node: unknown peer " + e.id }
