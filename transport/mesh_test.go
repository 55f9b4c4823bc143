package transport

import (
	"testing"

	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
	"github.com/tolelom/votechain/pki"
)

func TestMeshNetworkRoutesLocalPeerToLocalNetwork(t *testing.T) {
	directory := pki.NewDirectory()
	local := newTestNode(t, "auth-1", "voter-1", directory)
	remoteNode := newTestNode(t, "auth-2", "voter-1", directory)
	directory.Freeze()
	remoteAddr := startTestServer(t, remoteNode)

	localNet := node.NewLocalNetwork(map[string]*node.Node{"auth-1": local})
	client := NewClient([]SeedPeerAddr{{ID: "auth-2", Addr: remoteAddr, Kind: ledger.KindVoterLedger}}, nil)
	mesh := NewMeshNetwork(localNet, client)

	if got := mesh.TipHash("auth-1"); got != local.Chain().TipHash() {
		t.Fatalf("expected local tip hash %q, got %q", local.Chain().TipHash(), got)
	}
}

func TestMeshNetworkRoutesSeedPeerOverTransport(t *testing.T) {
	directory := pki.NewDirectory()
	local := newTestNode(t, "auth-1", "voter-1", directory)
	remoteNode := newTestNode(t, "auth-2", "voter-1", directory)
	directory.Freeze()
	remoteAddr := startTestServer(t, remoteNode)

	localNet := node.NewLocalNetwork(map[string]*node.Node{"auth-1": local})
	client := NewClient([]SeedPeerAddr{{ID: "auth-2", Addr: remoteAddr, Kind: ledger.KindVoterLedger}}, nil)
	mesh := NewMeshNetwork(localNet, client)

	if got := mesh.TipHash("auth-2"); got != remoteNode.Chain().TipHash() {
		t.Fatalf("expected remote tip hash %q, got %q", remoteNode.Chain().TipHash(), got)
	}
}

func TestMeshNetworkPeersCombinesLocalAndRemote(t *testing.T) {
	directory := pki.NewDirectory()
	local := newTestNode(t, "auth-1", "voter-1", directory)
	remoteNode := newTestNode(t, "auth-2", "voter-1", directory)
	directory.Freeze()
	remoteAddr := startTestServer(t, remoteNode)

	localNet := node.NewLocalNetwork(map[string]*node.Node{"auth-1": local})
	client := NewClient([]SeedPeerAddr{{ID: "auth-2", Addr: remoteAddr, Kind: ledger.KindVoterLedger}}, nil)
	mesh := NewMeshNetwork(localNet, client)

	ids := mesh.Peers(ledger.KindVoterLedger)
	if len(ids) != 2 {
		t.Fatalf("expected 2 peers across local and remote, got %v", ids)
	}
}

func TestMeshNetworkMergeRoutesToRemote(t *testing.T) {
	directory := pki.NewDirectory()
	local := newTestNode(t, "auth-1", "voter-1", directory)
	remoteNode := newTestNode(t, "auth-2", "voter-1", directory)
	directory.Freeze()
	remoteAddr := startTestServer(t, remoteNode)

	ticket := local.IssueTicket("voter-1", "nonce-1")
	tx, err := ledger.NewAuthTicketTx("voter-1", ticket, local.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := local.Submit(tx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	localNet := node.NewLocalNetwork(map[string]*node.Node{"auth-1": local})
	client := NewClient([]SeedPeerAddr{{ID: "auth-2", Addr: remoteAddr, Kind: ledger.KindVoterLedger}}, nil)
	mesh := NewMeshNetwork(localNet, client)

	mesh.Merge("auth-2", local.BeginConsensusRound())

	pooled := mesh.Pool("auth-2")
	if len(pooled) != 1 {
		t.Fatalf("expected 1 transaction merged into the remote pool, got %d", len(pooled))
	}
}
