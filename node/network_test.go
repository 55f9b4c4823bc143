package node

import (
	"testing"

	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/pki"
)

func TestLocalNetworkPeersFiltersByKind(t *testing.T) {
	directory := pki.NewDirectory()
	v1 := newVoterNodeForTest(t, "auth-1", "voter-1", NewHonestPolicy(), directory)
	v2 := newVoterNodeForTest(t, "auth-2", "voter-1", NewHonestPolicy(), directory)
	directory.Freeze()

	ln := NewLocalNetwork(map[string]*Node{v1.ID: v1, v2.ID: v2})
	peers := ln.Peers(v1.kind)
	if len(peers) != 2 {
		t.Fatalf("expected 2 voter-ledger peers, got %d", len(peers))
	}
}

func TestLocalNetworkTipHashUnknownPeer(t *testing.T) {
	ln := NewLocalNetwork(map[string]*Node{})
	if got := ln.TipHash("nobody"); got != "" {
		t.Fatalf("expected empty tip hash for unknown peer, got %q", got)
	}
}

func TestLocalNetworkCosignRoutesToNamedPeer(t *testing.T) {
	directory := pki.NewDirectory()
	issuer := newVoterNodeForTest(t, "auth-1", "voter-1", NewHonestPolicy(), directory)
	cosigner := newVoterNodeForTest(t, "auth-2", "voter-1", NewHonestPolicy(), directory)
	directory.Freeze()

	ln := NewLocalNetwork(map[string]*Node{issuer.ID: issuer, cosigner.ID: cosigner})

	ticket := issuer.IssueTicket("voter-1", "nonce-1")
	tx, err := ledger.NewAuthTicketTx("voter-1", ticket, issuer.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := issuer.Submit(tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	pooled, _ := issuer.Pool().Get(tx.ID())

	cosigned, err := ln.Cosign(cosigner.ID, pooled)
	if err != nil {
		t.Fatalf("cosign via network: %v", err)
	}
	if cosigned.ValidSignatureCount() != 2 {
		t.Fatalf("expected 2 signatures after network cosign, got %d", cosigned.ValidSignatureCount())
	}
}
