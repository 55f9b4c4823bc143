package node

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/votechain/crypto"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/pki"
)

// newBallotNodeForTest builds a single ballot-ledger node over a finalized
// one-contest template, with no claim tickets recorded as consumed yet.
func newBallotNodeForTest(t *testing.T, id string, policy Policy, directory *pki.Directory) *Node {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := ledger.NewBallotTemplate("test-election")
	tmpl.AddItem("President", "", []string{"Alice", "Bob"}, 1)
	tmpl.Finalize()

	chain := ledger.NewChain(ledger.KindBallotLedger, newMemBlockStore())
	state, err := json.Marshal(ledger.NewBallotState(tmpl))
	if err != nil {
		t.Fatalf("marshal genesis ballot state: %v", err)
	}
	gen := ledger.NewBlock(0, ledger.GenesisHash, nil, state, 1)
	if err := chain.Genesis(gen); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	n := NewBallotNode(id, priv, chain, directory, policy, tmpl, nil)
	directory.Register(pki.PeerHandle{ID: id, PubKey: pub, IsAdversary: policy.IsAdversary()})
	if err := n.LoadGenesisState(); err != nil {
		t.Fatalf("load genesis state: %v", err)
	}
	return n
}

func TestUnrecognizedAuthPolicyAcceptsUnknownVoterIfSignatureValid(t *testing.T) {
	directory := pki.NewDirectory()
	n := newVoterNodeForTest(t, "auth-adv-1", "voter-1", NewUnrecognizedAuthPolicy(), directory)
	directory.Freeze()

	ticket := n.IssueTicket("ghost-voter", "nonce-1")
	tx, _ := ledger.NewAuthTicketTx("ghost-voter", ticket, n.PublicKey())

	if err := n.Submit(tx); err != nil {
		t.Fatalf("expected unrecognized_auth policy to accept an unknown voter id, got: %v", err)
	}
}

func TestUnrecognizedAuthPolicyStillEnforcesTicketExhaustion(t *testing.T) {
	directory := pki.NewDirectory()
	// voter-1 is known to the roll but already has zero tickets remaining.
	n := newVoterNodeForTest(t, "auth-adv-1", "voter-1", NewUnrecognizedAuthPolicy(), directory)
	directory.Freeze()
	n.voterState.Remaining["voter-1"] = 0

	ticket := n.IssueTicket("voter-1", "nonce-1")
	tx, _ := ledger.NewAuthTicketTx("voter-1", ticket, n.PublicKey())
	if err := n.Submit(tx); err == nil {
		t.Fatal("expected unrecognized_auth to still reject a known voter with no tickets remaining")
	}
}

func TestBallotForgerPolicyAcceptsForgedTicket(t *testing.T) {
	directory := pki.NewDirectory()
	n := newBallotNodeForTest(t, "ballot-adv-1", NewBallotForgerPolicy(), directory)
	directory.Freeze()

	// A ticket signed by a key that was never registered in the PKI
	// directory at all; no honest node would ever accept this.
	forgerPriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate forger key: %v", err)
	}
	forgedTicket := ledger.NewTicket("ghost-voter", "nonce-1", forgerPriv)

	tx, err := ledger.NewBallotCastTx(forgedTicket, ledger.BallotSelection{"President": {0}}, n.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := n.Submit(tx); err != nil {
		t.Fatalf("expected ballot_forger policy to accept a forged ticket, got: %v", err)
	}
}

func TestHonestBallotNodeRejectsForgedTicket(t *testing.T) {
	directory := pki.NewDirectory()
	n := newBallotNodeForTest(t, "ballot-1", NewHonestPolicy(), directory)
	directory.Freeze()

	forgerPriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate forger key: %v", err)
	}
	forgedTicket := ledger.NewTicket("ghost-voter", "nonce-1", forgerPriv)

	tx, err := ledger.NewBallotCastTx(forgedTicket, ledger.BallotSelection{"President": {0}}, n.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := n.Submit(tx); err == nil {
		t.Fatal("expected an honest node to reject a ticket from an unregistered issuer")
	}
}
