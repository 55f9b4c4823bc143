package transport

import (
	"encoding/json"
	"testing"

	"github.com/tolelom/votechain/crypto"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
	"github.com/tolelom/votechain/pki"

	_ "github.com/tolelom/votechain/txexec/modules/authticket"
)

// memBlockStore is a minimal in-process ledger.BlockStore for transport tests.
type memBlockStore struct {
	blocks map[string]*ledger.Block
	byH    map[int64]string
	tip    string
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{blocks: make(map[string]*ledger.Block), byH: make(map[int64]string)}
}
func (s *memBlockStore) GetBlock(hash string) (*ledger.Block, error) {
	b, ok := s.blocks[hash]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return b, nil
}
func (s *memBlockStore) PutBlock(b *ledger.Block) error { s.blocks[b.Hash] = b; return nil }
func (s *memBlockStore) GetBlockByHeight(h int64) (*ledger.Block, error) {
	hash, ok := s.byH[h]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return s.GetBlock(hash)
}
func (s *memBlockStore) PutBlockByHeight(h int64, hash string) error { s.byH[h] = hash; return nil }
func (s *memBlockStore) GetTip() (string, error)                    { return s.tip, nil }
func (s *memBlockStore) SetTip(hash string) error                   { s.tip = hash; return nil }
func (s *memBlockStore) CommitBlock(b *ledger.Block) error {
	s.PutBlock(b)
	s.PutBlockByHeight(b.Header.Height, b.Hash)
	return s.SetTip(b.Hash)
}

func newTestNode(t *testing.T, id, voterID string, directory *pki.Directory) *node.Node {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	chain := ledger.NewChain(ledger.KindVoterLedger, newMemBlockStore())
	state, _ := json.Marshal(ledger.VoterState{Remaining: map[string]int{voterID: 1}})
	gen := ledger.NewBlock(0, ledger.GenesisHash, nil, state, 1)
	if err := chain.Genesis(gen); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	n := node.NewVoterNode(id, priv, chain, directory, node.NewHonestPolicy(), nil)
	directory.Register(pki.PeerHandle{ID: id, PubKey: pub, IsAdversary: false})
	if err := n.LoadGenesisState(); err != nil {
		t.Fatalf("load genesis state: %v", err)
	}
	return n
}

// startTestServer starts a Server for n on an OS-assigned loopback port and
// returns the address it is listening on.
func startTestServer(t *testing.T, n *node.Node) string {
	t.Helper()
	srv := NewServer(n, nil)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv.Addr()
}

func TestClientServerTipHashRoundTrip(t *testing.T) {
	directory := pki.NewDirectory()
	n := newTestNode(t, "auth-1", "voter-1", directory)
	directory.Freeze()
	addr := startTestServer(t, n)

	client := NewClient([]SeedPeerAddr{{ID: "auth-1", Addr: addr, Kind: ledger.KindVoterLedger}}, nil)
	hash := client.TipHash("auth-1")
	if hash != n.Chain().TipHash() {
		t.Fatalf("expected tip hash %q, got %q", n.Chain().TipHash(), hash)
	}
}

func TestClientServerCosignRoundTrip(t *testing.T) {
	directory := pki.NewDirectory()
	a := newTestNode(t, "auth-1", "voter-1", directory)
	b := newTestNode(t, "auth-2", "voter-1", directory)
	directory.Freeze()
	addr := startTestServer(t, b)

	ticket := a.IssueTicket("voter-1", "nonce-1")
	tx, err := ledger.NewAuthTicketTx("voter-1", ticket, a.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}

	client := NewClient([]SeedPeerAddr{{ID: "auth-2", Addr: addr, Kind: ledger.KindVoterLedger}}, nil)
	cosigned, err := client.Cosign("auth-2", tx)
	if err != nil {
		t.Fatalf("cosign: %v", err)
	}
	if cosigned.ValidSignatureCount() != 2 {
		t.Fatalf("expected 2 valid signatures after cosigning, got %d", cosigned.ValidSignatureCount())
	}
}

func TestClientServerPoolAndMergeRoundTrip(t *testing.T) {
	directory := pki.NewDirectory()
	a := newTestNode(t, "auth-1", "voter-1", directory)
	b := newTestNode(t, "auth-2", "voter-1", directory)
	directory.Freeze()
	addrB := startTestServer(t, b)

	ticket := a.IssueTicket("voter-1", "nonce-1")
	tx, err := ledger.NewAuthTicketTx("voter-1", ticket, a.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := a.Submit(tx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	client := NewClient([]SeedPeerAddr{{ID: "auth-2", Addr: addrB, Kind: ledger.KindVoterLedger}}, nil)
	client.Merge("auth-2", a.BeginConsensusRound())

	pooled := client.Pool("auth-2")
	if len(pooled) != 1 {
		t.Fatalf("expected 1 transaction merged into the remote pool, got %d", len(pooled))
	}
}

func TestClientServerFinalizeRoundTrip(t *testing.T) {
	directory := pki.NewDirectory()
	a := newTestNode(t, "auth-1", "voter-1", directory)
	directory.Freeze()
	addr := startTestServer(t, a)

	ticket := a.IssueTicket("voter-1", "nonce-1")
	tx, err := ledger.NewAuthTicketTx("voter-1", ticket, a.PublicKey())
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := a.Submit(tx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	client := NewClient([]SeedPeerAddr{{ID: "auth-1", Addr: addr, Kind: ledger.KindVoterLedger}}, nil)
	block, err := client.Finalize("auth-1", 1, 1.0, 100)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if block.Header.Height != 1 {
		t.Fatalf("expected the finalized block at height 1, got %d", block.Header.Height)
	}
}

func TestClientCallUnknownPeerFails(t *testing.T) {
	client := NewClient(nil, nil)
	if _, err := client.Cosign("ghost", &ledger.Transaction{}); err == nil {
		t.Fatal("expected calling an unconfigured peer to fail")
	}
}

func TestClientPeersFiltersByKind(t *testing.T) {
	client := NewClient([]SeedPeerAddr{
		{ID: "auth-1", Addr: "127.0.0.1:1", Kind: ledger.KindVoterLedger},
		{ID: "ballot-1", Addr: "127.0.0.1:2", Kind: ledger.KindBallotLedger},
	}, nil)
	ids := client.Peers(ledger.KindVoterLedger)
	if len(ids) != 1 || ids[0] != "auth-1" {
		t.Fatalf("expected only auth-1 to match the voter ledger kind, got %v", ids)
	}
}
