package election

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tolelom/votechain/config"
	"github.com/tolelom/votechain/ledger"

	_ "github.com/tolelom/votechain/txexec/modules/authticket"
	_ "github.com/tolelom/votechain/txexec/modules/ballotcast"
)

func writeTestRoll(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "voters.json")
	data := []byte(`[{"name": "Alice Anderson", "num_claim_tickets": 1}, {"name": "Bob Baker", "num_claim_tickets": 1}]`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write voter roll fixture: %v", err)
	}
	return path
}

func testBallotTemplate() *ledger.BallotTemplate {
	tmpl := ledger.NewBallotTemplate("test-election")
	tmpl.AddItem("President", "", []string{"Alice", "Bob"}, 1)
	tmpl.Finalize()
	return tmpl
}

func setupTestElection(t *testing.T) *Election {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Election = "test-election"
	cfg.DataDir = dir
	cfg.VoterRollPath = writeTestRoll(t, dir)
	// A single node per ledger means a self-signature alone already clears
	// the 2/3 agreement threshold, so a submitted transaction commits on
	// the very next consensus tick without a separate cosigning step.
	cfg.TotalVoterNodes = 1
	cfg.TotalBallotNodes = 1

	e, err := Setup(cfg, testBallotTemplate(), 1)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestSetupWiresExpectedNodeCounts(t *testing.T) {
	e := setupTestElection(t)
	if e.VoterNodeCount() != 1 {
		t.Fatalf("expected 1 voter node, got %d", e.VoterNodeCount())
	}
	if e.BallotNodeCount() != 1 {
		t.Fatalf("expected 1 ballot node, got %d", e.BallotNodeCount())
	}
	if len(e.VoterRoll()) != 2 {
		t.Fatalf("expected 2 voters loaded from roll, got %d", len(e.VoterRoll()))
	}
}

func TestAuthenticateAndLookupVoter(t *testing.T) {
	e := setupTestElection(t)
	if !e.AuthenticateVoter("1") {
		t.Fatal("expected voter 1 to authenticate")
	}
	if e.AuthenticateVoter("ghost") {
		t.Fatal("expected an unknown voter id to fail authentication")
	}
	matches := e.LookupVoterByName("Alice Anderson")
	if len(matches) != 1 || matches[0].ID != "1" {
		t.Fatalf("expected exactly one match for Alice Anderson, got %v", matches)
	}
}

func TestIssueTicketAndCastVoteEndToEnd(t *testing.T) {
	e := setupTestElection(t)

	ticket, err := e.IssueTicket("1")
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if ticket.VoterID != "1" {
		t.Fatalf("expected ticket for voter 1, got %q", ticket.VoterID)
	}

	if err := e.CastVote(ticket, ledger.BallotSelection{"President": {0}}); err != nil {
		t.Fatalf("cast vote: %v", err)
	}

	if _, err := e.RunConsensus("voter"); err != nil {
		t.Fatalf("run voter consensus: %v", err)
	}
	if _, err := e.RunConsensus("ballot"); err != nil {
		t.Fatalf("run ballot consensus: %v", err)
	}

	state, err := e.QueryResults()
	if err != nil {
		t.Fatalf("query results: %v", err)
	}
	if state.Tally["President"]["Alice"] != 1 {
		t.Fatalf("expected Alice to have 1 vote, got %d", state.Tally["President"]["Alice"])
	}
}

func TestIssueTicketRejectsUnknownVoter(t *testing.T) {
	e := setupTestElection(t)
	if _, err := e.IssueTicket("ghost"); err == nil {
		t.Fatal("expected issuing a ticket for an unknown voter to fail")
	}
}

func TestQueryResultsOutOfSyncBeforeConsensus(t *testing.T) {
	e := setupTestElection(t)
	if _, err := e.IssueTicket("1"); err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if _, err := e.QueryResults(); err != ErrOutOfSync {
		t.Fatalf("expected ErrOutOfSync before any ballot consensus round, got %v", err)
	}
}

func TestTicketHistoryTracksIssuedTickets(t *testing.T) {
	e := setupTestElection(t)
	if _, err := e.IssueTicket("1"); err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if _, err := e.RunConsensus("voter"); err != nil {
		t.Fatalf("run voter consensus: %v", err)
	}

	history, err := e.TicketHistory("1")
	if err != nil {
		t.Fatalf("ticket history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 ticket recorded for voter 1, got %d", len(history))
	}
}

func TestIsElectionOverTracksVotersVoted(t *testing.T) {
	e := setupTestElection(t)
	if e.IsElectionOver() {
		t.Fatal("expected the election to not be over before any votes are cast")
	}

	ticket1, err := e.IssueTicket("1")
	if err != nil {
		t.Fatalf("issue ticket 1: %v", err)
	}
	if err := e.CastVote(ticket1, ledger.BallotSelection{"President": {0}}); err != nil {
		t.Fatalf("cast vote 1: %v", err)
	}
	ticket2, err := e.IssueTicket("2")
	if err != nil {
		t.Fatalf("issue ticket 2: %v", err)
	}
	if err := e.CastVote(ticket2, ledger.BallotSelection{"President": {1}}); err != nil {
		t.Fatalf("cast vote 2: %v", err)
	}

	if !e.IsElectionOver() {
		t.Fatal("expected the election to be over once every voter has cast a vote")
	}
}

func TestBallotExposesFinalizedTemplate(t *testing.T) {
	e := setupTestElection(t)
	item, ok := e.Ballot().Item("President")
	if !ok {
		t.Fatal("expected the President contest to be present on the exposed ballot")
	}
	if len(item.Choices) != 2 {
		t.Fatalf("expected 2 choices for President, got %d", len(item.Choices))
	}
}
