// Package election wires the two ledgers' nodes, PKI directories and
// consensus rounds into driver-facing operations: the thin shell layer
// (CLI, RPC) never touches node/consensus/ledger types directly, only
// these.
package election

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tolelom/votechain/config"
	"github.com/tolelom/votechain/consensus"
	"github.com/tolelom/votechain/events"
	"github.com/tolelom/votechain/indexer"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
	"github.com/tolelom/votechain/pki"
	"github.com/tolelom/votechain/storage"
	"github.com/tolelom/votechain/transport"
)

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Election owns both ledgers' full node sets and exposes the
// driver-to-core operations.
type Election struct {
	cfg       *config.Config
	template  *ledger.BallotTemplate
	voterRoll []ledger.Voter

	emitter *events.Emitter
	indexer *indexer.Indexer

	voterDirectory  *pki.Directory
	ballotDirectory *pki.Directory

	voterNodes  []*node.Node
	ballotNodes []*node.Node

	voterNetwork  node.Network
	ballotNetwork node.Network

	dbs []*storage.LevelDB

	// transportServers is non-empty only when cfg.SeedPeers names remote
	// replicas, so this process's local nodes are reachable over TCP.
	transportServers []*transport.Server

	mu             sync.Mutex
	votersVoted    map[string]bool
	nextVoterNode  int
	nextBallotNode int
}

// ErrOutOfSync is returned by QueryResults when no block hash is held by
// enough ballot-ledger nodes to meet the agreement threshold.
var ErrOutOfSync = errors.New("election: ledger nodes not in sync, retry after next consensus round")

// Ballot exposes the election's finalized ballot template.
func (e *Election) Ballot() *ledger.BallotTemplate { return e.template }

// VoterRoll returns the full voter roll loaded at setup.
func (e *Election) VoterRoll() []ledger.Voter { return e.voterRoll }

// VoterNodeCount and BallotNodeCount report each ledger's replica count,
// honest and adversarial combined.
func (e *Election) VoterNodeCount() int  { return len(e.voterNodes) }
func (e *Election) BallotNodeCount() int { return len(e.ballotNodes) }

// AdversarialMode reports whether this election was set up with
// adversary-policy nodes.
func (e *Election) AdversarialMode() bool { return e.cfg.AdversarialMode }

// Close releases every node's underlying chain database.
func (e *Election) Close() error {
	for _, srv := range e.transportServers {
		srv.Stop()
	}
	var firstErr error
	for _, db := range e.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AuthenticateVoter reports whether voterID is a recognized entry on the
// voter roll. The driver passes a voter id already resolved from a name
// via LookupVoterByName.
func (e *Election) AuthenticateVoter(voterID string) bool {
	for _, v := range e.voterRoll {
		if v.ID == voterID {
			return true
		}
	}
	return false
}

// LookupVoterByName returns every roll entry whose normalized name
// matches name.
func (e *Election) LookupVoterByName(name string) []ledger.Voter {
	var matches []ledger.Voter
	for _, v := range e.voterRoll {
		if v.Name == normalizeName(name) {
			matches = append(matches, v)
		}
	}
	return matches
}

// IssueTicket routes to the next voter-authentication node in round-robin
// order and issues a ballot claim ticket for voterID. Fails with
// ledger.ErrUnknownVoter or ledger.ErrNotEnoughTickets.
func (e *Election) IssueTicket(voterID string) (ledger.BallotClaimTicket, error) {
	if !e.AuthenticateVoter(voterID) {
		return ledger.BallotClaimTicket{}, fmt.Errorf("%w: %s", ledger.ErrUnknownVoter, voterID)
	}

	n := e.nextVoterAuthNode()
	nonce := fmt.Sprintf("%s-%d", voterID, time.Now().UnixNano())
	ticket := n.IssueTicket(voterID, nonce)

	tx, err := ledger.NewAuthTicketTx(voterID, ticket, n.PublicKey())
	if err != nil {
		return ledger.BallotClaimTicket{}, fmt.Errorf("build auth ticket tx: %w", err)
	}
	if err := n.Submit(tx); err != nil {
		return ledger.BallotClaimTicket{}, err
	}
	e.gossipCosign(e.voterNetwork, n.ID, tx)
	return ticket, nil
}

// CastVote routes to the next voting-computer node in round-robin order
// and submits a BallotCast transaction for ticket and selections.
func (e *Election) CastVote(ticket ledger.BallotClaimTicket, selections ledger.BallotSelection) error {
	n := e.nextBallotComputerNode()
	tx, err := ledger.NewBallotCastTx(ticket, selections, n.PublicKey())
	if err != nil {
		return fmt.Errorf("build ballot cast tx: %w", err)
	}
	if err := n.Submit(tx); err != nil {
		return err
	}
	e.gossipCosign(e.ballotNetwork, n.ID, tx)
	e.mu.Lock()
	e.votersVoted[ticket.VoterID] = true
	e.mu.Unlock()
	return nil
}

// gossipCosign asks every other node on net to cosign tx and folds the
// resulting signatures back into the originating node's pool, so a
// freshly submitted transaction can accumulate enough peer signatures to
// clear the agreement threshold before the next consensus tick, rather
// than waiting on a separate gossip round.
func (e *Election) gossipCosign(net node.Network, originID string, tx *ledger.Transaction) {
	kind := tx.Kind
	var ledgerKind ledger.LedgerKind
	switch {
	case kind == ledger.KindAuthTicketIssued:
		ledgerKind = ledger.KindVoterLedger
	default:
		ledgerKind = ledger.KindBallotLedger
	}
	for _, peerID := range net.Peers(ledgerKind) {
		if peerID == originID {
			continue
		}
		cosigned, err := net.Cosign(peerID, tx)
		if err != nil {
			continue
		}
		net.Merge(originID, []*ledger.Transaction{cosigned})
	}
}

// RunConsensus runs one consensus round for the named ledger ("voter" or
// "ballot").
func (e *Election) RunConsensus(ledgerName string) (*consensus.Report, error) {
	round, err := e.roundFor(ledgerName)
	if err != nil {
		return nil, err
	}
	return round.Tick(time.Now().UnixNano())
}

// RunConsensusLoop starts a background wall-clock consensus loop for both
// ledgers, ticking every interval until done is closed. onTick, if
// non-nil, is called with the ledger name and that round's report.
func (e *Election) RunConsensusLoop(interval time.Duration, done <-chan struct{}, onTick func(ledgerName string, report *consensus.Report)) {
	voterRound := consensus.NewRound(ledger.KindVoterLedger, e.voterNetwork, e.cfg.MinimumAgreementPct)
	ballotRound := consensus.NewRound(ledger.KindBallotLedger, e.ballotNetwork, e.cfg.MinimumAgreementPct)

	go voterRound.Run(consensus.RealClock{}, interval, done, func(r *consensus.Report) {
		if onTick != nil {
			onTick("voter", r)
		}
	})
	go ballotRound.Run(consensus.RealClock{}, interval, done, func(r *consensus.Report) {
		if onTick != nil {
			onTick("ballot", r)
		}
	})
}

func (e *Election) roundFor(ledgerName string) (*consensus.Round, error) {
	switch ledgerName {
	case "voter":
		return consensus.NewRound(ledger.KindVoterLedger, e.voterNetwork, e.cfg.MinimumAgreementPct), nil
	case "ballot":
		return consensus.NewRound(ledger.KindBallotLedger, e.ballotNetwork, e.cfg.MinimumAgreementPct), nil
	default:
		return nil, fmt.Errorf("election: unknown ledger name %q", ledgerName)
	}
}

// QueryResults returns the committed ballot-ledger state held by at
// least MinimumAgreementPct of ballot nodes, or ErrOutOfSync if no block
// hash clears that bar yet. The genesis block does not count, so results
// are out of sync until a consensus round has committed a ballot block.
func (e *Election) QueryResults() (*ledger.BallotState, error) {
	if len(e.ballotNodes) == 0 {
		return nil, ErrOutOfSync
	}
	counts := make(map[string]int)
	blocks := make(map[string]*ledger.Block)
	for _, n := range e.ballotNodes {
		tip := n.Chain().CurrentTip()
		if tip == nil || tip.Header.Height == 0 {
			continue
		}
		counts[tip.Hash]++
		blocks[tip.Hash] = tip
	}
	total := len(e.ballotNodes)
	for hash, count := range counts {
		if float64(count)/float64(total) >= e.cfg.MinimumAgreementPct {
			var state ledger.BallotState
			if err := json.Unmarshal(blocks[hash].State, &state); err != nil {
				return nil, fmt.Errorf("decode ballot state: %w", err)
			}
			return &state, nil
		}
	}
	return nil, ErrOutOfSync
}

// IsElectionOver reports whether every voter on the roll has cast a
// vote, tracked as a simple num_voters_voted >= len(voter_roll) count
// rather than re-deriving it from chain state on every call.
func (e *Election) IsElectionOver() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.votersVoted) >= len(e.voterRoll)
}

// TicketHistory returns the transaction ids of tickets issued to voterID.
func (e *Election) TicketHistory(voterID string) ([]string, error) {
	return e.indexer.TicketHistory(voterID)
}

// maxLogLines bounds TailLog's output to the most recent lines.
const maxLogLines = 30

// TailLog returns the last maxLogLines lines of the log file at path.
func (e *Election) TailLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > maxLogLines {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return lines, nil
}

func (e *Election) nextVoterAuthNode() *node.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.voterNodes[e.nextVoterNode%len(e.voterNodes)]
	e.nextVoterNode++
	return n
}

func (e *Election) nextBallotComputerNode() *node.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.ballotNodes[e.nextBallotNode%len(e.ballotNodes)]
	e.nextBallotNode++
	return n
}
