// Package node implements a ledger replica: a node owns exactly one
// chain, one open transaction pool and a read-only view of its ledger's
// PKI directory, and exposes the propose/gossip-sign/finalize contract
// that the consensus round drives.
package node

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/tolelom/votechain/crypto"
	"github.com/tolelom/votechain/events"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/pki"
	"github.com/tolelom/votechain/txexec"
)

// TxState is the per-transaction lifecycle state. It is recorded for
// observability only; the pool and chain are the source of truth for
// what is actually committed.
type TxState int

const (
	StateNew TxState = iota
	StateProposed
	StateGossiping
	StateVerified
	StateCommitted
	StateRejected
	StateDropped
)

func (s TxState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateProposed:
		return "PROPOSED"
	case StateGossiping:
		return "GOSSIPING"
	case StateVerified:
		return "VERIFIED"
	case StateCommitted:
		return "COMMITTED"
	case StateRejected:
		return "REJECTED"
	case StateDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// Node is one replica of a single ledger (voter or ballot, never both).
// Its chain and open pool are exclusively owned; peers reach it only
// through Submit/CosignRequest, never by touching its fields directly.
type Node struct {
	mu sync.RWMutex

	ID     string
	priv   crypto.PrivateKey
	pub    crypto.PublicKey
	kind   ledger.LedgerKind
	policy Policy

	chain    *ledger.Chain
	pool     *OpenPool
	pki      *pki.Directory
	template *ledger.BallotTemplate // non-nil only for ballot-ledger nodes
	executor *txexec.Executor

	voterState  *ledger.VoterState  // non-nil only for voter-ledger nodes
	ballotState *ledger.BallotState // non-nil only for ballot-ledger nodes

	emitter *events.Emitter

	lastRoundApprovals        []string
	lastRoundRejections       []string
	lastRoundRejectionReasons map[string]ledger.RejectionReason
}

// NewVoterNode creates a node replicating the voter-authentication ledger.
// emitter may be nil, in which case the node reports nothing.
func NewVoterNode(id string, priv crypto.PrivateKey, chain *ledger.Chain, directory *pki.Directory, policy Policy, emitter *events.Emitter) *Node {
	return &Node{
		ID:       id,
		priv:     priv,
		pub:      priv.Public(),
		kind:     ledger.KindVoterLedger,
		policy:   policy,
		chain:    chain,
		pool:     NewOpenPool(),
		pki:      directory,
		executor: txexec.NewVoterExecutor(),
		emitter:  emitter,
	}
}

// NewBallotNode creates a node replicating the ballot ledger, validating
// selections against template. emitter may be nil.
func NewBallotNode(id string, priv crypto.PrivateKey, chain *ledger.Chain, directory *pki.Directory, policy Policy, template *ledger.BallotTemplate, emitter *events.Emitter) *Node {
	return &Node{
		ID:       id,
		priv:     priv,
		pub:      priv.Public(),
		kind:     ledger.KindBallotLedger,
		policy:   policy,
		chain:    chain,
		pool:     NewOpenPool(),
		pki:      directory,
		template: template,
		emitter:  emitter,
		executor: txexec.NewBallotExecutor(template),
	}
}

// PublicKey returns the node's identity public key.
func (n *Node) PublicKey() crypto.PublicKey { return n.pub }

// IssueTicket self-signs a ballot claim ticket for voterID, authenticated
// by this node's own key. Only meaningful on a voter-ledger (authentication
// booth) node; callers combine the result with ledger.NewAuthTicketTx and
// Submit to place the issuance on-chain.
func (n *Node) IssueTicket(voterID, nonce string) ledger.BallotClaimTicket {
	return ledger.NewTicket(voterID, nonce, n.priv)
}

// IsAdversary reports whether this node runs an adversarial policy.
func (n *Node) IsAdversary() bool { return n.policy.IsAdversary() }

// PolicyName reports the running policy's name, for reporting.
func (n *Node) PolicyName() string { return n.policy.Name() }

// Chain exposes the node's chain for read-only inspection (tip hash,
// height, block lookup) by the consensus round and RPC layer.
func (n *Node) Chain() *ledger.Chain { return n.chain }

// Pool exposes the node's open pool for read-only inspection.
func (n *Node) Pool() *OpenPool { return n.pool }

// LoadGenesisState seeds the node's cached state view from its chain's
// genesis block. Call once after the chain's Genesis block has been
// committed.
func (n *Node) LoadGenesisState() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	tip := n.chain.CurrentTip()
	if tip == nil {
		return fmt.Errorf("node %s: chain has no genesis block yet", n.ID)
	}
	return n.refreshStateLocked(tip.State)
}

func (n *Node) refreshStateLocked(raw json.RawMessage) error {
	switch n.kind {
	case ledger.KindVoterLedger:
		var vs ledger.VoterState
		if err := json.Unmarshal(raw, &vs); err != nil {
			return fmt.Errorf("decode voter state: %w", err)
		}
		if vs.Remaining == nil {
			vs.Remaining = make(map[string]int)
		}
		n.voterState = &vs
	case ledger.KindBallotLedger:
		var bs ledger.BallotState
		if err := json.Unmarshal(raw, &bs); err != nil {
			return fmt.Errorf("decode ballot state: %w", err)
		}
		if bs.Tally == nil {
			bs.Tally = make(map[string]map[string]int)
		}
		if bs.Consumed == nil {
			bs.Consumed = make(map[string]bool)
		}
		n.ballotState = &bs
	}
	return nil
}

// voterRemaining reports a voter's remaining ticket count and whether the
// voter is known to current state. Used by Policy implementations.
func (n *Node) voterRemaining(voterID string) (int, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.voterState == nil {
		return 0, false
	}
	remaining, ok := n.voterState.Remaining[voterID]
	return remaining, ok
}

// ticketConsumed reports whether a ballot claim ticket has already been
// spent on this node's chain. Used by Policy implementations.
func (n *Node) ticketConsumed(ticketID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ballotState == nil {
		return false
	}
	return n.ballotState.Consumed[ticketID]
}

// Submit is the node's local entry point: it validates tx against its
// own policy and current state, signs it and places it in its open pool
// on success, or records a rejection reason on failure. It never
// gossips on failure.
func (n *Node) Submit(tx *ledger.Transaction) error {
	if err := n.validate(tx); err != nil {
		n.recordRejection(tx.ID(), err)
		return err
	}
	tx.Sign(n.priv)
	n.pool.Add(tx)
	return nil
}

// CosignRequest is the peer-side half of gossip cosigning: a peer asked
// to cosign tx runs the same validation rules (through its own Policy)
// and, on success, returns a transaction bearing its signature; on
// failure it records and returns the rejection.
func (n *Node) CosignRequest(tx *ledger.Transaction) (*ledger.Transaction, error) {
	if err := n.validate(tx); err != nil {
		n.recordRejection(tx.ID(), err)
		return nil, err
	}
	signed := tx.Clone()
	signed.Sign(n.priv)
	n.pool.Add(signed)
	return signed, nil
}

func (n *Node) validate(tx *ledger.Transaction) error {
	switch tx.Kind {
	case ledger.KindAuthTicketIssued:
		if n.kind != ledger.KindVoterLedger {
			return fmt.Errorf("node %s: auth ticket tx submitted to non-voter ledger", n.ID)
		}
		payload, err := tx.AuthTicketPayload()
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidSignature, err)
		}
		return n.policy.ValidateAuthTicket(n, payload)
	case ledger.KindBallotCast:
		if n.kind != ledger.KindBallotLedger {
			return fmt.Errorf("node %s: ballot cast tx submitted to non-ballot ledger", n.ID)
		}
		payload, err := tx.BallotCastPayload()
		if err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidSignature, err)
		}
		return n.policy.ValidateBallotCast(n, payload)
	default:
		return fmt.Errorf("node %s: unknown transaction kind %q", n.ID, tx.Kind)
	}
}

func (n *Node) recordRejection(txID string, err error) {
	reason := ledger.ReasonForErr(err)
	n.mu.Lock()
	if n.lastRoundRejectionReasons == nil {
		n.lastRoundRejectionReasons = make(map[string]ledger.RejectionReason)
	}
	n.lastRoundRejectionReasons[txID] = reason
	n.mu.Unlock()

	if n.emitter != nil {
		n.emitter.Emit(events.Event{
			Type: events.EventTxRejected,
			TxID: txID,
			Data: map[string]any{"reason": string(reason), "node": n.ID},
		})
	}
}

// emitTxApplied reports a committed transaction's kind-specific detail,
// feeding secondary indexes such as per-voter ticket history.
func (n *Node) emitTxApplied(tx *ledger.Transaction, height int64) {
	switch tx.Kind {
	case ledger.KindAuthTicketIssued:
		payload, err := tx.AuthTicketPayload()
		if err != nil {
			return
		}
		n.emitter.Emit(events.Event{
			Type:        events.EventTicketIssued,
			TxID:        tx.ID(),
			BlockHeight: height,
			Data:        map[string]any{"voter_id": payload.VoterID, "node": n.ID},
		})
	case ledger.KindBallotCast:
		payload, err := tx.BallotCastPayload()
		if err != nil {
			return
		}
		positions := make([]string, 0, len(payload.Selections))
		for position := range payload.Selections {
			positions = append(positions, position)
		}
		n.emitter.Emit(events.Event{
			Type:        events.EventBallotCast,
			TxID:        tx.ID(),
			BlockHeight: height,
			Data:        map[string]any{"ticket_id": payload.Ticket.ID(), "positions": positions, "node": n.ID},
		})
	}
}

// MergeCohortPool folds a cohort peer's open-pool snapshot into this
// node's own pool, accumulating signatures on shared transactions. This
// is the only way another node's pool contents reach n — never by
// direct field access.
func (n *Node) MergeCohortPool(peerTxs []*ledger.Transaction) {
	for _, tx := range peerTxs {
		n.pool.Add(tx)
	}
}

// BeginConsensusRound returns this node's open-pool snapshot, for the
// consensus round orchestrator to distribute to cohort peers via
// MergeCohortPool. It does not itself decide cohort membership — that is
// a property of agreement across many nodes' tip hashes, computed by the
// consensus package.
func (n *Node) BeginConsensusRound() []*ledger.Transaction {
	return n.pool.All()
}

// FinalizeConsensusRound tallies every pooled transaction with at least
// the required number of distinct valid signatures for a cohort of
// cohortSize, orders approved transactions by canonical hash ascending,
// applies them to the tip state and commits the resulting block. It
// returns the new block, or nil if nothing was approved this round.
func (n *Node) FinalizeConsensusRound(cohortSize int, minimumAgreementPct float64, timestamp int64) (*ledger.Block, error) {
	all := n.pool.All()

	var approved []*ledger.Transaction
	rejectedInsufficient := make(map[string]bool)
	for _, tx := range all {
		if tx.IsVerified(cohortSize, minimumAgreementPct) {
			approved = append(approved, tx)
		} else {
			rejectedInsufficient[tx.ID()] = true
		}
	}

	sort.Slice(approved, func(i, j int) bool { return approved[i].ID() < approved[j].ID() })

	n.mu.RLock()
	tip := n.chain.CurrentTip()
	n.mu.RUnlock()
	if tip == nil {
		return nil, fmt.Errorf("node %s: chain has no genesis block", n.ID)
	}

	result, err := n.executor.Execute(tip.State, approved)
	if err != nil {
		return nil, fmt.Errorf("execute round: %w", err)
	}

	n.mu.Lock()
	n.lastRoundApprovals = txIDs(result.Applied)
	rejections := make([]string, 0, len(result.Rejected)+len(rejectedInsufficient))
	reasons := make(map[string]ledger.RejectionReason, len(result.Rejected)+len(rejectedInsufficient))
	for id := range rejectedInsufficient {
		rejections = append(rejections, id)
		reasons[id] = ledger.ReasonInsufficientSignatures
	}
	for id, rejErr := range result.Rejected {
		rejections = append(rejections, id)
		reasons[id] = ledger.ReasonForErr(rejErr)
	}
	n.lastRoundRejections = rejections
	n.lastRoundRejectionReasons = reasons
	n.mu.Unlock()

	if len(result.Applied) == 0 {
		// Nothing to commit, but definitive rejections still leave the pool.
		var drop []string
		for id, rejErr := range result.Rejected {
			if !ledger.ReasonForErr(rejErr).Transient() {
				drop = append(drop, id)
			}
		}
		n.pool.Remove(drop)
		log.Printf("[consensus] node %s: no transactions approved this round", n.ID)
		return nil, nil
	}

	block := ledger.NewBlock(tip.Header.Height+1, tip.Hash, result.Applied, result.State, timestamp)
	if err := n.chain.Append(block); err != nil {
		return nil, fmt.Errorf("append block: %w", err)
	}

	n.mu.Lock()
	if err := n.refreshStateLocked(block.State); err != nil {
		n.mu.Unlock()
		return nil, fmt.Errorf("refresh state after commit: %w", err)
	}
	n.mu.Unlock()

	// Drop everything this round disposed of: committed transactions and
	// definitively-rejected ones. Transient (insufficient-signature)
	// rejections remain in the pool for a future round.
	drop := txIDs(result.Applied)
	for id, rejErr := range result.Rejected {
		if !ledger.ReasonForErr(rejErr).Transient() {
			drop = append(drop, id)
		}
	}
	n.pool.Remove(drop)

	log.Printf("[consensus] node %s: committed block %d (%d txs, hash %s)",
		n.ID, block.Header.Height, len(result.Applied), block.Hash)

	if n.emitter != nil {
		for _, tx := range result.Applied {
			n.emitTxApplied(tx, block.Header.Height)
		}
		n.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"hash": block.Hash, "txs": len(result.Applied), "node": n.ID},
		})
	}

	return block, nil
}

// LastRoundApprovals returns the transaction ids committed in the most
// recent consensus round this node participated in.
func (n *Node) LastRoundApprovals() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.lastRoundApprovals...)
}

// LastRoundRejections returns the transaction ids rejected in the most
// recent consensus round, with their reasons.
func (n *Node) LastRoundRejections() map[string]ledger.RejectionReason {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]ledger.RejectionReason, len(n.lastRoundRejectionReasons))
	for id, reason := range n.lastRoundRejectionReasons {
		out[id] = reason
	}
	return out
}

func txIDs(txs []*ledger.Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID()
	}
	return ids
}
