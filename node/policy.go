package node

import (
	"fmt"

	"github.com/tolelom/votechain/crypto"
	"github.com/tolelom/votechain/ledger"
)

// Policy implements the ledger-specific validation rules a node applies
// both to its own submissions and to peer cosign requests. The consensus
// round is oblivious to which Policy a node runs — Policy is the single
// seam where adversary behavior diverges from honest behavior.
type Policy interface {
	// Name identifies the policy for reporting/logging.
	Name() string
	// IsAdversary reports whether this policy deviates from the protocol.
	IsAdversary() bool
	// ValidateAuthTicket checks an AuthTicketIssued payload against voter
	// ledger state.
	ValidateAuthTicket(n *Node, payload ledger.AuthTicketPayload) error
	// ValidateBallotCast checks a BallotCast payload against ballot ledger
	// state and template.
	ValidateBallotCast(n *Node, payload ledger.BallotCastPayload) error
}

// Honest implements the protocol's real validation rules, shared by every
// adversary variant for the half of the contract it does not violate.
type Honest struct{}

// NewHonestPolicy returns the honest, protocol-compliant policy.
func NewHonestPolicy() Honest { return Honest{} }

func (Honest) Name() string        { return "honest" }
func (Honest) IsAdversary() bool    { return false }

// ValidateAuthTicket enforces: voter known to current voter-ledger state,
// remaining tickets > 0, issuer signature valid and the issuer recognized
// in the voter-ledger PKI.
func (Honest) ValidateAuthTicket(n *Node, payload ledger.AuthTicketPayload) error {
	if err := verifyTicketIssuer(n, payload.Ticket); err != nil {
		return err
	}
	remaining, known := n.voterRemaining(payload.VoterID)
	if !known {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownVoter, payload.VoterID)
	}
	if remaining <= 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotEnoughTickets, payload.VoterID)
	}
	return nil
}

// ValidateBallotCast enforces: ticket signature chains to a known
// auth-booth peer, ticket not already consumed on this chain, selections
// well-formed against the ballot template.
func (Honest) ValidateBallotCast(n *Node, payload ledger.BallotCastPayload) error {
	if err := verifyTicketIssuer(n, payload.Ticket); err != nil {
		return err
	}
	if n.ticketConsumed(payload.Ticket.ID()) {
		return fmt.Errorf("%w: %s", ledger.ErrTicketAlreadyConsumed, payload.Ticket.ID())
	}
	if n.template == nil {
		return fmt.Errorf("node has no ballot template")
	}
	if err := payload.Selections.Validate(n.template); err != nil {
		return err
	}
	return nil
}

func verifyTicketIssuer(n *Node, ticket ledger.BallotClaimTicket) error {
	if err := ticket.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidSignature, err)
	}
	pub, err := crypto.PubKeyFromHex(ticket.IssuerPubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidSignature, err)
	}
	if _, ok := n.pki.Lookup(pub); !ok {
		return fmt.Errorf("%w: issuer %s not in directory", ledger.ErrInvalidSignature, ticket.IssuerPubKey)
	}
	return nil
}

// AuthBypass authenticates any voter id regardless of voter-roll
// membership or remaining-ticket balance, and issues tickets signed by
// its own key. It validates BallotCast payloads normally — it is a
// corrupt authentication booth, not a corrupt voting computer.
type AuthBypass struct{ Honest }

func NewAuthBypassPolicy() AuthBypass { return AuthBypass{} }

func (AuthBypass) Name() string     { return "auth_bypass" }
func (AuthBypass) IsAdversary() bool { return true }

func (AuthBypass) ValidateAuthTicket(n *Node, payload ledger.AuthTicketPayload) error {
	return nil
}

// UnrecognizedAuth issues auth tickets for voter ids absent from the
// roll, but otherwise respects the remaining-ticket and signature checks
// for voters it does recognize.
type UnrecognizedAuth struct{ Honest }

func NewUnrecognizedAuthPolicy() UnrecognizedAuth { return UnrecognizedAuth{} }

func (UnrecognizedAuth) Name() string     { return "unrecognized_auth" }
func (UnrecognizedAuth) IsAdversary() bool { return true }

func (UnrecognizedAuth) ValidateAuthTicket(n *Node, payload ledger.AuthTicketPayload) error {
	if err := verifyTicketIssuer(n, payload.Ticket); err != nil {
		return err
	}
	remaining, known := n.voterRemaining(payload.VoterID)
	if !known {
		return nil // the bypass: unknown voter ids are accepted anyway
	}
	if remaining <= 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotEnoughTickets, payload.VoterID)
	}
	return nil
}

// BallotForger accepts fabricated or reused claim tickets and arbitrary
// selections. It validates AuthTicketIssued payloads normally — it is a
// corrupt voting computer, not a corrupt authentication booth.
type BallotForger struct{ Honest }

func NewBallotForgerPolicy() BallotForger { return BallotForger{} }

func (BallotForger) Name() string     { return "ballot_forger" }
func (BallotForger) IsAdversary() bool { return true }

func (BallotForger) ValidateBallotCast(n *Node, payload ledger.BallotCastPayload) error {
	return nil
}
