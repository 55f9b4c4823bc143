package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tolelom/votechain/crypto"
)

// TxKind identifies the variant carried by a Transaction.
type TxKind string

const (
	KindAuthTicketIssued TxKind = "auth_ticket_issued"
	KindBallotCast       TxKind = "ballot_cast"
)

// AuthTicketPayload is the body of a KindAuthTicketIssued transaction.
type AuthTicketPayload struct {
	VoterID string            `json:"voter_id"`
	Ticket  BallotClaimTicket `json:"ticket"`
}

// BallotCastPayload is the body of a KindBallotCast transaction.
type BallotCastPayload struct {
	Ticket     BallotClaimTicket `json:"ticket"`
	Selections BallotSelection   `json:"selections"`
}

// Transaction is a tagged, multi-signed record. Unlike a
// single-issuer-signed record, a Transaction accumulates signatures from
// peers during the gossip/cosign phase; IsVerified reports whether it has
// crossed the agreement threshold for a given cohort size.
type Transaction struct {
	Kind         TxKind          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    int64           `json:"timestamp"`
	IssuerPubKey string          `json:"issuer_pubkey"` // hex

	// Signatures maps a signer's hex-encoded public key to its signature
	// over Hash(). A clone carries a copy of this map so that accumulation
	// on one node's local copy is invisible to others until the next
	// gossip exchange or consensus tally.
	Signatures map[string]string `json:"signatures"`
}

// txSigningBody holds exactly the fields covered by Hash()/signatures.
type txSigningBody struct {
	Kind         TxKind          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    int64           `json:"timestamp"`
	IssuerPubKey string          `json:"issuer_pubkey"`
}

// NewAuthTicketTx creates an unsigned AuthTicketIssued transaction.
func NewAuthTicketTx(voterID string, ticket BallotClaimTicket, issuerPub crypto.PublicKey) (*Transaction, error) {
	return newTx(KindAuthTicketIssued, AuthTicketPayload{VoterID: voterID, Ticket: ticket}, issuerPub)
}

// NewBallotCastTx creates an unsigned BallotCast transaction.
func NewBallotCastTx(ticket BallotClaimTicket, sel BallotSelection, issuerPub crypto.PublicKey) (*Transaction, error) {
	return newTx(KindBallotCast, BallotCastPayload{Ticket: ticket, Selections: sel}, issuerPub)
}

func newTx(kind TxKind, payload any, issuerPub crypto.PublicKey) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		Kind:         kind,
		Payload:      raw,
		Timestamp:    time.Now().UnixNano(),
		IssuerPubKey: issuerPub.Hex(),
		Signatures:   make(map[string]string),
	}, nil
}

// Hash returns the deterministic, signature-independent hash that both
// identifies the transaction and is the message every signature covers.
func (tx *Transaction) Hash() string {
	body := txSigningBody{Kind: tx.Kind, Payload: tx.Payload, Timestamp: tx.Timestamp, IssuerPubKey: tx.IssuerPubKey}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// ID is an alias for Hash used wherever the transaction is addressed by
// identity rather than content (mempool keys, canonical ordering).
func (tx *Transaction) ID() string {
	return tx.Hash()
}

// AuthTicketPayload decodes the payload as an AuthTicketPayload. Callers
// must check tx.Kind first.
func (tx *Transaction) AuthTicketPayload() (AuthTicketPayload, error) {
	var p AuthTicketPayload
	err := json.Unmarshal(tx.Payload, &p)
	return p, err
}

// BallotCastPayload decodes the payload as a BallotCastPayload. Callers
// must check tx.Kind first.
func (tx *Transaction) BallotCastPayload() (BallotCastPayload, error) {
	var p BallotCastPayload
	err := json.Unmarshal(tx.Payload, &p)
	return p, err
}

// Clone returns a deep copy safe for an independent accumulation of
// signatures (gossip hands out clones, never the local pool entry).
func (tx *Transaction) Clone() *Transaction {
	cp := *tx
	cp.Signatures = make(map[string]string, len(tx.Signatures))
	for k, v := range tx.Signatures {
		cp.Signatures[k] = v
	}
	payload := make(json.RawMessage, len(tx.Payload))
	copy(payload, tx.Payload)
	cp.Payload = payload
	return &cp
}

// AddSignature verifies that sig is a valid signature over Hash() by
// pubkeyHex, and if so records it. It is idempotent: re-adding the same
// signer's signature is a no-op, not an error.
func (tx *Transaction) AddSignature(pubkeyHex, sigHex string) error {
	pub, err := crypto.PubKeyFromHex(pubkeyHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := crypto.Verify(pub, []byte(tx.Hash()), sigHex); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	tx.Signatures[pubkeyHex] = sigHex
	return nil
}

// Sign signs tx with priv and records the signature, returning the hex
// pubkey under which it was recorded.
func (tx *Transaction) Sign(priv crypto.PrivateKey) string {
	pub := priv.Public()
	sig := crypto.Sign(priv, []byte(tx.Hash()))
	tx.Signatures[pub.Hex()] = sig
	return pub.Hex()
}

// MergeSignatures folds another transaction's (same-identity) signature
// set into tx, validating each candidate signature before accepting it.
// Used when a node combines its cohort peers' open-pool copies of the
// same logical transaction during consensus tally.
func (tx *Transaction) MergeSignatures(other *Transaction) {
	if other == nil || other.Hash() != tx.Hash() {
		return
	}
	for pub, sig := range other.Signatures {
		_ = tx.AddSignature(pub, sig)
	}
}

// ValidSignatureCount returns the number of distinct public keys whose
// recorded signature verifies against Hash(). Forged entries injected
// into Signatures by a malicious peer do not count.
func (tx *Transaction) ValidSignatureCount() int {
	n := 0
	hash := []byte(tx.Hash())
	for pub, sig := range tx.Signatures {
		pk, err := crypto.PubKeyFromHex(pub)
		if err != nil {
			continue
		}
		if crypto.Verify(pk, hash, sig) == nil {
			n++
		}
	}
	return n
}

// IsVerified reports whether tx carries valid signatures from at least
// the ceil(minimumAgreementPct * peerCount) threshold of C2.
func (tx *Transaction) IsVerified(peerCount int, minimumAgreementPct float64) bool {
	return tx.ValidSignatureCount() >= RequiredSignatures(peerCount, minimumAgreementPct)
}

// RequiredSignatures returns ceil(minimumAgreementPct * peerCount), the
// number of distinct valid signatures a transaction needs to be
// considered verified for a cohort of the given size.
func RequiredSignatures(peerCount int, minimumAgreementPct float64) int {
	if peerCount <= 0 {
		return 0
	}
	return int(math.Ceil(minimumAgreementPct * float64(peerCount)))
}
