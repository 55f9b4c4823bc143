package ledger

import (
	"encoding/json"

	"github.com/tolelom/votechain/crypto"
)

// BallotClaimTicket attests that VoterID has been authorized to cast one
// ballot. It is single-use: the ballot ledger's state transition rejects
// any BallotCast whose ticket was already consumed on that chain.
type BallotClaimTicket struct {
	VoterID         string `json:"voter_id"`
	Nonce           string `json:"nonce"`
	IssuerPubKey    string `json:"issuer_pubkey"` // hex-encoded
	IssuerSignature string `json:"issuer_signature"`
}

// ticketSigningBody is the canonical, stable-field-order encoding of the parts
// of a ticket that the issuer signs.
type ticketSigningBody struct {
	VoterID      string `json:"voter_id"`
	Nonce        string `json:"nonce"`
	IssuerPubKey string `json:"issuer_pubkey"`
}

// ID returns a deterministic identifier for the ticket, used as the
// "ticket already consumed" lookup key on the ballot ledger.
func (t BallotClaimTicket) ID() string {
	return crypto.Hash(t.canonicalBytes())
}

func (t BallotClaimTicket) canonicalBytes() []byte {
	body := ticketSigningBody{VoterID: t.VoterID, Nonce: t.Nonce, IssuerPubKey: t.IssuerPubKey}
	data, err := json.Marshal(body)
	if err != nil {
		return nil
	}
	return data
}

// NewTicket creates and signs a ballot claim ticket for voterID.
func NewTicket(voterID, nonce string, issuerPriv crypto.PrivateKey) BallotClaimTicket {
	pub := issuerPriv.Public()
	t := BallotClaimTicket{VoterID: voterID, Nonce: nonce, IssuerPubKey: pub.Hex()}
	t.IssuerSignature = crypto.Sign(issuerPriv, t.canonicalBytes())
	return t
}

// Verify checks the ticket's issuer signature against its own embedded
// issuer public key. Callers are additionally responsible for checking
// that IssuerPubKey belongs to a recognized authentication peer — that
// is a PKI-membership question, not a signature-validity one.
func (t BallotClaimTicket) Verify() error {
	pub, err := crypto.PubKeyFromHex(t.IssuerPubKey)
	if err != nil {
		return err
	}
	return crypto.Verify(pub, t.canonicalBytes(), t.IssuerSignature)
}
