package wallet

import (
	"github.com/tolelom/votechain/crypto"
	"github.com/tolelom/votechain/ledger"
)

// Wallet holds the key pair a single node (an authentication booth or a
// voting computer) uses as its identity and issuer signature. It builds
// the two domain transaction kinds — ticket issuance and ballot casts —
// rather than asset transfers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key, used as both PKI
// fingerprint input and issuer_pubkey on transactions this wallet builds.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of
// SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// Public returns the raw public key, e.g. for PKI directory registration.
func (w *Wallet) Public() crypto.PublicKey {
	return w.pub
}

// IssueTicket builds and self-signs a ballot claim ticket for voterID,
// authenticated by this wallet's key (the authentication booth's
// identity).
func (w *Wallet) IssueTicket(voterID, nonce string) ledger.BallotClaimTicket {
	return ledger.NewTicket(voterID, nonce, w.priv)
}

// NewAuthTicketTx builds and signs an AuthTicketIssued transaction
// carrying ticket, with this wallet as the transaction's issuer.
func (w *Wallet) NewAuthTicketTx(voterID string, ticket ledger.BallotClaimTicket) (*ledger.Transaction, error) {
	tx, err := ledger.NewAuthTicketTx(voterID, ticket, w.pub)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// NewBallotCastTx builds and signs a BallotCast transaction, with this
// wallet (the voting computer) as the transaction's issuer.
func (w *Wallet) NewBallotCastTx(ticket ledger.BallotClaimTicket, selections ledger.BallotSelection) (*ledger.Transaction, error) {
	tx, err := ledger.NewBallotCastTx(ticket, selections, w.pub)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}
