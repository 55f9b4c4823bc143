package ledger

import "strings"

// Voter is an immutable roll entry. Issuance state (how many claim
// tickets remain) lives in ledger state, never on the Voter value itself.
type Voter struct {
	ID              string `json:"id"`
	Name            string `json:"name"` // normalized: trimmed, lowercased
	NumClaimTickets int    `json:"num_claim_tickets"`
}

// NewVoter normalizes name and returns a Voter with numClaimTickets as
// given. Defaulting a missing roll entry's ticket count is the caller's
// job (see roll.Load) — zero is a valid, distinct count here, not a
// signal to substitute a default.
func NewVoter(id, name string, numClaimTickets int) Voter {
	return Voter{
		ID:              id,
		Name:            strings.ToLower(strings.TrimSpace(name)),
		NumClaimTickets: numClaimTickets,
	}
}
