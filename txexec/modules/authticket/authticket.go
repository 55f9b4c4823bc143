// Package authticket implements the voter ledger's AuthTicketIssued
// state-transition rule: decrement the voter's remaining claim tickets,
// rejecting if none remain.
package authticket

import (
	"fmt"

	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/txexec"
)

func init() {
	txexec.Register(ledger.KindAuthTicketIssued, handle)
}

func handle(ctx *txexec.Context, tx *ledger.Transaction) error {
	if ctx.VoterState == nil {
		return fmt.Errorf("authticket: no voter state in context")
	}
	payload, err := tx.AuthTicketPayload()
	if err != nil {
		return fmt.Errorf("decode auth ticket payload: %w", err)
	}
	remaining, ok := ctx.VoterState.Remaining[payload.VoterID]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownVoter, payload.VoterID)
	}
	if remaining <= 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotEnoughTickets, payload.VoterID)
	}
	ctx.VoterState.Remaining[payload.VoterID] = remaining - 1
	return nil
}
