// Package ballotcast implements the ballot ledger's BallotCast
// state-transition rule: verify the claim ticket, reject reuse, validate
// the selections against the ballot template, then tally.
package ballotcast

import (
	"fmt"

	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/txexec"
)

func init() {
	txexec.Register(ledger.KindBallotCast, handle)
}

func handle(ctx *txexec.Context, tx *ledger.Transaction) error {
	if ctx.BallotState == nil || ctx.Template == nil {
		return fmt.Errorf("ballotcast: no ballot state or template in context")
	}
	payload, err := tx.BallotCastPayload()
	if err != nil {
		return fmt.Errorf("decode ballot cast payload: %w", err)
	}

	if err := payload.Ticket.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidSignature, err)
	}

	ticketID := payload.Ticket.ID()
	if ctx.BallotState.Consumed[ticketID] {
		return fmt.Errorf("%w: %s", ledger.ErrTicketAlreadyConsumed, ticketID)
	}

	if err := payload.Selections.Validate(ctx.Template); err != nil {
		return err
	}

	ctx.BallotState.Consumed[ticketID] = true
	for position, indices := range payload.Selections {
		item, ok := ctx.Template.Item(position)
		if !ok {
			return fmt.Errorf("%w: unknown position %q", ledger.ErrMalformedSelection, position)
		}
		tally, ok := ctx.BallotState.Tally[position]
		if !ok {
			tally = make(map[string]int)
			ctx.BallotState.Tally[position] = tally
		}
		for _, idx := range indices {
			choice := item.Choices[idx]
			tally[choice]++
		}
	}
	return nil
}
