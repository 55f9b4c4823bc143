package txexec

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/votechain/ledger"
)

// Executor applies an ordered transaction list to one ledger's state
// snapshot, using the global handler registry.
type Executor struct {
	kind     ledger.LedgerKind
	template *ledger.BallotTemplate // nil for the voter ledger
}

// NewVoterExecutor creates an Executor for the voter ledger.
func NewVoterExecutor() *Executor {
	return &Executor{kind: ledger.KindVoterLedger}
}

// NewBallotExecutor creates an Executor for the ballot ledger, validating
// selections against template.
func NewBallotExecutor(template *ledger.BallotTemplate) *Executor {
	return &Executor{kind: ledger.KindBallotLedger, template: template}
}

// Result reports, for a single Execute call, which transactions were
// applied and why any were rejected mid-application (e.g. two
// BallotCasts racing on the same ticket within one block).
type Result struct {
	Applied  []*ledger.Transaction
	Rejected map[string]error // tx id -> reason
	State    json.RawMessage
}

// Execute applies txs (already in canonical order) to prevState and
// returns the resulting snapshot plus a per-transaction outcome. It never
// aborts outright: a transaction that fails to apply (e.g. a double-spent
// ticket) is recorded as rejected and excluded from the committed set.
func (e *Executor) Execute(prevState json.RawMessage, txs []*ledger.Transaction) (*Result, error) {
	ctx, err := e.newContext(prevState)
	if err != nil {
		return nil, err
	}

	res := &Result{Rejected: make(map[string]error)}
	for _, tx := range txs {
		if err := globalRegistry.Execute(ctx, tx); err != nil {
			res.Rejected[tx.ID()] = err
			continue
		}
		res.Applied = append(res.Applied, tx)
	}

	state, err := e.marshalState(ctx)
	if err != nil {
		return nil, err
	}
	res.State = state
	return res, nil
}

// Transition adapts Execute to ledger.StateTransition's signature, for
// use by Chain.Validate. A transition requiring zero rejections is
// correct there: a previously-committed block must apply cleanly, since
// it was only ever assembled from transactions that already cleared the
// approval and conflict checks at commit time.
func (e *Executor) Transition(prevState json.RawMessage, txs []*ledger.Transaction) (json.RawMessage, error) {
	res, err := e.Execute(prevState, txs)
	if err != nil {
		return nil, err
	}
	if len(res.Rejected) > 0 {
		for id, rejErr := range res.Rejected {
			return nil, fmt.Errorf("tx %s unexpectedly rejected during replay: %w", id, rejErr)
		}
	}
	return res.State, nil
}

func (e *Executor) newContext(prevState json.RawMessage) (*Context, error) {
	switch e.kind {
	case ledger.KindVoterLedger:
		var vs ledger.VoterState
		if len(prevState) > 0 {
			if err := json.Unmarshal(prevState, &vs); err != nil {
				return nil, fmt.Errorf("decode voter state: %w", err)
			}
		}
		if vs.Remaining == nil {
			vs.Remaining = make(map[string]int)
		}
		return &Context{VoterState: &vs}, nil
	case ledger.KindBallotLedger:
		var bs ledger.BallotState
		if len(prevState) > 0 {
			if err := json.Unmarshal(prevState, &bs); err != nil {
				return nil, fmt.Errorf("decode ballot state: %w", err)
			}
		}
		if bs.Tally == nil {
			bs.Tally = make(map[string]map[string]int)
		}
		if bs.Consumed == nil {
			bs.Consumed = make(map[string]bool)
		}
		return &Context{BallotState: &bs, Template: e.template}, nil
	default:
		return nil, fmt.Errorf("txexec: unknown ledger kind %q", e.kind)
	}
}

func (e *Executor) marshalState(ctx *Context) (json.RawMessage, error) {
	if ctx.VoterState != nil {
		return json.Marshal(ctx.VoterState)
	}
	return json.Marshal(ctx.BallotState)
}
