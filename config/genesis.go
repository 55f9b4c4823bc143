package config

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/votechain/ledger"
)

// CreateVoterGenesis builds the voter ledger's block #0: remaining claim
// tickets seeded from roll, no transactions.
func CreateVoterGenesis(roll []ledger.Voter, timestamp int64) (*ledger.Block, error) {
	state := ledger.NewVoterState(roll)
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal voter genesis state: %w", err)
	}
	return ledger.NewBlock(0, ledger.GenesisHash, nil, raw, timestamp), nil
}

// CreateBallotGenesis builds the ballot ledger's block #0: zero tallies for
// every candidate in template, no consumed tickets, no transactions.
func CreateBallotGenesis(template *ledger.BallotTemplate, timestamp int64) (*ledger.Block, error) {
	state := ledger.NewBallotState(template)
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal ballot genesis state: %w", err)
	}
	return ledger.NewBlock(0, ledger.GenesisHash, nil, raw, timestamp), nil
}
