package ledger

// LedgerKind distinguishes the two replicated ledgers that share the same
// crypto, transaction, chain and consensus machinery.
type LedgerKind string

const (
	KindVoterLedger  LedgerKind = "voter"
	KindBallotLedger LedgerKind = "ballot"
)

// VoterState is the voter-ledger's snapshot: voter_id -> remaining claim
// tickets.
type VoterState struct {
	Remaining map[string]int `json:"remaining_tickets"`
}

// NewVoterState builds the genesis voter-ledger snapshot from the roll.
func NewVoterState(roll []Voter) *VoterState {
	s := &VoterState{Remaining: make(map[string]int, len(roll))}
	for _, v := range roll {
		s.Remaining[v.ID] = v.NumClaimTickets
	}
	return s
}

// Clone returns a deep copy, used when a node needs to apply a candidate
// block without mutating its committed tip state.
func (s *VoterState) Clone() *VoterState {
	cp := &VoterState{Remaining: make(map[string]int, len(s.Remaining))}
	for k, v := range s.Remaining {
		cp.Remaining[k] = v
	}
	return cp
}

// BallotState is the ballot-ledger's snapshot: the running tally per
// position/candidate plus the set of consumed ticket ids (so "ticket
// already consumed" is checkable against chain state alone).
type BallotState struct {
	Tally    map[string]map[string]int `json:"tally"`
	Consumed map[string]bool           `json:"consumed_tickets"`
}

// NewBallotState builds the genesis ballot-ledger snapshot: zero tallies
// for every candidate named in the template, no consumed tickets.
func NewBallotState(template *BallotTemplate) *BallotState {
	s := &BallotState{Tally: make(map[string]map[string]int), Consumed: make(map[string]bool)}
	for _, item := range template.Items() {
		counts := make(map[string]int, len(item.Choices))
		for _, choice := range item.Choices {
			counts[choice] = 0
		}
		s.Tally[item.Position] = counts
	}
	return s
}

// Clone returns a deep copy.
func (s *BallotState) Clone() *BallotState {
	cp := &BallotState{
		Tally:    make(map[string]map[string]int, len(s.Tally)),
		Consumed: make(map[string]bool, len(s.Consumed)),
	}
	for pos, counts := range s.Tally {
		cp.Tally[pos] = make(map[string]int, len(counts))
		for candidate, n := range counts {
			cp.Tally[pos][candidate] = n
		}
	}
	for id, v := range s.Consumed {
		cp.Consumed[id] = v
	}
	return cp
}

// AllTicketsExhausted reports whether every voter on state has zero
// remaining claim tickets — a chain-state-derived election-end predicate,
// rather than a separately tracked counter.
func (s *VoterState) AllTicketsExhausted() bool {
	for _, remaining := range s.Remaining {
		if remaining > 0 {
			return false
		}
	}
	return true
}
