package ledger

import (
	"fmt"
	"sort"
)

// BallotItem is a single contest on the ballot.
type BallotItem struct {
	Position    string   `json:"position"`
	Description string   `json:"description"`
	Choices     []string `json:"choices"`
	MaxChoices  int      `json:"max_choices"`
}

// BallotTemplate is the ordered collection of contests for an election.
// It is mutable only until Finalize is called; every voting-node operation
// that reads it afterward may assume it never changes again.
type BallotTemplate struct {
	Election  string
	items     []BallotItem
	byPos     map[string]BallotItem
	finalized bool
}

// NewBallotTemplate creates an empty, mutable template.
func NewBallotTemplate(election string) *BallotTemplate {
	return &BallotTemplate{Election: election, byPos: make(map[string]BallotItem)}
}

// AddItem appends a contest. It panics if called after Finalize, since
// that indicates a programming error in the setup code, not a runtime
// condition callers should need to handle.
func (t *BallotTemplate) AddItem(position, description string, choices []string, maxChoices int) {
	if t.finalized {
		panic("ledger: AddItem called on a finalized BallotTemplate")
	}
	item := BallotItem{
		Position:    position,
		Description: description,
		Choices:     append([]string(nil), choices...),
		MaxChoices:  maxChoices,
	}
	t.items = append(t.items, item)
	t.byPos[position] = item
}

// Finalize locks the template against further mutation.
func (t *BallotTemplate) Finalize() {
	t.finalized = true
}

// Finalized reports whether the template has been locked.
func (t *BallotTemplate) Finalized() bool {
	return t.finalized
}

// Items returns the ordered contests.
func (t *BallotTemplate) Items() []BallotItem {
	return append([]BallotItem(nil), t.items...)
}

// Item looks up a contest by position.
func (t *BallotTemplate) Item(position string) (BallotItem, bool) {
	item, ok := t.byPos[position]
	return item, ok
}

// BallotSelection maps a contest position to the chosen candidate indices.
type BallotSelection map[string][]int

// Validate checks that sel is well-formed against t: every position must
// exist on the template, every chosen index must be in range, indices
// within one position must be distinct, and the subset size must not
// exceed the position's max_choices.
func (sel BallotSelection) Validate(t *BallotTemplate) error {
	if !t.finalized {
		return fmt.Errorf("%w: ballot template not finalized", ErrMalformedSelection)
	}
	for position, indices := range sel {
		item, ok := t.Item(position)
		if !ok {
			return fmt.Errorf("%w: unknown position %q", ErrMalformedSelection, position)
		}
		if len(indices) > item.MaxChoices {
			return fmt.Errorf("%w: position %q allows at most %d choices, got %d",
				ErrMalformedSelection, position, item.MaxChoices, len(indices))
		}
		seen := make(map[int]bool, len(indices))
		for _, idx := range indices {
			if idx < 0 || idx >= len(item.Choices) {
				return fmt.Errorf("%w: position %q choice index %d out of range", ErrMalformedSelection, position, idx)
			}
			if seen[idx] {
				return fmt.Errorf("%w: position %q duplicate choice index %d", ErrMalformedSelection, position, idx)
			}
			seen[idx] = true
		}
	}
	return nil
}

// CanonicalPositions returns the selection's positions in sorted order,
// used wherever deterministic iteration is required (state application,
// hashing).
func (sel BallotSelection) CanonicalPositions() []string {
	positions := make([]string, 0, len(sel))
	for p := range sel {
		positions = append(positions, p)
	}
	sort.Strings(positions)
	return positions
}
