// Package roll loads the voter roll: a UTF-8 JSON file listing voter
// records, normalized into ledger.Voter values with monotonically
// assigned ids.
package roll

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tolelom/votechain/ledger"
)

var normalizer = cases.Lower(language.Und)

// record is the on-disk shape of a single roll entry. NumClaimTickets is
// a pointer so a present-but-zero value is distinguishable from an
// absent field: both decode to 0 as a plain int, but only the latter
// should fall back to defaultNumClaimTickets.
type record struct {
	Name            string `json:"name"`
	NumClaimTickets *int   `json:"num_claim_tickets"`
}

// defaultNumClaimTickets is assigned when a roll entry omits
// num_claim_tickets entirely.
const defaultNumClaimTickets = 1

// Load reads path as a JSON array of records and returns the voter roll,
// assigning ids "1", "2", ... in file order. Blank names are skipped.
func Load(path string) ([]ledger.Voter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voter roll: %w", err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse voter roll %s: %w", path, err)
	}

	roll := make([]ledger.Voter, 0, len(records))
	nextID := 1
	for _, rec := range records {
		name := normalizer.String(strings.TrimSpace(rec.Name))
		if name == "" {
			continue
		}
		numClaimTickets := defaultNumClaimTickets
		if rec.NumClaimTickets != nil {
			numClaimTickets = *rec.NumClaimTickets
		}
		roll = append(roll, ledger.NewVoter(fmt.Sprintf("%d", nextID), name, numClaimTickets))
		nextID++
	}
	return roll, nil
}

// Save writes roll back out in the same JSON shape Load accepts, useful
// for generating fixtures and the interactive driver's roster export.
func Save(path string, roll []ledger.Voter) error {
	records := make([]record, 0, len(roll))
	for _, v := range roll {
		n := v.NumClaimTickets
		records = append(records, record{Name: v.Name, NumClaimTickets: &n})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ByName returns every voter on roll whose normalized name equals name.
func ByName(roll []ledger.Voter, name string) []ledger.Voter {
	name = normalizer.String(strings.TrimSpace(name))
	var matches []ledger.Voter
	for _, v := range roll {
		if v.Name == name {
			matches = append(matches, v)
		}
	}
	return matches
}
