// Package consensus implements a hash-majority consensus round: tip-hash
// agreement partitions the node set into cohorts, the majority cohort
// tallies and commits transactions, and every cohort node ends the round
// on an identical tip hash.
package consensus

import (
	"log"
	"sort"

	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
)

// Round drives one ledger's consensus rounds over a Network of nodes.
type Round struct {
	kind                ledger.LedgerKind
	network             node.Network
	minimumAgreementPct float64
}

// NewRound creates a Round for one ledger kind.
func NewRound(kind ledger.LedgerKind, network node.Network, minimumAgreementPct float64) *Round {
	return &Round{kind: kind, network: network, minimumAgreementPct: minimumAgreementPct}
}

// Report summarizes the outcome of one consensus tick, for the driver's
// observability surface.
type Report struct {
	CohortTipHash string
	CohortSize    int
	Cohort        []string
	Outside       []string
	Committed     map[string]*ledger.Block // node id -> block it committed, nil if none approved
}

// Tick runs one consensus round: advertise tip hashes, partition into a
// majority cohort, merge cohort pools, and finalize each cohort node's
// round. Nodes outside the majority cohort neither merge nor finalize —
// they simply wait for a later round.
func (r *Round) Tick(timestamp int64) (*Report, error) {
	peers := r.network.Peers(r.kind)
	if len(peers) == 0 {
		return &Report{Committed: map[string]*ledger.Block{}}, nil
	}

	byHash := make(map[string][]string)
	for _, id := range peers {
		hash := r.network.TipHash(id)
		byHash[hash] = append(byHash[hash], id)
	}

	majorityHash, cohort := pickMajorityCohort(byHash)

	outside := make([]string, 0, len(peers)-len(cohort))
	cohortSet := make(map[string]bool, len(cohort))
	for _, id := range cohort {
		cohortSet[id] = true
	}
	for _, id := range peers {
		if !cohortSet[id] {
			outside = append(outside, id)
		}
	}

	// Gather every cohort member's pool once, then hand the full set to
	// every other cohort member — this is the round's gossip exchange,
	// modeled as direct collaborator calls rather than network I/O.
	var allCohortTxs []*ledger.Transaction
	for _, id := range cohort {
		allCohortTxs = append(allCohortTxs, r.network.Pool(id)...)
	}

	for _, id := range cohort {
		r.network.Merge(id, allCohortTxs)
	}

	committed := make(map[string]*ledger.Block, len(cohort))
	for _, id := range cohort {
		block, err := r.network.Finalize(id, len(cohort), r.minimumAgreementPct, timestamp)
		if err != nil {
			log.Printf("[consensus] node %s: finalize round: %v", id, err)
			continue
		}
		committed[id] = block
	}

	return &Report{
		CohortTipHash: majorityHash,
		CohortSize:    len(cohort),
		Cohort:        cohort,
		Outside:       outside,
		Committed:     committed,
	}, nil
}

// pickMajorityCohort returns the hash and member set of the largest
// partition, breaking ties lexicographically on the hash itself.
func pickMajorityCohort(byHash map[string][]string) (string, []string) {
	var hashes []string
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	best := ""
	var bestMembers []string
	for _, h := range hashes {
		members := byHash[h]
		if len(members) > len(bestMembers) {
			best = h
			bestMembers = members
		}
	}
	sort.Strings(bestMembers)
	return best, bestMembers
}
