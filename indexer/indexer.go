// Package indexer maintains secondary indexes over committed transactions
// so a driver can answer "does this voter have a ticket history" or
// "which transactions touched this ballot position" without replaying
// full chain state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/votechain/events"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/storage"
)

const (
	prefixVoterTickets    = "idx:voter:tickets:"
	prefixPositionBallots = "idx:position:ballots:"
)

// Indexer subscribes to ledger events and updates secondary lookup
// tables keyed in a storage.DB.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventTicketIssued, idx.onTicketIssued)
	emitter.Subscribe(events.EventBallotCast, idx.onBallotCast)
	return idx
}

// TicketHistory returns the transaction ids of every ticket issued to
// voterID, in commit order.
func (idx *Indexer) TicketHistory(voterID string) ([]string, error) {
	return idx.getList(prefixVoterTickets + voterID)
}

// BallotsForPosition returns the transaction ids of every ballot cast
// that touched position, in commit order.
func (idx *Indexer) BallotsForPosition(position string) ([]string, error) {
	return idx.getList(prefixPositionBallots + position)
}

func (idx *Indexer) onTicketIssued(ev events.Event) {
	voterID, _ := ev.Data["voter_id"].(string)
	if voterID == "" || ev.TxID == "" {
		return
	}
	if err := idx.addToList(prefixVoterTickets+voterID, ev.TxID); err != nil {
		log.Printf("[indexer] ticket index write failed (voter=%s tx=%s): %v", voterID, ev.TxID, err)
	}
}

func (idx *Indexer) onBallotCast(ev events.Event) {
	if ev.TxID == "" {
		return
	}
	positions, _ := ev.Data["positions"].([]string)
	for _, position := range positions {
		if err := idx.addToList(prefixPositionBallots+position, ev.TxID); err != nil {
			log.Printf("[indexer] ballot index write failed (position=%s tx=%s): %v", position, ev.TxID, err)
		}
	}
}

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, err := idx.getList(key)
	if err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
