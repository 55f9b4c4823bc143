package transport

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/tolelom/votechain/ledger"
)

const dialTimeout = 5 * time.Second

// peerInfo is a remote replica's address and ledger membership, sourced
// from config.SeedPeer entries.
type peerInfo struct {
	addr string
	kind ledger.LedgerKind
}

// Client implements node.Network over TCP, standing in for
// node.LocalNetwork across process boundaries. Every method is one
// dial-send-receive-close round trip; Client holds no persistent
// connections.
type Client struct {
	peers     map[string]peerInfo
	tlsConfig *tls.Config // nil → plain TCP
}

// NewClient builds a Client over the given seed peers. Each entry's Kind
// must be "voter" or "ballot" to match ledger.LedgerKind.
func NewClient(seeds []SeedPeerAddr, tlsCfg *tls.Config) *Client {
	peers := make(map[string]peerInfo, len(seeds))
	for _, s := range seeds {
		peers[s.ID] = peerInfo{addr: s.Addr, kind: s.Kind}
	}
	return &Client{peers: peers, tlsConfig: tlsCfg}
}

// SeedPeerAddr is the transport-level view of a configured peer, decoupled
// from the config package to avoid an import cycle.
type SeedPeerAddr struct {
	ID   string
	Addr string
	Kind ledger.LedgerKind
}

func (c *Client) Peers(kind ledger.LedgerKind) []string {
	var ids []string
	for id, p := range c.peers {
		if p.kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

// has reports whether peerID is one of this Client's configured seed
// peers, letting a caller that mixes local and remote peers (MeshNetwork)
// decide which side to route a call to.
func (c *Client) has(peerID string) bool {
	_, ok := c.peers[peerID]
	return ok
}

func (c *Client) Cosign(peerID string, tx *ledger.Transaction) (*ledger.Transaction, error) {
	var cosigned ledger.Transaction
	if err := c.call(peerID, methodCosign, tx, &cosigned); err != nil {
		return nil, err
	}
	return &cosigned, nil
}

func (c *Client) Pool(peerID string) []*ledger.Transaction {
	var txs []*ledger.Transaction
	if err := c.call(peerID, methodPool, nil, &txs); err != nil {
		return nil
	}
	return txs
}

func (c *Client) TipHash(peerID string) string {
	var hash string
	if err := c.call(peerID, methodTipHash, nil, &hash); err != nil {
		return ""
	}
	return hash
}

func (c *Client) Merge(peerID string, txs []*ledger.Transaction) {
	var discard json.RawMessage
	_ = c.call(peerID, methodMerge, txs, &discard)
}

func (c *Client) Finalize(peerID string, cohortSize int, minimumAgreementPct float64, timestamp int64) (*ledger.Block, error) {
	params := struct {
		CohortSize          int     `json:"cohort_size"`
		MinimumAgreementPct float64 `json:"minimum_agreement_pct"`
		Timestamp           int64   `json:"timestamp"`
	}{cohortSize, minimumAgreementPct, timestamp}
	var block ledger.Block
	if err := c.call(peerID, methodFinalize, params, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

func (c *Client) call(peerID, method string, params, result any) error {
	peer, ok := c.peers[peerID]
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", peerID)
	}

	var paramsRaw json.RawMessage
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("transport: marshal params: %w", err)
		}
		paramsRaw = raw
	}

	var conn net.Conn
	var err error
	if c.tlsConfig != nil {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", peer.addr, c.tlsConfig)
	} else {
		conn, err = net.DialTimeout("tcp", peer.addr, dialTimeout)
	}
	if err != nil {
		return fmt.Errorf("transport: dial %s (%s): %w", peerID, peer.addr, err)
	}
	defer conn.Close()

	if err := writeFrame(conn, request{Method: method, Params: paramsRaw}); err != nil {
		return fmt.Errorf("transport: send to %s: %w", peerID, err)
	}
	var resp response
	if err := readFrame(conn, &resp); err != nil {
		return fmt.Errorf("transport: receive from %s: %w", peerID, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("transport: %s: %s", peerID, resp.Error)
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("transport: decode result from %s: %w", peerID, err)
		}
	}
	return nil
}
