// Package config holds the election's static configuration: node
// counts, agreement thresholds, storage locations and optional mTLS
// material for the multi-process transport.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS. When nil or
// all paths empty, nodes fall back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// SeedPeer identifies a remote replica's transport address, ledger and
// public key for a multi-process deployment: PubKey lets this process
// register the remote replica in its PKI directory without ever dialing
// it for identity, the same way a locally minted replica's public key is
// known at setup time.
type SeedPeer struct {
	ID     string `json:"id"`
	Addr   string `json:"addr"`
	Kind   string `json:"kind"`    // "voter" or "ballot", matching ledger.LedgerKind
	PubKey string `json:"pub_key"` // hex-encoded ed25519 public key
}

// Config holds the election-wide configuration settings shared across
// every node in both ledgers.
type Config struct {
	Election string `json:"election"`
	DataDir  string `json:"data_dir"`
	RPCPort  int    `json:"rpc_port"`
	P2PPort  int    `json:"p2p_port"`

	// MinimumAgreementPct is the fraction of cohort members whose
	// signatures a transaction needs to be approved, and the fraction of
	// ballot nodes whose tip hash must agree for results to be reported
	// (nominally 2/3). The majority cohort itself is the largest tip-hash
	// partition, with no minimum fraction.
	MinimumAgreementPct float64 `json:"minimum_agreement_pct"`
	// ConsensusRoundIntervalSeconds is the wall-clock period between
	// consensus ticks.
	ConsensusRoundIntervalSeconds int `json:"consensus_round_interval_seconds"`
	// TotalVoterNodes and TotalBallotNodes size each ledger's replica set.
	TotalVoterNodes  int `json:"total_voter_nodes"`
	TotalBallotNodes int `json:"total_ballot_nodes"`
	// AdversarialMode turns on adversary-variant assignment at setup;
	// AdversarialNodesPerLedger caps how many of each ledger's nodes run
	// an adversary Policy.
	AdversarialMode           bool `json:"adversarial_mode"`
	AdversarialNodesPerLedger int  `json:"adversarial_nodes_per_ledger"`

	VoterRollPath string `json:"voter_roll_path"`

	// KeyDir, when set, persists each node's keystore under
	// KeyDir/<node-id>.key (encrypted with VOTECHAIN_PASSWORD) so a
	// replica's identity survives a process restart instead of being
	// re-minted every time. Left empty, Setup mints fresh in-memory keys
	// on every run, which is fine for a single-process demo but breaks
	// reconnection in a multi-process deployment.
	KeyDir string `json:"key_dir,omitempty"`

	SeedPeers    []SeedPeer `json:"seed_peers,omitempty"`
	TLS          *TLSConfig `json:"tls,omitempty"`
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"`
}

// MinimumAgreementPctDefault is the nominal minimum agreement fraction.
const MinimumAgreementPctDefault = 2.0 / 3.0

// ConsensusRoundIntervalDefault is the default wall-clock period between
// consensus rounds, in seconds.
const ConsensusRoundIntervalDefault = 10

// DefaultConfig returns a single-process development configuration: 5
// nodes per ledger, no adversaries, the nominal agreement threshold.
func DefaultConfig() *Config {
	return &Config{
		Election:                      "demo-election",
		DataDir:                       "./data",
		RPCPort:                       8645,
		P2PPort:                       31303,
		MinimumAgreementPct:           MinimumAgreementPctDefault,
		ConsensusRoundIntervalSeconds: ConsensusRoundIntervalDefault,
		TotalVoterNodes:               5,
		TotalBallotNodes:              5,
		VoterRollPath:                 "./voters.txt",
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Election == "" {
		return fmt.Errorf("election must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.MinimumAgreementPct <= 0 || c.MinimumAgreementPct > 1 {
		return fmt.Errorf("minimum_agreement_pct must be in (0, 1], got %v", c.MinimumAgreementPct)
	}
	if c.ConsensusRoundIntervalSeconds <= 0 {
		return fmt.Errorf("consensus_round_interval_seconds must be positive")
	}
	if c.TotalVoterNodes <= 0 {
		return fmt.Errorf("total_voter_nodes must be positive")
	}
	if c.TotalBallotNodes <= 0 {
		return fmt.Errorf("total_ballot_nodes must be positive")
	}
	maxAdversaries := adversaryBound(c.TotalVoterNodes, c.MinimumAgreementPct)
	if c.TotalBallotNodes < c.TotalVoterNodes {
		maxAdversaries = adversaryBound(c.TotalBallotNodes, c.MinimumAgreementPct)
	}
	if c.AdversarialMode && c.AdversarialNodesPerLedger >= maxAdversaries {
		return fmt.Errorf(
			"adversarial_nodes_per_ledger (%d) must be strictly less than (1 - minimum_agreement_pct) * total_nodes (%d)",
			c.AdversarialNodesPerLedger, maxAdversaries)
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// adversaryBound returns the strict upper bound on adversarial nodes
// that still leaves an honest majority cohort reachable:
// floor((1 - minimumAgreementPct) * totalNodes).
func adversaryBound(totalNodes int, minimumAgreementPct float64) int {
	return int((1 - minimumAgreementPct) * float64(totalNodes))
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
