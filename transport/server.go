package transport

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"

	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
)

// Server answers transport RPCs for a single local node, standing in
// for node.LocalNetwork when a replica runs in its own process.
type Server struct {
	node      *node.Node
	listener  net.Listener
	tlsConfig *tls.Config // nil → plain TCP
}

// NewServer wraps n. Call Start to begin listening on addr.
func NewServer(n *node.Node, tlsCfg *tls.Config) *Server {
	return &Server{node: n, tlsConfig: tlsCfg}
}

// Start binds addr and serves connections in a background goroutine.
func (s *Server) Start(addr string) error {
	var ln net.Listener
	var err error
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

// Addr returns the address the server is listening on, useful when Start
// was called with a port of 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener; in-flight connections finish their current
// request/response round trip on their own.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	var req request
	if err := readFrame(conn, &req); err != nil {
		return
	}
	resp := s.dispatch(req)
	if err := writeFrame(conn, resp); err != nil {
		log.Printf("[transport] write response to %s: %v", conn.RemoteAddr(), err)
	}
}

func (s *Server) dispatch(req request) response {
	switch req.Method {
	case methodCosign:
		var tx ledger.Transaction
		if err := json.Unmarshal(req.Params, &tx); err != nil {
			return errResp(err)
		}
		cosigned, err := s.node.CosignRequest(&tx)
		if err != nil {
			return errResp(err)
		}
		return okResp(cosigned)

	case methodPool:
		return okResp(s.node.BeginConsensusRound())

	case methodTipHash:
		return okResp(s.node.Chain().TipHash())

	case methodMerge:
		var txs []*ledger.Transaction
		if err := json.Unmarshal(req.Params, &txs); err != nil {
			return errResp(err)
		}
		s.node.MergeCohortPool(txs)
		return okResp(nil)

	case methodFinalize:
		var params struct {
			CohortSize          int     `json:"cohort_size"`
			MinimumAgreementPct float64 `json:"minimum_agreement_pct"`
			Timestamp           int64   `json:"timestamp"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResp(err)
		}
		block, err := s.node.FinalizeConsensusRound(params.CohortSize, params.MinimumAgreementPct, params.Timestamp)
		if err != nil {
			return errResp(err)
		}
		return okResp(block)

	default:
		return errResp(fmt.Errorf("transport: unknown method %q", req.Method))
	}
}

func okResp(v any) response {
	raw, err := json.Marshal(v)
	if err != nil {
		return response{Error: err.Error()}
	}
	return response{Result: raw}
}

func errResp(err error) response {
	return response{Error: err.Error()}
}
