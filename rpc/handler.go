package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/votechain/election"
	"github.com/tolelom/votechain/ledger"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	election *election.Election
}

// NewHandler creates an RPC Handler over e.
func NewHandler(e *election.Election) *Handler {
	return &Handler{election: e}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "authenticateVoter":
		return h.authenticateVoter(req)

	case "lookupVoter":
		return h.lookupVoter(req)

	case "issueTicket":
		return h.issueTicket(req)

	case "castVote":
		return h.castVote(req)

	case "runConsensus":
		return h.runConsensus(req)

	case "queryResults":
		return h.queryResults(req)

	case "ticketHistory":
		return h.ticketHistory(req)

	case "tailLog":
		return h.tailLog(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) authenticateVoter(req Request) Response {
	var params struct {
		VoterID string `json:"voter_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, map[string]any{"authenticated": h.election.AuthenticateVoter(params.VoterID)})
}

func (h *Handler) lookupVoter(req Request) Response {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Name == "" {
		return errResponse(req.ID, CodeInvalidParams, "name is required")
	}
	return okResponse(req.ID, h.election.LookupVoterByName(params.Name))
}

func (h *Handler) issueTicket(req Request) Response {
	var params struct {
		VoterID string `json:"voter_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.VoterID == "" {
		return errResponse(req.ID, CodeInvalidParams, "voter_id is required")
	}
	ticket, err := h.election.IssueTicket(params.VoterID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownVoter) || errors.Is(err, ledger.ErrNotEnoughTickets) {
			return errResponse(req.ID, CodeInvalidParams, err.Error())
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ticket)
}

func (h *Handler) castVote(req Request) Response {
	var params struct {
		Ticket     ledger.BallotClaimTicket `json:"ticket"`
		Selections ledger.BallotSelection   `json:"selections"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.election.CastVote(params.Ticket, params.Selections); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, map[string]bool{"ok": true})
}

func (h *Handler) runConsensus(req Request) Response {
	var params struct {
		Ledger string `json:"ledger"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	report, err := h.election.RunConsensus(params.Ledger)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, report)
}

func (h *Handler) queryResults(req Request) Response {
	state, err := h.election.QueryResults()
	if err != nil {
		if errors.Is(err, election.ErrOutOfSync) {
			return okResponse(req.ID, map[string]string{"status": "not in sync"})
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, state)
}

func (h *Handler) ticketHistory(req Request) Response {
	var params struct {
		VoterID string `json:"voter_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	ids, err := h.election.TicketHistory(params.VoterID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) tailLog(req Request) Response {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	lines, err := h.election.TailLog(params.Path)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, lines)
}
