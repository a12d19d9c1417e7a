package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"escrownet/core"
	"escrownet/native/escrow"
)

const maxRequestBytes = 1 << 20 // 1 MiB

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32001
	codeUnauthorized   = -32002
)

// Server exposes the node over a single JSON-RPC 2.0 endpoint. When a bearer
// token is configured, every request must present it.
type Server struct {
	node        *core.Node
	logger      *slog.Logger
	bearerToken string
}

// NewServer creates the RPC server. An empty token disables authentication,
// which is only sensible behind the gateway.
func NewServer(node *core.Node, bearerToken string) *Server {
	return &Server{node: node, logger: slog.Default(), bearerToken: strings.TrimSpace(bearerToken)}
}

// SetLogger overrides the request logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ServeHTTP implements the single-endpoint dispatch.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeError(w, nil, codeUnauthorized, "invalid or missing bearer token")
		return
	}

	var req rpcRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "malformed request body")
		return
	}
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		writeError(w, req.ID, codeInvalidRequest, "jsonrpc 2.0 request required")
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		s.logger.Warn("rpc request failed", "method", req.Method, "code", rpcErr.Code, "err", rpcErr.Message)
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(req *rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "escrow_register":
		return s.handleRegister(req.Params)
	case "escrow_deposit":
		return s.handleDeposit(req.Params)
	case "escrow_commit":
		return s.handleCommit(req.Params)
	case "escrow_approve":
		return s.handleApprove(req.Params)
	case "escrow_dispute":
		return s.handleDispute(req.Params)
	case "escrow_decide":
		return s.handleDecide(req.Params)
	case "escrow_supersede":
		return s.handleSupersede(req.Params)
	case "escrow_get":
		return s.handleGet(req.Params)
	case "escrow_balance":
		return s.handleBalance(req.Params)
	case "escrow_receipt":
		return s.handleReceipt(req.Params)
	case "chain_height":
		return heightResult{Height: s.node.Height()}, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method " + req.Method}
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.bearerToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix)) == s.bearerToken
}

// errToRPC maps engine sentinels onto stable JSON-RPC error codes.
func errToRPC(err error) *rpcError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, escrow.ErrNotFound), errors.Is(err, core.ErrReceiptUnknown):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, escrow.ErrUnauthorized):
		return &rpcError{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidDuration),
		errors.Is(err, escrow.ErrRoleNotBound),
		errors.Is(err, escrow.ErrInvalidOutcome),
		errors.Is(err, escrow.ErrUnsupportedToken):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &rpcError{Code: codeServerError, Message: err.Error()}
	}
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeRPCError(w, id, &rpcError{Code: code, Message: message})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpcError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr})
}
