// Package rpc implements the JSON-RPC 2.0 query/admin surface:
// get_balance, get_utxos, get_current_fee_percentiles, and the
// admin-gated set_config, plus a Prometheus /metrics endpoint.
package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/btcstate/chainstate/config"
	"github.com/btcstate/chainstate/internal/chainlog"
	"github.com/btcstate/chainstate/internal/engine"
	"github.com/btcstate/chainstate/pkg/btc"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr   string
	engine *engine.State
	server *http.Server
	logger zerolog.Logger
	ln     net.Listener
}

// New creates a new RPC server fronting state.
func New(addr string, state *engine.State) *Server {
	s := &Server{
		addr:   addr,
		engine: state,
		logger: chainlog.RPC,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "get_balance":
		return s.handleGetBalance(req)
	case "get_utxos":
		return s.handleGetUTXOs(req)
	case "get_current_fee_percentiles":
		return s.handleGetCurrentFeePercentiles(req)
	case "set_config":
		return s.handleSetConfig(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func decodeParams(req *Request, out interface{}) *Error {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func engineErrorToRPC(err error) *Error {
	if e, ok := err.(*engine.Error); ok {
		if e.Kind == engine.MalformedRequest {
			return &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if err == engine.ErrUnauthorized {
		return &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func (s *Server) handleGetBalance(req *Request) (interface{}, *Error) {
	var p GetBalanceParams
	if rpcErr := decodeParams(req, &p); rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.engine.GetBalance(btc.Address(p.Address), p.MinConfirmations)
	if err != nil {
		return nil, engineErrorToRPC(err)
	}
	return map[string]uint64{"balance": bal}, nil
}

func (s *Server) handleGetUTXOs(req *Request) (interface{}, *Error) {
	var p GetUTXOsParams
	if rpcErr := decodeParams(req, &p); rpcErr != nil {
		return nil, rpcErr
	}

	var cursor []byte
	if p.PageCursor != "" {
		var err error
		cursor, err = hex.DecodeString(p.PageCursor)
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid page cursor"}
		}
	}

	entries, next, err := s.engine.GetUTXOs(btc.Address(p.Address), engine.UTXOFilter{
		MinConfirmations: p.MinConfirmations,
		Cursor:           cursor,
	})
	if err != nil {
		return nil, engineErrorToRPC(err)
	}

	out := GetUTXOsResult{UTXOs: make([]UTXOResult, 0, len(entries))}
	for _, e := range entries {
		out.UTXOs = append(out.UTXOs, UTXOResult{
			TxID:   e.OutPoint.Txid.String(),
			Vout:   e.OutPoint.Vout,
			Value:  e.Value,
			Height: e.Height,
		})
	}
	if next != nil {
		out.NextPage = hex.EncodeToString(next)
	}
	return out, nil
}

func (s *Server) handleGetCurrentFeePercentiles(req *Request) (interface{}, *Error) {
	return map[string][]uint64{"percentiles": s.engine.GetCurrentFeePercentiles()}, nil
}

func (s *Server) handleSetConfig(req *Request) (interface{}, *Error) {
	var p SetConfigParams
	if rpcErr := decodeParams(req, &p); rpcErr != nil {
		return nil, rpcErr
	}

	sc := engine.SetConfigRequest{StabilityThreshold: p.StabilityThreshold}
	if p.Syncing != nil {
		flag := config.FlagUnset
		switch *p.Syncing {
		case "enabled":
			flag = config.FlagEnabled
		case "disabled":
			flag = config.FlagDisabled
		default:
			return nil, &Error{Code: CodeInvalidParams, Message: "syncing must be \"enabled\" or \"disabled\""}
		}
		sc.Syncing = &flag
	}

	if err := s.engine.SetConfig(p.Token, sc); err != nil {
		return nil, engineErrorToRPC(err)
	}
	return map[string]bool{"ok": true}, nil
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id})
}
