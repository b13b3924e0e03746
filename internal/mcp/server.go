// ABOUTME: MCP server speaking JSON-RPC 2.0 over stateless HTTP POST.
// ABOUTME: Routes protocol methods to the tool catalog and resource readers.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/ankimcp/ankimcp/internal/anki"
	"github.com/ankimcp/ankimcp/internal/store"
	"github.com/ankimcp/ankimcp/internal/tools"
)

// protocolVersion is the MCP revision advertised in initialize responses.
const protocolVersion = "2025-11-25"

const (
	serverName    = "ankimcp"
	serverVersion = "0.1.0"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. The ID is always
// serialized so error envelopes for unparseable requests carry id null.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string { return e.Message }

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCP result types

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []tools.Definition `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call. IsError is serialized
// unconditionally; clients check it before reading content.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MCPResource describes one entry in resources/list.
type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// MCPListResourcesResult is the result for resources/list.
type MCPListResourcesResult struct {
	Resources []MCPResource `json:"resources"`
}

// MCPResourceContents is one content block in a resources/read result.
type MCPResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// MCPReadResourceResult is the result for resources/read.
type MCPReadResourceResult struct {
	Contents []MCPResourceContents `json:"contents"`
}

// Config holds configuration for the MCP server.
type Config struct {
	Catalog  *tools.Catalog
	Service  *anki.Service
	Logger   *slog.Logger
	LogLevel *slog.LevelVar // adjusted by logging/setLevel when set
}

// Server exposes the flashcard collection over the MCP protocol. It serves
// the stateless /mcp endpoint plus the /sse and /messages pair for clients
// that expect responses on an event stream.
type Server struct {
	catalog   *tools.Catalog
	svc       *anki.Service
	logger    *slog.Logger
	logLevel  *slog.LevelVar
	sessions  *sessionHub
	keepalive time.Duration
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		catalog:   cfg.Catalog,
		svc:       cfg.Service,
		logger:    logger,
		logLevel:  cfg.LogLevel,
		sessions:  newSessionHub(),
		keepalive: sseKeepaliveInterval,
	}, nil
}

// RegisterRoutes registers the MCP endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/messages", s.handleMessages)
}

// handleMCP is the stateless JSON-RPC endpoint. Every request gets its
// response in the HTTP body; notifications are acknowledged with 202.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, rpcErr := s.readBody(r)
	if rpcErr != nil {
		s.writeJSON(w, http.StatusOK, errorEnvelope(nil, rpcErr))
		return
	}

	req, rpcErr := parseRequest(body)
	if rpcErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		s.writeJSON(w, http.StatusOK, errorEnvelope(id, rpcErr))
		return
	}

	resp := s.dispatch(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// readBody reads a bounded request body.
func (s *Server) readBody(r *http.Request) ([]byte, *JSONRPCError) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, &JSONRPCError{Code: JSONRPCParseError, Message: "failed to read request body"}
	}
	if int64(len(body)) > MaxRequestBodySize {
		return nil, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "request body too large"}
	}
	return body, nil
}

// parseRequest validates the JSON-RPC envelope. On envelope errors where the
// body still decoded as an object, the returned request carries the
// recovered id so the error response can echo it.
func parseRequest(body []byte) (*JSONRPCRequest, *JSONRPCError) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "Request must be an object"}
		}
		return nil, &JSONRPCError{Code: JSONRPCParseError, Message: "Parse error: " + err.Error()}
	}
	if raw == nil {
		return nil, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "Request must be an object"}
	}

	req := &JSONRPCRequest{ID: raw["id"], Params: raw["params"]}

	var version string
	if err := json.Unmarshal(raw["jsonrpc"], &version); err != nil || version != "2.0" {
		return req, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "Must be JSON-RPC 2.0"}
	}
	req.JSONRPC = version

	methodRaw, ok := raw["method"]
	if !ok {
		return req, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "Missing 'method' field"}
	}
	if err := json.Unmarshal(methodRaw, &req.Method); err != nil {
		return req, &JSONRPCError{Code: JSONRPCInvalidRequest, Message: "Missing 'method' field"}
	}

	return req, nil
}

// dispatch runs a parsed request and builds its response envelope.
// Notifications execute for their side effects but return nil.
func (s *Server) dispatch(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	s.logger.Debug("MCP request", "method", req.Method, "is_notification", isNotification)

	result, err := s.callMethod(ctx, req.Method, req.Params)
	if isNotification {
		return nil
	}

	if err != nil {
		var rpcErr *JSONRPCError
		if !errors.As(err, &rpcErr) {
			s.logger.Error("internal error handling request", "method", req.Method, "error", err)
			rpcErr = &JSONRPCError{Code: JSONRPCInternalError, Message: "Internal error: " + err.Error()}
		}
		return errorEnvelope(req.ID, rpcErr)
	}

	if result == nil {
		result = json.RawMessage("null")
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// callMethod routes a method name to its handler.
func (s *Server) callMethod(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "initialize":
		return s.handleInitialize(params)
	case "initialized":
		return s.handleInitialized()
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return MCPListToolsResult{Tools: s.catalog.List()}, nil
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	case "resources/list":
		return s.handleResourcesList(ctx)
	case "resources/read":
		return s.handleResourcesRead(ctx, params)
	case "logging/setLevel":
		return s.handleSetLevel(params)
	default:
		return nil, &JSONRPCError{Code: JSONRPCMethodNotFound, Message: "Method not found: " + method}
	}
}

type initializeParams struct {
	ClientInfo struct {
		Name string `json:"name"`
	} `json:"clientInfo"`
}

func (s *Server) handleInitialize(params json.RawMessage) (any, error) {
	var p initializeParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p) // clientInfo is advisory
	}
	client := p.ClientInfo.Name
	if client == "" {
		client = "unknown"
	}
	s.logger.Info("MCP client connected", "client", client)

	return map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"subscribe": false, "listChanged": false},
			"logging":   map[string]any{},
		},
	}, nil
}

func (s *Server) handleInitialized() (any, error) {
	s.logger.Info("MCP client initialization complete")
	return nil, nil
}

// handleToolsCall executes a tool. Tool failures of any kind surface inside
// a successful envelope with isError set, never as a protocol error.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p MCPCallToolParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if p.Name == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "Missing 'name' parameter"}
	}

	result, err := s.callTool(ctx, p.Name, p.Arguments)
	if err != nil {
		s.logger.Error("error executing tool", "tool", p.Name, "error", err)
		return MCPCallToolResult{
			Content: []MCPContent{{Type: "text", Text: "Error: " + err.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: string(text)}},
		IsError: false,
	}, nil
}

// callTool runs a catalog tool, converting a handler panic into an ordinary
// error. The panic detail stays in the server log; the client sees a generic
// message like any other tool failure.
func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool handler panicked", "tool", name, "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("internal error in tool %s", name)
		}
	}()
	return s.catalog.Call(ctx, name, args)
}

// handleResourcesList advertises each visible deck as a browsable resource.
func (s *Server) handleResourcesList(ctx context.Context) (any, error) {
	decks, err := s.svc.ListDecks(ctx)
	if err != nil {
		return nil, err
	}

	resources := make([]MCPResource, 0, len(decks))
	for _, deck := range decks {
		encoded := strings.ReplaceAll(deck.Name, " ", "%20")
		resources = append(resources, MCPResource{
			URI:         "anki://deck/" + encoded,
			Name:        deck.Name,
			Description: fmt.Sprintf("Anki deck with %d cards", deck.CardCount),
			MimeType:    "application/json",
		})
	}
	return MCPListResourcesResult{Resources: resources}, nil
}

const resourceScheme = "anki://"

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		URI string `json:"uri"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if p.URI == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "Missing 'uri' parameter"}
	}

	if !strings.HasPrefix(p.URI, resourceScheme) {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "Invalid URI scheme: " + p.URI}
	}
	path := strings.TrimPrefix(p.URI, resourceScheme)

	switch {
	case strings.HasPrefix(path, "deck/"):
		deckName := strings.ReplaceAll(path[len("deck/"):], "%20", " ")
		return s.readDeckResource(ctx, deckName, p.URI)
	case strings.HasPrefix(path, "note/"):
		rawID := path[len("note/"):]
		noteID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "Invalid note ID: " + rawID}
		}
		return s.readNoteResource(ctx, noteID, p.URI)
	default:
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "Unknown resource path: " + path}
	}
}

type deckResourceContent struct {
	DeckName  string        `json:"deck_name"`
	NoteCount int           `json:"note_count"`
	Notes     []*store.Note `json:"notes"`
}

func (s *Server) readDeckResource(ctx context.Context, deckName, uri string) (any, error) {
	notes, err := s.svc.SearchNotes(ctx, fmt.Sprintf(`"deck:%s"`, deckName), 100)
	if err != nil {
		return nil, err
	}

	content := deckResourceContent{
		DeckName:  deckName,
		NoteCount: len(notes),
		Notes:     notes,
	}
	return resourceResult(uri, content)
}

type noteResourceContent struct {
	*store.Note
	Cards []*store.Card `json:"cards"`
}

func (s *Server) readNoteResource(ctx context.Context, noteID int64, uri string) (any, error) {
	note, err := s.svc.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	cards, err := s.svc.CardsForNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	content := noteResourceContent{Note: note, Cards: cards}
	return resourceResult(uri, content)
}

func resourceResult(uri string, content any) (any, error) {
	text, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode resource content: %w", err)
	}
	return MCPReadResourceResult{
		Contents: []MCPResourceContents{
			{URI: uri, MimeType: "application/json", Text: string(text)},
		},
	}, nil
}

// logLevelNames lists accepted levels in the order cited by error messages.
var logLevelNames = []string{"debug", "info", "notice", "warning", "error", "critical", "alert", "emergency"}

// slogLevel maps an MCP log level to its slog equivalent. Levels slog has
// no tier for collapse onto the nearest one.
func slogLevel(name string) (slog.Level, bool) {
	switch name {
	case "debug":
		return slog.LevelDebug, true
	case "info", "notice":
		return slog.LevelInfo, true
	case "warning":
		return slog.LevelWarn, true
	case "error", "critical", "alert", "emergency":
		return slog.LevelError, true
	}
	return 0, false
}

func (s *Server) handleSetLevel(params json.RawMessage) (any, error) {
	var p struct {
		Level string `json:"level"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "invalid params"}
		}
	}
	if p.Level == "" {
		return nil, &JSONRPCError{Code: JSONRPCInvalidParams, Message: "Missing 'level' parameter"}
	}

	level, ok := slogLevel(strings.ToLower(p.Level))
	if !ok {
		return nil, &JSONRPCError{
			Code:    JSONRPCInvalidParams,
			Message: fmt.Sprintf("Invalid log level: %s. Valid levels: %s", p.Level, strings.Join(logLevelNames, ", ")),
		}
	}

	if s.logLevel != nil {
		s.logLevel.Set(level)
	}
	s.logger.Info("log level set", "level", p.Level)
	return map[string]any{}, nil
}

func errorEnvelope(id json.RawMessage, rpcErr *JSONRPCError) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

// writeJSON sends a JSON response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
