package domain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport defines the interface for MCP transport mechanisms.
// Implementations handle communication between MCP clients and the server
// using either stdio or HTTP transport.
type Transport interface {
	// Start begins listening for incoming MCP messages.
	// Returns an error if the transport cannot be initialized.
	Start(ctx context.Context) error

	// Send transmits a JSON-RPC response to the client.
	// Returns an error if the response cannot be sent.
	Send(response *Response) error

	// SendRequest transmits a server-initiated JSON-RPC request to the
	// client. Used for elicitation round trips. The client's answer
	// arrives on the Responses channel.
	SendRequest(request *Request) error

	// Receive returns a channel for incoming JSON-RPC requests.
	// The channel is closed when the transport is shut down.
	Receive() <-chan *Request

	// Responses returns a channel for incoming JSON-RPC responses to
	// server-initiated requests.
	Responses() <-chan *Response

	// Close gracefully shuts down the transport.
	// Returns an error if shutdown fails.
	Close() error
}

// rawMessage is used to classify an incoming JSON-RPC message before
// full decoding. A message with a method is a request; one with a
// result or error is a response to a server-initiated request.
type rawMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// isResponse reports whether the message answers a server-initiated request.
func (m *rawMessage) isResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// toResponse converts a classified raw message into a Response.
func (m *rawMessage) toResponse() *Response {
	var result interface{}
	if len(m.Result) > 0 {
		// Decode errors leave result nil; the broker treats that as an
		// empty answer rather than dropping the message.
		_ = json.Unmarshal(m.Result, &result)
	}
	return &Response{
		JSONRPC: m.JSONRPC,
		ID:      m.ID,
		Result:  result,
		Error:   m.Error,
	}
}

// toRequest converts a classified raw message into a Request.
func (m *rawMessage) toRequest() *Request {
	return &Request{
		JSONRPC: m.JSONRPC,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
	}
}

// StdioTransport implements Transport using stdin/stdout for communication.
// It reads newline-delimited JSON-RPC messages from stdin and writes
// responses to stdout.
type StdioTransport struct {
	reader   *bufio.Reader
	writer   *bufio.Writer
	reqChan  chan *Request
	respChan chan *Response
	mu       sync.Mutex
	closed   bool
}

// NewStdioTransport creates a new StdioTransport instance.
// By default, it uses os.Stdin and os.Stdout, but custom readers/writers
// can be provided for testing.
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout)
}

// NewStdioTransportWithIO creates a new StdioTransport with custom IO streams.
// This is primarily used for testing.
func NewStdioTransportWithIO(reader io.Reader, writer io.Writer) *StdioTransport {
	return &StdioTransport{
		reader:   bufio.NewReader(reader),
		writer:   bufio.NewWriter(writer),
		reqChan:  make(chan *Request, 10), // Buffered channel to avoid blocking
		respChan: make(chan *Response, 10),
	}
}

// Start begins reading JSON-RPC messages from stdin.
// It spawns a goroutine that continuously reads newline-delimited messages
// and dispatches them to the request or response channel.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	go t.readLoop(ctx)
	return nil
}

// readLoop continuously reads from stdin and parses JSON-RPC messages.
func (t *StdioTransport) readLoop(ctx context.Context) {
	defer close(t.reqChan)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Read a line from stdin
			line, err := t.reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return
				}
				// Log error but continue reading
				continue
			}

			// Trim whitespace
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			// Parse JSON-RPC message
			var msg rawMessage
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				// Send parse error response
				t.sendParseError(nil, err)
				continue
			}

			// Validate JSON-RPC version
			if msg.JSONRPC != "2.0" {
				t.sendInvalidRequest(msg.ID, "invalid jsonrpc version")
				continue
			}

			// Responses answer server-initiated elicitation requests.
			if msg.isResponse() {
				select {
				case t.respChan <- msg.toResponse():
				case <-ctx.Done():
					return
				default:
					// Nothing is waiting; drop the stale answer.
				}
				continue
			}

			// Send request to channel
			select {
			case t.reqChan <- msg.toRequest():
			case <-ctx.Done():
				return
			}
		}
	}
}

// Send writes a JSON-RPC response to stdout.
// The response is serialized as a single line of JSON followed by a newline.
func (t *StdioTransport) Send(response *Response) error {
	// Ensure JSONRPC version is set
	if response.JSONRPC == "" {
		response.JSONRPC = "2.0"
	}

	return t.writeMessage(response)
}

// SendRequest writes a server-initiated JSON-RPC request to stdout.
func (t *StdioTransport) SendRequest(request *Request) error {
	if request.JSONRPC == "" {
		request.JSONRPC = "2.0"
	}

	return t.writeMessage(request)
}

// writeMessage serializes a message as a single JSON line and flushes it.
func (t *StdioTransport) writeMessage(message interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	// Serialize message to JSON
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Newline-delimited framing cannot carry embedded newlines
	jsonStr := string(data)
	if strings.Contains(jsonStr, "\n") {
		return fmt.Errorf("message contains embedded newlines")
	}

	// Write to stdout with newline
	if _, err := t.writer.WriteString(jsonStr + "\n"); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	// Flush to ensure immediate delivery
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}

	return nil
}

// Receive returns the channel for incoming JSON-RPC requests.
func (t *StdioTransport) Receive() <-chan *Request {
	return t.reqChan
}

// Responses returns the channel for incoming JSON-RPC responses.
func (t *StdioTransport) Responses() <-chan *Response {
	return t.respChan
}

// Close gracefully shuts down the transport.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true
	// Note: We don't close reqChan here because it's closed by readLoop
	return nil
}

// sendParseError sends a parse error response.
func (t *StdioTransport) sendParseError(id interface{}, err error) {
	response := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    ParseError,
			Message: "Parse error",
			Data:    err.Error(),
		},
	}
	// Ignore error since we're already handling an error
	_ = t.Send(response)
}

// sendInvalidRequest sends an invalid request error response.
func (t *StdioTransport) sendInvalidRequest(id interface{}, reason string) {
	response := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    InvalidRequest,
			Message: "Invalid Request",
			Data:    reason,
		},
	}
	// Ignore error since we're already handling an error
	_ = t.Send(response)
}

// HTTPTransport implements Transport using HTTP with SSE for communication.
// It exposes two endpoints:
// 1. SSE endpoint (GET) for server-to-client messages
// 2. HTTP POST endpoint for client-to-server messages
type HTTPTransport struct {
	host     string
	port     int
	server   *http.Server
	reqChan  chan *Request
	respChan chan *Response
	mu       sync.Mutex
	closed   bool
	// Session management for SSE connections
	sessions   map[string]*sseSession
	sessionsMu sync.RWMutex
}

// sseSession represents an active SSE connection
type sseSession struct {
	id          string
	messageChan chan interface{}
	done        chan struct{}
}

// NewHTTPTransport creates a new HTTPTransport instance.
func NewHTTPTransport(host string, port int) *HTTPTransport {
	return &HTTPTransport{
		host:     host,
		port:     port,
		reqChan:  make(chan *Request, 10),
		respChan: make(chan *Response, 10),
		sessions: make(map[string]*sseSession),
	}
}

// Start begins the HTTP server and starts listening for incoming requests.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	// Create HTTP server with handlers
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleSSE)             // SSE endpoint for server-to-client
	mux.HandleFunc("/mcp/message", t.handleMessage) // POST endpoint for client-to-server

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	t.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Start server in a goroutine
	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail - server might be stopped gracefully
		}
	}()

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		t.Close()
	}()

	return nil
}

// handleSSE handles SSE connections (GET requests) for server-to-client messages.
func (t *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Only accept GET requests for SSE
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Get flusher for streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Create a new session
	sessionID := uuid.NewString()
	session := &sseSession{
		id:          sessionID,
		messageChan: make(chan interface{}, 10),
		done:        make(chan struct{}),
	}

	// Register session
	t.sessionsMu.Lock()
	t.sessions[sessionID] = session
	t.sessionsMu.Unlock()

	// Send endpoint event to tell client where to send messages
	messageEndpoint := fmt.Sprintf("/mcp/message?sessionId=%s", sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", messageEndpoint)
	flusher.Flush()

	// Keep connection alive and send messages
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client disconnected
			t.sessionsMu.Lock()
			delete(t.sessions, sessionID)
			t.sessionsMu.Unlock()
			close(session.done)
			return
		case <-session.done:
			// Session closed
			return
		case message := <-session.messageChan:
			// Send message as SSE message event
			data, err := json.Marshal(message)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", string(data))
			flusher.Flush()
		case <-ticker.C:
			// Send keep-alive comment
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleMessage handles HTTP POST requests for client-to-server messages.
func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	// Only accept POST requests
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Get session ID from query parameter
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	// Verify session exists
	t.sessionsMu.RLock()
	session, exists := t.sessions[sessionID]
	t.sessionsMu.RUnlock()

	if !exists {
		http.Error(w, "Invalid session", http.StatusBadRequest)
		return
	}

	// Read request body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Parse JSON-RPC message
	var msg rawMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.sendErrorToSession(session, nil, ParseError, "Parse error", err.Error())
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Validate JSON-RPC version
	if msg.JSONRPC != "2.0" {
		t.sendErrorToSession(session, msg.ID, InvalidRequest, "Invalid Request", "invalid jsonrpc version")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Responses answer server-initiated elicitation requests.
	if msg.isResponse() {
		select {
		case t.respChan <- msg.toResponse():
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		return
	}

	// Send request to processing channel
	select {
	case t.reqChan <- msg.toRequest():
		// Request accepted
		w.WriteHeader(http.StatusAccepted)
	default:
		// Channel full
		t.sendErrorToSession(session, msg.ID, InternalError, "Internal error", "request queue full")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

// sendErrorToSession sends an error response to a specific session.
func (t *HTTPTransport) sendErrorToSession(session *sseSession, id interface{}, code int, message string, data interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	select {
	case session.messageChan <- response:
	default:
		// Channel full; the session is not draining its messages.
	}
}

// Send transmits a JSON-RPC response to the client via SSE.
// For HTTP transport, this sends the response through all active SSE sessions.
func (t *HTTPTransport) Send(response *Response) error {
	// Ensure JSONRPC version is set
	if response.JSONRPC == "" {
		response.JSONRPC = "2.0"
	}

	return t.broadcast(response)
}

// SendRequest transmits a server-initiated JSON-RPC request via SSE.
func (t *HTTPTransport) SendRequest(request *Request) error {
	if request.JSONRPC == "" {
		request.JSONRPC = "2.0"
	}

	return t.broadcast(request)
}

// broadcast delivers a message to all active SSE sessions.
func (t *HTTPTransport) broadcast(message interface{}) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	// Send to all active sessions
	t.sessionsMu.RLock()
	defer t.sessionsMu.RUnlock()

	if len(t.sessions) == 0 {
		return fmt.Errorf("no active sessions")
	}

	for _, session := range t.sessions {
		select {
		case session.messageChan <- message:
			// Message sent successfully
		default:
			// Channel full; the session is not draining its messages.
		}
	}

	return nil
}

// Receive returns the channel for incoming JSON-RPC requests.
func (t *HTTPTransport) Receive() <-chan *Request {
	return t.reqChan
}

// Responses returns the channel for incoming JSON-RPC responses.
func (t *HTTPTransport) Responses() <-chan *Response {
	return t.respChan
}

// Close gracefully shuts down the HTTP server and all SSE sessions.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true

	// Close all sessions
	t.sessionsMu.Lock()
	for _, session := range t.sessions {
		close(session.done)
	}
	t.sessions = make(map[string]*sseSession)
	t.sessionsMu.Unlock()

	// Close the request channel
	close(t.reqChan)

	// Shutdown the HTTP server if it exists
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}

	return nil
}
