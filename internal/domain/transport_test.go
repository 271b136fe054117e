package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestRawMessageClassification verifies that incoming messages are
// classified as requests or responses before full decoding.
func TestRawMessageClassification(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		isResponse bool
	}{
		{
			name:       "request with method",
			json:       `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`,
			isResponse: false,
		},
		{
			name:       "notification without id",
			json:       `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			isResponse: false,
		},
		{
			name:       "response with result",
			json:       `{"jsonrpc":"2.0","id":"elicit-1","result":{"action":"accept"}}`,
			isResponse: true,
		},
		{
			name:       "response with error",
			json:       `{"jsonrpc":"2.0","id":"elicit-2","error":{"code":-32603,"message":"boom"}}`,
			isResponse: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg rawMessage
			if err := json.Unmarshal([]byte(tt.json), &msg); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			if msg.isResponse() != tt.isResponse {
				t.Errorf("isResponse() = %v, want %v", msg.isResponse(), tt.isResponse)
			}
		})
	}
}

// TestRawMessageToResponse verifies response conversion including result
// decoding.
func TestRawMessageToResponse(t *testing.T) {
	var msg rawMessage
	input := `{"jsonrpc":"2.0","id":"req-1","result":{"action":"accept","content":{"severity":"warning"}}}`
	if err := json.Unmarshal([]byte(input), &msg); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}

	resp := msg.toResponse()
	if resp.ID != "req-1" {
		t.Errorf("ID = %v, want req-1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result = %T, want map", resp.Result)
	}
	if result["action"] != "accept" {
		t.Errorf("result[action] = %v, want accept", result["action"])
	}
}

// TestStdioTransportRoutesRequestsAndResponses verifies that the read
// loop dispatches requests and elicitation answers to separate channels.
func TestStdioTransportRoutesRequestsAndResponses(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"elicit-1","result":{"action":"accept"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"insight_get_error"}}`,
	}, "\n") + "\n"

	var output bytes.Buffer
	transport := NewStdioTransportWithIO(strings.NewReader(input), &output)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Elicitation answer arrives before the second request is read, so
	// the buffered response channel holds it.
	var requests []*Request
	for req := range transport.Receive() {
		requests = append(requests, req)
	}

	if len(requests) != 2 {
		t.Fatalf("received %d requests, want 2", len(requests))
	}
	if requests[0].Method != "tools/list" || requests[1].Method != "tools/call" {
		t.Errorf("request methods = %s, %s", requests[0].Method, requests[1].Method)
	}

	select {
	case resp := <-transport.Responses():
		if resp.ID != "elicit-1" {
			t.Errorf("response ID = %v, want elicit-1", resp.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no response received on Responses channel")
	}
}

// TestStdioTransportSend verifies newline-delimited response framing.
func TestStdioTransportSend(t *testing.T) {
	var output bytes.Buffer
	transport := NewStdioTransportWithIO(strings.NewReader(""), &output)

	err := transport.Send(&Response{
		ID:     1,
		Result: map[string]interface{}{"status": "ok"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	line := output.String()
	if !strings.HasSuffix(line, "\n") {
		t.Error("Send() output is not newline terminated")
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("Send() output contains %d newlines, want 1", strings.Count(line, "\n"))
	}

	var decoded Response
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &decoded); err != nil {
		t.Fatalf("Send() output is not valid JSON: %v", err)
	}
	if decoded.JSONRPC != "2.0" {
		t.Errorf("JSONRPC = %s, want 2.0 (defaulted)", decoded.JSONRPC)
	}
}

// TestStdioTransportSendRequest verifies server-initiated request framing.
func TestStdioTransportSendRequest(t *testing.T) {
	var output bytes.Buffer
	transport := NewStdioTransportWithIO(strings.NewReader(""), &output)

	err := transport.SendRequest(&Request{
		ID:     "elicit-1",
		Method: "elicitation/create",
		Params: map[string]interface{}{"message": "Select the new severity"},
	})
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	var decoded Request
	if err := json.Unmarshal([]byte(strings.TrimSpace(output.String())), &decoded); err != nil {
		t.Fatalf("SendRequest() output is not valid JSON: %v", err)
	}
	if decoded.Method != "elicitation/create" {
		t.Errorf("Method = %s, want elicitation/create", decoded.Method)
	}
	if decoded.JSONRPC != "2.0" {
		t.Errorf("JSONRPC = %s, want 2.0 (defaulted)", decoded.JSONRPC)
	}
}

// TestStdioTransportClosedSend verifies that sends fail after Close.
func TestStdioTransportClosedSend(t *testing.T) {
	var output bytes.Buffer
	transport := NewStdioTransportWithIO(strings.NewReader(""), &output)

	if err := transport.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := transport.Send(&Response{ID: 1}); err == nil {
		t.Error("Send() after Close() error = nil, want error")
	}
	if err := transport.SendRequest(&Request{ID: 1, Method: "x"}); err == nil {
		t.Error("SendRequest() after Close() error = nil, want error")
	}
}

// TestStdioTransportInvalidVersion verifies that a wrong jsonrpc version
// produces an error response instead of a routed request.
func TestStdioTransportInvalidVersion(t *testing.T) {
	input := `{"jsonrpc":"1.0","id":1,"method":"tools/list"}` + "\n"
	var output bytes.Buffer
	transport := NewStdioTransportWithIO(strings.NewReader(input), &output)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := transport.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The request channel closes at EOF with nothing routed
	for range transport.Receive() {
		t.Fatal("request with invalid version was routed")
	}

	var resp Response
	if err := json.Unmarshal([]byte(strings.TrimSpace(output.String())), &resp); err != nil {
		t.Fatalf("error output is not valid JSON: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != InvalidRequest {
		t.Errorf("error response = %+v, want InvalidRequest", resp.Error)
	}
}
