package types

import (
	"encoding/json"
	"net/http"
)

// Request is a fully built VRM request, ready to hand to a transport.
type Request struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"-"`
	Body   []byte      `json:"-"`
}

// Envelope is the normalized outcome of a request. Status is 0 when no HTTP
// response was received.
type Envelope struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	URL     string          `json:"url"`
	Method  string          `json:"method"`
	Error   string          `json:"error,omitempty"`
}
