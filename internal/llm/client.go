package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Message is one transcript entry sent to the generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is the body of one turn-generation call. An empty Messages
// slice asks the backend for the opening line.
type TurnRequest struct {
	Messages   []Message `json:"messages"`
	Role       string    `json:"role"`
	UseResume  bool      `json:"useResume"`
	Difficulty int       `json:"difficulty"`
	Persona    string    `json:"persona,omitempty"`
	Level      string    `json:"level,omitempty"`
	Tone       string    `json:"tone,omitempty"`
	ActorRole  string    `json:"actorRole,omitempty"`
}

// Opening reports whether r requests the opening line.
func (r TurnRequest) Opening() bool { return len(r.Messages) == 0 }

// TransportError is a non-success response received before any body bytes.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation request failed: %v", e.Err)
	}
	return fmt.Sprintf("generation error: status=%d body=%s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GenerationClient talks to the turn-generation service.
type GenerationClient struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
}

// NewGenerationClient builds a client with no overall timeout; interview
// streams are open-ended and are bounded by the caller's context instead.
func NewGenerationClient(endpoint, apiKey string) *GenerationClient {
	return &GenerationClient{
		HTTPClient: &http.Client{Timeout: 0},
		Endpoint:   strings.TrimRight(endpoint, "/"),
		APIKey:     apiKey,
	}
}

// Open issues the call and returns the streaming response body. The caller
// must close it.
func (c *GenerationClient) Open(ctx context.Context, turn TurnRequest) (io.ReadCloser, error) {
	if c.Endpoint == "" {
		return nil, &TransportError{Err: fmt.Errorf("generation endpoint missing")}
	}
	if turn.Messages == nil {
		turn.Messages = []Message{}
	}
	reqBody, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("encode turn request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{Status: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}
