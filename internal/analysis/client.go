package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnsuccessful means the service answered but reported success=false.
var ErrUnsuccessful = errors.New("analysis unsuccessful")

type response struct {
	Success bool         `json:"success"`
	Data    *ScoreReport `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Client calls the remote analysis service.
type Client struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		Endpoint:   endpoint,
		APIKey:     apiKey,
	}
}

// Analyze posts the finished transcript. The caller bounds it with ctx.
func (c *Client) Analyze(ctx context.Context, in Request) (ScoreReport, error) {
	if c.Endpoint == "" {
		return ScoreReport{}, fmt.Errorf("analysis endpoint missing")
	}
	if in.Transcript == nil {
		in.Transcript = []Entry{}
	}
	reqBody, err := json.Marshal(in)
	if err != nil {
		return ScoreReport{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return ScoreReport{}, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ScoreReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ScoreReport{}, fmt.Errorf("analysis error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var ar response
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return ScoreReport{}, fmt.Errorf("decode analysis response: %w", err)
	}
	if !ar.Success || ar.Data == nil {
		if ar.Error != "" {
			return ScoreReport{}, fmt.Errorf("%w: %s", ErrUnsuccessful, ar.Error)
		}
		return ScoreReport{}, ErrUnsuccessful
	}
	if !ar.Data.InRange() {
		return ScoreReport{}, fmt.Errorf("%w: score out of range (overall=%d)", ErrUnsuccessful, ar.Data.Overall)
	}
	return *ar.Data, nil
}
