// Package ai talks to the external text-completion endpoint. The endpoint is
// plain request/response: one prompt in, free text out. Anything structured
// is obtained by prompt instruction and parsed on our side, so parsing is a
// fallible boundary with its own error kind.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RequestError covers transport failures and non-2xx responses from the
// completion endpoint. Retrying the same request may succeed.
type RequestError struct {
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion request failed with status %d", e.Status)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// FormatError means the endpoint answered but the text did not conform to
// the shape the prompt demanded. Retrying verbatim is unlikely to help; the
// caller should suggest rewording.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("completion response has unexpected format: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Completer is the minimal completion contract the analysis operations need.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func NewClient(endpoint, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Complete sends one prompt and returns the first candidate's text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &RequestError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &RequestError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{Status: resp.StatusCode}
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &FormatError{Err: err}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", &FormatError{Err: fmt.Errorf("no candidates in response")}
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
