package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AgentResponse is the body returned by an agent's /execute endpoint. Error
// is set when the agent could not get any response from the target.
type AgentResponse struct {
	Response
	Duration int64  `json:"duration"` // ms
	Error    string `json:"error,omitempty"`
}

// Agent forwards calls to a local agent, which sends them from the user's
// machine. It lets a hosted server reach APIs only visible on that machine.
type Agent struct {
	baseURL string
	client  *http.Client
}

func NewAgent(baseURL string, timeout time.Duration) *Agent {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Agent{
		baseURL: strings.TrimRight(baseURL, "/"),
		// The agent enforces the request timeout itself; allow for the hop.
		client: &http.Client{Timeout: timeout + 5*time.Second},
	}
}

func (a *Agent) Do(ctx context.Context, call Call) (*Response, error) {
	payload, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out AgentResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid agent response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s", out.Error)
	}
	return &out.Response, nil
}
