package suggest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"chicommute/internal/schedule"
)

// Remote produces a raw suggestion document for in. A nil document with a
// nil error means the remote answered without output.
type Remote interface {
	Suggest(ctx context.Context, in Input) (json.RawMessage, error)
}

type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("suggestion endpoint returned %d: %s", e.StatusCode, e.Body)
}

//go:embed prompt.tmpl
var promptText string

var promptTmpl = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"days": func(ds []schedule.Day) string {
		parts := make([]string, len(ds))
		for i, d := range ds {
			parts[i] = string(d)
		}
		return strings.Join(parts, ", ")
	},
	"deref": func(n *int) int {
		if n == nil {
			return 0
		}
		return *n
	},
}).Parse(promptText))

func renderPrompt(in Input) (string, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, in.withDefaults()); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// RemoteClient calls a hosted prompt-execution endpoint. The request carries
// the rendered prompt and the structured input; the response's "output"
// member is returned untouched.
type RemoteClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func NewRemoteClient(endpoint, apiKey, model string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: timeout},
	}
}

type remoteRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Input  Input  `json:"input"`
}

type remoteResponse struct {
	Output json.RawMessage `json:"output"`
}

func (c *RemoteClient) Suggest(ctx context.Context, in Input) (json.RawMessage, error) {
	prompt, err := renderPrompt(in)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(remoteRequest{Model: c.model, Prompt: prompt, Input: in.withDefaults()})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call suggestion endpoint: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read suggestion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: preview}
	}

	var rr remoteResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("decode suggestion response: %w", err)
	}
	return rr.Output, nil
}
