package langflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Flow is the part of a LangFlow flow the listing reports.
type Flow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HTTPError is a non-2xx answer of the LangFlow API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client talks to the flows collection of a LangFlow server.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for the flows endpoint base, e.g.
// http://localhost:7860/api/v1/flows/.
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, hc: hc}
}

func (c *Client) flowURL(id string) string {
	return strings.TrimRight(c.base, "/") + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(out))}
	}
	return out, nil
}

// ListFlows returns every flow visible to the caller.
func (c *Client) ListFlows(ctx context.Context) ([]Flow, error) {
	body, err := c.do(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return nil, err
	}
	var flows []Flow
	if err := json.Unmarshal(body, &flows); err != nil {
		return nil, fmt.Errorf("decode flows: %w", err)
	}
	return flows, nil
}

// CreateFlow posts a flow document and returns the raw answer.
func (c *Client) CreateFlow(ctx context.Context, flow []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.base, flow)
}

// DeleteFlow deletes flow id and returns the raw answer.
func (c *Client) DeleteFlow(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, c.flowURL(id), nil)
}

// GetFlow returns the decoded flow document of id.
func (c *Client) GetFlow(ctx context.Context, id string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, c.flowURL(id), nil)
	if err != nil {
		return nil, err
	}
	var flow map[string]any
	if err := json.Unmarshal(body, &flow); err != nil {
		return nil, fmt.Errorf("decode flow %s: %w", id, err)
	}
	return flow, nil
}

// PatchFlow replaces the fields of flow id present in doc and returns the
// raw answer.
func (c *Client) PatchFlow(ctx context.Context, id string, doc map[string]any) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode flow %s: %w", id, err)
	}
	return c.do(ctx, http.MethodPatch, c.flowURL(id), body)
}

// keyValueLines renders the top-level members of a JSON object as
// "key: value" lines in document order. Strings are printed bare and
// everything else as compact JSON.
func keyValueLines(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", fmt.Errorf("unexpected response: %s", bytes.TrimSpace(body))
	}
	var lines []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		lines = append(lines, key+": "+renderValue(raw))
	}
	return strings.Join(lines, "\n"), nil
}

func renderValue(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
