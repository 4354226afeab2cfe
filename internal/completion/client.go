package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 120 * time.Second

// #region types
// Message is one entry of the chat transcript sent to the service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options holds generation parameters passed through to the service.
type Options struct {
	MaxTokens   int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Options  *Options  `json:"options,omitempty"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// #endregion types

// #region client-struct
// Client talks to an Ollama-compatible chat completion service over HTTP.
type Client struct {
	baseURL string
	model   string
	opts    *Options
	http    *http.Client
}

// #endregion client-struct

// #region constructor
// NewClient creates a completion client for the given service URL and model.
// Each call is bounded by timeout; zero or negative means DefaultTimeout.
func NewClient(baseURL, model string, opts *Options, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		opts:    opts,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewClientWithTransport creates a Client with an injected http.Client.
// Used for testing without a real service.
func NewClientWithTransport(baseURL, model string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    hc,
	}
}

// #endregion constructor

// #region complete
// Complete sends a blocking chat request and returns the full response text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := c.post(ctx, chatRequest{
		Model:    c.model,
		Messages: buildMessages(system, user),
		Options:  c.opts,
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", &Error{Op: "complete", Cause: fmt.Errorf("decode response: %w", err)}
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", &Error{Op: "complete", Cause: fmt.Errorf("empty response body")}
	}
	return text, nil
}

// #endregion complete

// #region complete-stream
// CompleteStream sends a streaming chat request. Every token is forwarded to
// tokens as it arrives; the accumulated text is returned once the service
// signals done. The tokens channel is not closed by this method.
func (c *Client) CompleteStream(ctx context.Context, system, user string, tokens chan<- string) (string, error) {
	body, err := c.post(ctx, chatRequest{
		Model:    c.model,
		Messages: buildMessages(system, user),
		Options:  c.opts,
		Stream:   true,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp chatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return "", &Error{Op: "stream", Cause: fmt.Errorf("decode chunk: %w", err)}
		}
		if resp.Message.Content != "" {
			full.WriteString(resp.Message.Content)
			select {
			case tokens <- resp.Message.Content:
			case <-ctx.Done():
				return "", &Error{Op: "stream", Cause: ctx.Err()}
			}
		}
		if resp.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &Error{Op: "stream", Cause: fmt.Errorf("read stream: %w", err)}
	}
	text := strings.TrimSpace(full.String())
	if text == "" {
		return "", &Error{Op: "stream", Cause: fmt.Errorf("empty response body")}
	}
	return text, nil
}

// #endregion complete-stream

// #region post
func (c *Client) post(ctx context.Context, req chatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Op: "request", Cause: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: "request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &Error{Op: "request", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &Error{Op: "request", Cause: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))}
	}
	return resp.Body, nil
}

func buildMessages(system, user string) []Message {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	return append(msgs, Message{Role: "user", Content: user})
}

// #endregion post
