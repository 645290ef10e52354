// Package comfyui is the HTTP transport for a ComfyUI server.
package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is used when no server address is configured
	DefaultBaseURL = "http://127.0.0.1:8188"
	// DefaultTimeout bounds a single submit or poll request
	DefaultTimeout = 60 * time.Second

	// submitBodyLimit bounds the server text quoted in a submit failure
	submitBodyLimit = 100
)

// Options configures a Client
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client submits prompts to ComfyUI and polls their history
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	logger     *slog.Logger
}

// NewClient creates a new ComfyUI client
func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		clientID:   uuid.NewString(),
		logger:     logger,
	}
}

// BaseURL returns the server address the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

type promptRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id,omitempty"`
}

type promptResponse struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

// Submit queues payload on the server and returns the prompt id.
// Every failure is returned as a *domain.SubmissionError.
func (c *Client) Submit(ctx context.Context, payload any) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: payload, ClientID: c.clientID})
	if err != nil {
		return "", &domain.SubmissionError{Message: fmt.Sprintf("Submit error: %v", err), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", &domain.SubmissionError{Message: fmt.Sprintf("Connection error: %v", err), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.SubmissionError{Message: fmt.Sprintf("Connection error: %v", err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.SubmissionError{Message: fmt.Sprintf("Connection error: %v", err), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		text := domain.Truncate(string(respBody), submitBodyLimit)
		return "", &domain.SubmissionError{Message: "Submit error: " + text}
	}

	var out promptResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &domain.SubmissionError{Message: fmt.Sprintf("Submit error: %v", err), Err: err}
	}
	if strings.TrimSpace(out.PromptID) == "" {
		return "", &domain.SubmissionError{
			Message: "Submit error: " + domain.ErrMissingPromptID.Error(),
			Err:     domain.ErrMissingPromptID,
		}
	}

	c.logger.Debug("Prompt queued",
		slog.String("prompt_id", out.PromptID),
		slog.Int("number", out.Number),
	)

	return out.PromptID, nil
}

// Poll fetches the history entry for promptID and classifies it.
// Transport failures come back as pending with Err set.
func (c *Client) Poll(ctx context.Context, promptID string) domain.Status {
	endpoint := c.baseURL + "/history/" + url.PathEscape(promptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Pending(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Pending(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Pending(err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Pending(fmt.Errorf("comfyui: http %d", resp.StatusCode))
	}

	return Classify(promptID, body)
}

// OutputURL builds the view address of an output file
func OutputURL(baseURL, filename string) string {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("type", "output")
	return strings.TrimRight(baseURL, "/") + "/view?" + q.Encode()
}

// OutputURL builds the view address of an output file on this client's server
func (c *Client) OutputURL(filename string) string {
	return OutputURL(c.baseURL, filename)
}
