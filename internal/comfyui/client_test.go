package comfyui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputURL(t *testing.T) {
	assert.Equal(t, "http://host:8188/view?filename=img_7.png&type=output", OutputURL("http://host:8188", "img_7.png"))
	assert.Equal(t, "http://host:8188/view?filename=img_7.png&type=output", OutputURL("http://host:8188/", "img_7.png"))
	assert.Equal(t, "http://host:8188/view?filename=my+image.png&type=output", OutputURL("http://host:8188", "my image.png"))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.NotEmpty(t, c.clientID)

	c = NewClient(Options{BaseURL: " http://gpu:8188/ ", Timeout: time.Second})
	assert.Equal(t, "http://gpu:8188", c.BaseURL())
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.Equal(t, "http://gpu:8188/view?filename=a.png&type=output", c.OutputURL("a.png"))
}

func TestClient_Submit(t *testing.T) {
	var captured map[string]json.RawMessage
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/prompt" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "abc-123", "number": 4})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	id, err := client.Submit(context.Background(), map[string]any{"9": map[string]any{"class_type": "SaveImage"}})

	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.JSONEq(t, `{"9":{"class_type":"SaveImage"}}`, string(captured["prompt"]))
	assert.Contains(t, captured, "client_id")
}

func TestClient_SubmitFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
		wantIs  error
	}{
		{
			name: "non-200 body is quoted and truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error": {"type": "prompt_outputs_failed_validation"}}` + strings.Repeat("x", 300)))
			},
			wantMsg: "Submit error: {\"error\": {\"type\": \"prompt_outputs_failed_validation\"}}",
		},
		{
			name: "missing prompt id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"number": 1}`))
			},
			wantMsg: "Submit error: missing prompt_id",
			wantIs:  domain.ErrMissingPromptID,
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantMsg: "Submit error:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			client := NewClient(Options{BaseURL: ts.URL})
			id, err := client.Submit(context.Background(), map[string]any{})

			require.Error(t, err)
			assert.Empty(t, id)

			var subErr *domain.SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.True(t, strings.HasPrefix(err.Error(), tt.wantMsg), "got %q", err.Error())
			assert.LessOrEqual(t, len(err.Error()), len("Submit error: ")+submitBodyLimit)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestClient_SubmitConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := ts.URL
	ts.Close()

	client := NewClient(Options{BaseURL: base, Timeout: time.Second})
	_, err := client.Submit(context.Background(), map[string]any{})

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, strings.HasPrefix(err.Error(), "Connection error:"))
	assert.NotNil(t, errors.Unwrap(err))
}

func TestClient_Poll(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantState domain.State
		wantOut   string
		wantErr   bool
	}{
		{
			name:      "unknown id is pending",
			status:    http.StatusOK,
			body:      `{}`,
			wantState: domain.StatePending,
		},
		{
			name:      "done",
			status:    http.StatusOK,
			body:      `{"p1": {"status": {"status_str": "success", "completed": true}, "outputs": {"9": {"images": [{"filename": "zimage_00001_.png", "subfolder": "", "type": "output"}]}}}}`,
			wantState: domain.StateDone,
			wantOut:   "zimage_00001_.png",
		},
		{
			name:      "server error is transient",
			status:    http.StatusInternalServerError,
			body:      `oops`,
			wantState: domain.StatePending,
			wantErr:   true,
		},
		{
			name:      "malformed body is transient",
			status:    http.StatusOK,
			body:      `not json`,
			wantState: domain.StatePending,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/history/p1" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client := NewClient(Options{BaseURL: ts.URL})
			st := client.Poll(context.Background(), "p1")

			assert.Equal(t, tt.wantState, st.State)
			assert.Equal(t, tt.wantOut, st.Output)
			if tt.wantErr {
				var transient *domain.TransientPollError
				assert.ErrorAs(t, st.Err, &transient)
			} else {
				assert.NoError(t, st.Err)
			}
		})
	}
}

func TestClient_PollConnectionErrorIsPending(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := ts.URL
	ts.Close()

	client := NewClient(Options{BaseURL: base, Timeout: time.Second})
	st := client.Poll(context.Background(), "p1")

	assert.Equal(t, domain.StatePending, st.State)
	assert.Error(t, st.Err)
}
