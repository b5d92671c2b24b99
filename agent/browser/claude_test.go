package browser

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentpost/config"
	"github.com/BaSui01/agentpost/testutil/fixtures"
	"github.com/BaSui01/agentpost/types"
)

type llmCall struct {
	model, status string
	in, out       int
}

type llmRecorder struct {
	mu    sync.Mutex
	calls []llmCall
}

func (r *llmRecorder) RecordLLMRequest(model, status string, _ time.Duration, in, out int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, llmCall{model, status, in, out})
}

func newClaudeServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPlanner(t *testing.T, srv *httptest.Server, rec LLMRecorder) *ClaudePlanner {
	t.Helper()
	return NewClaudePlanner(config.LLMConfig{
		APIKey:    "sk-test",
		Model:     "claude-test",
		BaseURL:   srv.URL + "/",
		MaxTokens: 512,
		Timeout:   5 * time.Second,
	}, zaptest.NewLogger(t), WithHTTPClient(srv.Client()), WithLLMRecorder(rec))
}

func planRequest() PlanRequest {
	return PlanRequest{
		Instruction: "log in",
		DataKeys:    []string{"email"},
		Page: &PageState{
			URL:        "https://discord.com/login",
			Title:      "Discord",
			Elements:   []PageElement{{ID: "e0", Tag: "input", Visible: true}},
			Screenshot: &Screenshot{Data: []byte{0x89, 'P', 'N', 'G'}, MediaType: "image/png"},
		},
		Step:     1,
		MaxSteps: 25,
	}
}

func TestClaudePlanner_Plan(t *testing.T) {
	var seen map[string]any
	decision := `{"thought":"type email","actions":[{"type":"type","element":"e0","value":"{{email}}"}],"done":false}`
	srv := newClaudeServer(t, http.StatusOK, fixtures.MessageResponse("```json\n"+decision+"\n```"), &seen)
	rec := &llmRecorder{}

	d, err := newTestPlanner(t, srv, rec).Plan(t.Context(), planRequest())
	require.NoError(t, err)
	require.Len(t, d.Actions, 1)
	assert.Equal(t, "{{email}}", d.Actions[0].Value)

	// 请求内容
	assert.Equal(t, "claude-test", seen["model"])
	assert.EqualValues(t, 512, seen["max_tokens"])
	raw, _ := json.Marshal(seen)
	assert.Contains(t, string(raw), `"type":"image"`)
	assert.Contains(t, string(raw), `"media_type":"image/png"`)
	assert.True(t, strings.Contains(string(raw), "Data keys: {{email}}"))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, llmCall{"claude-test", "success", 120, 30}, rec.calls[0])
}

func TestClaudePlanner_Plan_WithoutScreenshot(t *testing.T) {
	var seen map[string]any
	srv := newClaudeServer(t, http.StatusOK, fixtures.MessageResponse(`{"done":true,"success":true}`), &seen)

	req := planRequest()
	req.Page.Screenshot = nil
	d, err := newTestPlanner(t, srv, nil).Plan(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, d.Done)

	raw, _ := json.Marshal(seen)
	assert.NotContains(t, string(raw), `"type":"image"`)
}

func TestClaudePlanner_Plan_Errors(t *testing.T) {
	apiError := `{"type":"error","error":{"type":"api_error","message":"boom"}}`

	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		recorded  string
	}{
		{"server error", http.StatusInternalServerError, apiError, true, "error"},
		{"rate limited", http.StatusTooManyRequests, apiError, true, "error"},
		{"bad request", http.StatusBadRequest, apiError, false, "error"},
		{"unparseable", http.StatusOK, fixtures.MessageResponse("I am not sure"), false, "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newClaudeServer(t, tt.status, tt.body, nil)
			rec := &llmRecorder{}

			_, err := newTestPlanner(t, srv, rec).Plan(t.Context(), planRequest())
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrPlannerFailed), fmt.Sprint(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
			require.Len(t, rec.calls, 1)
			assert.Equal(t, tt.recorded, rec.calls[0].status)
		})
	}
}
