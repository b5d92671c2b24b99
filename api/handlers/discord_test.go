package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentpost/api"
	"github.com/BaSui01/agentpost/automation"
	"github.com/BaSui01/agentpost/testutil/fixtures"
	"github.com/BaSui01/agentpost/testutil/mocks"
	"github.com/BaSui01/agentpost/types"
)

// fakePoster 记录每次调用的 Poster
type fakePoster struct {
	mu     sync.Mutex
	posts  []automation.Post
	ctxErr error
	result *automation.Result
	err    error
}

func (p *fakePoster) Run(ctx context.Context, post automation.Post) (*automation.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post)
	p.ctxErr = ctx.Err()
	if p.result == nil {
		p.result = &automation.Result{RunID: "run-1", Path: post.Path(), State: automation.StatePosted}
	}
	return p.result, p.err
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

func send(t *testing.T, h *DiscordHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/discord/send", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleSend(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// =============================================================================
// 🧪 请求校验
// =============================================================================

func TestDiscordHandler_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"empty object", `{}`, "message is required"},
		{"empty body", ``, "message is required"},
		{"empty message", `{"message":""}`, "message is required"},
		{"whitespace message", `{"message":"  \n\t"}`, "message is required"},
		{"null message", `{"message":null}`, "message is required"},
		{"image only", `{"imageUrl":"https://example.com/a.png"}`, "message is required"},
		{"malformed json", `{"message":`, "invalid JSON body"},
		{"relative image url", `{"message":"hi","imageUrl":"/a.png"}`, "imageUrl must be an absolute http(s) URL"},
		{"ftp image url", `{"message":"hi","imageUrl":"ftp://example.com/a.png"}`, "imageUrl must be an absolute http(s) URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poster := &fakePoster{}
			w := send(t, NewDiscordHandler(poster, zap.NewNop()), tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Code)
			assert.Equal(t, 0, poster.count())
		})
	}
}

func TestDiscordHandler_MissingMessageBody(t *testing.T) {
	w := send(t, NewDiscordHandler(&fakePoster{}, nil), `{}`)
	assert.JSONEq(t, `{"error":"message is required","code":"INVALID_REQUEST"}`, w.Body.String())
}

// =============================================================================
// 🧪 成功与失败响应
// =============================================================================

func TestDiscordHandler_Success(t *testing.T) {
	poster := &fakePoster{}
	w := send(t, NewDiscordHandler(poster, zaptest.NewLogger(t)), `{"message":"hello world","extra":"ignored"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","success":true,"posted":"hello world","run_id":"run-1","path":"text"}`, w.Body.String())
	require.Len(t, poster.posts, 1)
	assert.Equal(t, automation.Post{Message: "hello world"}, poster.posts[0])
}

func TestDiscordHandler_TrimsImageURL(t *testing.T) {
	poster := &fakePoster{}
	w := send(t, NewDiscordHandler(poster, nil), `{"message":"caption","imageUrl":"  https://example.com/a.png "}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://example.com/a.png", poster.posts[0].ImageURL)
}

func TestDiscordHandler_DetachesClientCancellation(t *testing.T) {
	poster := &fakePoster{}
	h := NewDiscordHandler(poster, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodPost, "/discord/send", strings.NewReader(`{"message":"hi"}`)).WithContext(ctx)
	w := httptest.NewRecorder()
	h.HandleSend(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, poster.ctxErr)
}

func TestDiscordHandler_StepFailure(t *testing.T) {
	stepErr := &automation.StepError{Step: automation.StepPost, Reached: automation.StateInChannel, Err: errors.New("send button not found")}
	poster := &fakePoster{
		result: &automation.Result{RunID: "run-9", Path: automation.PathText, State: automation.StateInChannel},
		err:    types.NewError(types.ErrStepFailed, "post step failed").WithCause(stepErr),
	}

	r := httptest.NewRequest(http.MethodPost, "/discord/send", strings.NewReader(`{"message":"hi"}`))
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()
	NewDiscordHandler(poster, zaptest.NewLogger(t)).HandleSend(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, api.ErrorResponse{
		Error:        "automation failed",
		Details:      "send button not found",
		Code:         "STEP_FAILED",
		Step:         "post",
		ReachedState: "in_channel",
		RequestID:    "req-1",
	}, resp)
}

func TestDiscordHandler_OtherFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantDetails string
	}{
		{"session start", types.NewError(types.ErrSessionStart, "failed to start browser session").WithCause(errors.New("chrome not found")), "SESSION_START", "chrome not found"},
		{"image fetch", types.NewError(types.ErrImageFetch, "image body is empty"), "IMAGE_FETCH", "image body is empty"},
		{"plain error", errors.New("unexpected"), "INTERNAL_ERROR", "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := send(t, NewDiscordHandler(&fakePoster{err: tt.err}, nil), `{"message":"hi"}`)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, "automation failed", resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantDetails, resp.Details)
			assert.Empty(t, resp.Step)
		})
	}
}

// =============================================================================
// 🧪 与真实流程联调
// =============================================================================

func TestDiscordHandler_WithRunner(t *testing.T) {
	t.Run("text post", func(t *testing.T) {
		sessions := mocks.NewMockSessionFactory(mocks.NewMockAgent)
		runner := automation.NewRunner(fixtures.Config(), sessions, zaptest.NewLogger(t))

		w := send(t, NewDiscordHandler(runner, nil), `{"message":"hello world"}`)
		require.Equal(t, http.StatusOK, w.Code)

		agents := sessions.Agents()
		require.Len(t, agents, 1)
		calls := agents[0].Calls()
		require.Len(t, calls, 3)
		assert.Equal(t, "hello world", calls[2].Data[automation.KeyMessage])
		assert.False(t, agents[0].UploadRequested())
		assert.Equal(t, 1, agents[0].StopCalls())
	})

	t.Run("image post", func(t *testing.T) {
		sessions := mocks.NewMockSessionFactory(mocks.NewMockAgent)
		runner := automation.NewRunner(fixtures.Config(), sessions, zaptest.NewLogger(t),
			automation.WithImageFetcher(mocks.NewMockImageFetcher(t.TempDir())))

		w := send(t, NewDiscordHandler(runner, nil), `{"message":"caption","imageUrl":"https://example.com/a.png"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp api.SendResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "image", resp.Path)

		agent := sessions.Agents()[0]
		assert.True(t, agent.UploadRequested())
		assert.Equal(t, "caption", agent.Calls()[2].Data[automation.KeyMessage])
		assert.Equal(t, 1, agent.StopCalls())
	})

	t.Run("login failure", func(t *testing.T) {
		sessions := mocks.NewMockSessionFactory(func() *mocks.MockAgent {
			return mocks.NewMockAgent().WithFailureOn(1, errors.New("invalid credentials"))
		})
		runner := automation.NewRunner(fixtures.Config(), sessions, zaptest.NewLogger(t))

		w := send(t, NewDiscordHandler(runner, nil), `{"message":"hello world"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		resp := decodeError(t, w)
		assert.Equal(t, "STEP_FAILED", resp.Code)
		assert.Equal(t, "login", resp.Step)
		assert.Equal(t, "logged_out", resp.ReachedState)
		assert.Equal(t, "invalid credentials", resp.Details)
		assert.Equal(t, 1, sessions.Agents()[0].StopCalls())
	})
}

// =============================================================================
// 🧪 属性测试
// =============================================================================

func TestProperty_BodiesWithoutMessageNeverReachRoutine(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	blank := gen.OneConstOf("", " ", "\t", "\n", "   \r\n ")

	properties.Property("missing or blank message is rejected with 400", prop.ForAll(
		func(extraKey, extraValue, message string, includeMessage bool) bool {
			body := map[string]any{}
			if extraKey != "" && extraKey != "message" {
				body[extraKey] = extraValue
			}
			if includeMessage {
				body["message"] = message
			}
			raw, err := json.Marshal(body)
			if err != nil {
				return false
			}

			poster := &fakePoster{}
			r := httptest.NewRequest(http.MethodPost, "/discord/send", bytes.NewReader(raw))
			w := httptest.NewRecorder()
			NewDiscordHandler(poster, nil).HandleSend(w, r)

			if w.Code != http.StatusBadRequest || poster.count() != 0 {
				t.Logf("body %s: status %d, calls %d", raw, w.Code, poster.count())
				return false
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
		blank,
		gen.Bool(),
	))

	properties.Property("non-blank message reaches routine exactly once", prop.ForAll(
		func(message string) bool {
			raw, _ := json.Marshal(map[string]string{"message": message})
			poster := &fakePoster{}
			r := httptest.NewRequest(http.MethodPost, "/discord/send", bytes.NewReader(raw))
			w := httptest.NewRecorder()
			NewDiscordHandler(poster, nil).HandleSend(w, r)

			return w.Code == http.StatusOK && poster.count() == 1 && poster.posts[0].Message == message
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}
