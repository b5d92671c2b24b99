package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpost/api"
	"github.com/BaSui01/agentpost/automation"
	"github.com/BaSui01/agentpost/types"
)

// =============================================================================
// 💬 Discord 发帖 Handler
// =============================================================================

// Poster 执行一次发帖，*automation.Runner 实现了该接口
type Poster interface {
	Run(ctx context.Context, post automation.Post) (*automation.Result, error)
}

// DiscordHandler 处理 POST /discord/send
type DiscordHandler struct {
	poster Poster
	logger *zap.Logger
}

// NewDiscordHandler 创建发帖处理器
func NewDiscordHandler(poster Poster, logger *zap.Logger) *DiscordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordHandler{
		poster: poster,
		logger: logger.With(zap.String("handler", "discord")),
	}
}

// HandleSend 校验请求并同步执行发帖流程。
// 客户端断开不会中断流程，每一步由指令超时约束。
func (h *DiscordHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req api.SendRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "message is required"), h.logger)
		return
	}

	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL != "" && !isHTTPURL(imageURL) {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "imageUrl must be an absolute http(s) URL"), h.logger)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	result, err := h.poster.Run(ctx, automation.Post{Message: req.Message, ImageURL: imageURL})
	if err != nil {
		h.writeRunError(w, r, result, err)
		return
	}

	resp := api.SendResponse{
		Status:  "ok",
		Success: true,
		Posted:  req.Message,
	}
	if result != nil {
		resp.RunID = result.RunID
		resp.Path = string(result.Path)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *DiscordHandler) writeRunError(w http.ResponseWriter, r *http.Request, result *automation.Result, err error) {
	status := http.StatusInternalServerError
	resp := api.ErrorResponse{
		Error:   "automation failed",
		Details: err.Error(),
		Code:    string(types.ErrInternalError),
	}

	if e, ok := types.AsError(err); ok {
		resp.Code = string(e.Code)
		resp.Retryable = e.Retryable
		resp.Details = e.Message
		if e.Cause != nil {
			resp.Details = e.Cause.Error()
		}
		if e.Code == types.ErrInvalidRequest {
			status = http.StatusBadRequest
			resp.Error = e.Message
			resp.Details = ""
		}
	}

	var stepErr *automation.StepError
	if errors.As(err, &stepErr) {
		resp.Step = string(stepErr.Step)
		resp.ReachedState = stepErr.Reached.String()
		if stepErr.Err != nil {
			resp.Details = stepErr.Err.Error()
		}
	}

	if id, ok := types.RequestID(r.Context()); ok {
		resp.RequestID = id
	}

	fields := []zap.Field{
		zap.String("code", resp.Code),
		zap.String("step", resp.Step),
		zap.String("reached_state", resp.ReachedState),
		zap.Error(err),
	}
	if result != nil {
		fields = append(fields, zap.String("run_id", result.RunID))
	}
	h.logger.Error("automation failed", fields...)

	WriteJSON(w, status, resp)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
