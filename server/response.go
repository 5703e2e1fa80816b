package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"Replayer/core/auth"
	"Replayer/core/media"
	"Replayer/core/navigation"
	"Replayer/core/session"
	"Replayer/logger"
	"Replayer/model"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeFailure 按错误类型选择状态码
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("请求处理失败", logger.ErrorField(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTrackNotFound),
		errors.Is(err, navigation.ErrTrackNotFound),
		errors.Is(err, navigation.ErrCueNotFound):
		return http.StatusNotFound
	case errors.Is(err, navigation.ErrNoCompilation),
		errors.Is(err, navigation.ErrHandlerUnavailable):
		return http.StatusConflict
	case errors.Is(err, media.ErrInvalidPlaybackRate),
		errors.Is(err, model.ErrDuplicateMnemonic),
		errors.Is(err, model.ErrInvalidMnemonic),
		errors.Is(err, model.ErrInvalidMetrical),
		errors.Is(err, model.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// bearerToken 从 Authorization 头或 token 查询参数读取令牌
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware 校验控制令牌，未启用鉴权时直接放行
func (s *Server) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.tokens.Enabled() {
			next(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "缺少认证令牌")
			return
		}
		if _, err := s.tokens.Verify(token); err != nil {
			logger.Debug("令牌校验失败", logger.ErrorField(err))
			writeError(w, http.StatusUnauthorized, "无效的令牌")
			return
		}
		next(w, r)
	}
}

// canControl 判断请求是否持有有效控制令牌
func (s *Server) canControl(r *http.Request) bool {
	if !s.tokens.Enabled() {
		return true
	}
	token := bearerToken(r)
	if token == "" {
		return false
	}
	_, err := s.tokens.Verify(token)
	return err == nil
}

// TokenRequest 令牌请求
type TokenRequest struct {
	Password string `json:"password"`
	Name     string `json:"name"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // 毫秒时间戳
}

// TokenHandler 校验控制口令并签发令牌
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if !s.tokens.Enabled() || s.cfg == nil || s.cfg.ControlPasswordHash == "" {
		writeError(w, http.StatusNotFound, "未启用令牌认证")
		return
	}

	var req TokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if !auth.CheckPasswordHash(req.Password, s.cfg.ControlPasswordHash) {
		logger.Warn("控制口令错误", logger.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "口令错误")
		return
	}

	if req.Name == "" {
		req.Name = "controller"
	}
	token, expires, err := s.tokens.Issue(req.Name)
	if err != nil {
		writeFailure(w, err)
		return
	}
	logger.Info("签发控制令牌", logger.String("name", req.Name))
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires.UnixMilli()})
}
