package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"Replayer/core/compilation"
	"Replayer/core/session"
	"Replayer/model"
)

// ========== 会话 ==========

// GetSessionHandler 返回合奏快照
func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// LoadSessionCompilationHandler 直接用请求体中的合集替换当前合集
func (s *Server) LoadSessionCompilationHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	c, err := compilation.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.LoadCompilation(r.Context(), c); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeSnapshot(w)
}

// ClearSessionCompilationHandler 卸载当前合集
func (s *Server) ClearSessionCompilationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearCompilation(); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// KeyResponse 按键处理结果
type KeyResponse struct {
	Consumed bool `json:"consumed"`
}

// KeyHandler 把按键交给助记键解析器
func (s *Server) KeyHandler(w http.ResponseWriter, r *http.Request) {
	var req session.KeyData
	if err := decodeBody(r, &req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	consumed, err := s.session.HandleKey(req.Key)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Consumed: consumed})
}

// NavigateHandler 按 cueId 或小节位置跳转
func (s *Server) NavigateHandler(w http.ResponseWriter, r *http.Request) {
	var req session.NavigateData
	if err := decodeBody(r, &req); err != nil || req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}

	var err error
	switch {
	case req.CueID != "":
		err = s.session.NavigateToCue(req.TrackID, req.CueID)
	case req.Measure > 0:
		err = s.session.NavigateToMeasure(req.TrackID, model.MetricalPosition{Measure: req.Measure, Beat: req.Beat})
	default:
		writeError(w, http.StatusBadRequest, "需要 cueId 或 measure")
		return
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.writeSnapshot(w)
}

// commandHandler 包装无参数的会话命令
func (s *Server) commandHandler(cmd func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cmd(); err != nil {
			writeFailure(w, err)
			return
		}
		s.writeSnapshot(w)
	}
}

// LoopRequest 循环区间请求
type LoopRequest struct {
	TrackID   string `json:"trackId"`
	FromCueID string `json:"fromCueId"`
	ToCueID   string `json:"toCueId,omitempty"`
}

// SetLoopHandler 设置 cue 之间的循环区间
func (s *Server) SetLoopHandler(w http.ResponseWriter, r *http.Request) {
	var req LoopRequest
	if err := decodeBody(r, &req); err != nil || req.TrackID == "" || req.FromCueID == "" {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if err := s.session.SetLoop(req.TrackID, req.FromCueID, req.ToCueID); err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ========== 音轨 ==========

// SeekHandler 定位音轨
func (s *Server) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req session.SeekData
	if err := decodeBody(r, &req); err != nil || req.Position < 0 {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if err := s.session.Seek(mux.Vars(r)["track_id"], req.Position); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeSnapshot(w)
}

// MuteHandler 设置音轨静音
func (s *Server) MuteHandler(w http.ResponseWriter, r *http.Request) {
	var req session.MuteData
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if err := s.session.Mute(mux.Vars(r)["track_id"], req.Muted); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeSnapshot(w)
}

// RateHandler 设置音轨播放速率
func (s *Server) RateHandler(w http.ResponseWriter, r *http.Request) {
	var req session.RateData
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if err := s.session.SetRate(mux.Vars(r)["track_id"], req.Rate); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeSnapshot(w)
}

// RemoveTrackHandler 从会话中移除音轨
func (s *Server) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RemoveTrack(mux.Vars(r)["track_id"]); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MediaURLResponse 媒体地址
type MediaURLResponse struct {
	TrackID string `json:"trackId"`
	URL     string `json:"url"`
}

// MediaURLHandler 返回音轨媒体的访问地址，对象存储中的媒体返回预签名地址
func (s *Server) MediaURLHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["track_id"]
	c, err := s.session.Compilation()
	if err != nil {
		writeFailure(w, err)
		return
	}
	tr, ok := c.Track(trackID)
	if !ok {
		writeError(w, http.StatusNotFound, "音轨不存在")
		return
	}

	if strings.HasPrefix(tr.URL, "http://") || strings.HasPrefix(tr.URL, "https://") {
		writeJSON(w, http.StatusOK, MediaURLResponse{TrackID: tr.ID, URL: tr.URL})
		return
	}
	if s.media == nil {
		writeError(w, http.StatusServiceUnavailable, "媒体存储不可用")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	u, err := s.media.PresignedURL(ctx, tr.URL)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MediaURLResponse{TrackID: tr.ID, URL: u})
}

func (s *Server) writeSnapshot(w http.ResponseWriter) {
	snap, err := s.session.Snapshot()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
