package server

import (
	"net/http"

	"Replayer/logger"
	"Replayer/model"
)

// GetSettingsHandler 返回当前播放设置
func (s *Server) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.session.Settings()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettingsHandler 更新播放设置，数据库可用时持久化
func (s *Server) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req model.Settings
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "无效的请求")
		return
	}
	if err := req.Validate(); err != nil {
		writeFailure(w, err)
		return
	}

	if s.settings != nil {
		saved, err := s.settings.Save(r.Context(), req)
		if err != nil {
			writeFailure(w, err)
			return
		}
		req = saved
	}
	if err := s.session.SetSettings(req); err != nil {
		writeFailure(w, err)
		return
	}
	logger.Info("播放设置已更新",
		logger.Int("fadeIn", req.FadeInDuration),
		logger.Int("fadeOut", req.FadeOutDuration),
		logger.Bool("preRoll", req.AddFadeInPreRoll))
	writeJSON(w, http.StatusOK, req)
}
