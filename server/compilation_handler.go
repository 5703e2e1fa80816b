package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"Replayer/core/compilation"
	"Replayer/logger"
)

// ========== 合集 ==========

func (s *Server) requireCompilations(w http.ResponseWriter) bool {
	if s.compilations == nil {
		writeError(w, http.StatusServiceUnavailable, "数据库不可用")
		return false
	}
	return true
}

// ListCompilationsHandler 列出已保存的合集
func (s *Server) ListCompilationsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireCompilations(w) {
		return
	}
	list, err := s.compilations.List(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SaveCompilationHandler 保存合集（同ID覆盖）
func (s *Server) SaveCompilationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireCompilations(w) {
		return
	}
	defer r.Body.Close()
	c, err := compilation.Decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.compilations.Save(r.Context(), c); err != nil {
		writeFailure(w, err)
		return
	}
	logger.Info("合集已保存", logger.String("compilationId", c.ID), logger.Int("tracks", len(c.Tracks)))
	writeJSON(w, http.StatusCreated, c)
}

// GetCompilationHandler 获取合集详情
func (s *Server) GetCompilationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireCompilations(w) {
		return
	}
	c, err := s.compilations.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "合集不存在")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCompilationHandler 删除合集
func (s *Server) DeleteCompilationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireCompilations(w) {
		return
	}
	if err := s.compilations.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadCompilationHandler 把已保存的合集加载到会话
func (s *Server) LoadCompilationHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireCompilations(w) {
		return
	}
	c, err := s.compilations.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeFailure(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "合集不存在")
		return
	}
	if err := s.session.LoadCompilation(r.Context(), c); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeSnapshot(w)
}
