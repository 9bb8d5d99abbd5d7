package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/auth"
	"github.com/dunamismax/imageoptimizer/internal/logging"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, auth.Response{Error: "auth is disabled"})
		return
	}

	var req loginRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	resp, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logging.WithTrace(r.Context(), s.logger).Error("login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, auth.Response{Error: "login failed"})
		return
	}
	writeJSON(w, authStatus(resp), resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, auth.Response{Error: "auth is disabled"})
		return
	}

	var req registerRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	resp, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		logging.WithTrace(r.Context(), s.logger).Error("register failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, auth.Response{Error: "registration failed"})
		return
	}
	if resp.Success {
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	writeJSON(w, authStatus(resp), resp)
}

func authStatus(resp auth.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.Error {
	case auth.MsgUserNotFound, auth.MsgInvalidPassword:
		return http.StatusUnauthorized
	case auth.MsgUserAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
