package api

import (
	"errors"
	"net/http"

	"clipy/host/internal/auth"

	"github.com/gin-gonic/gin"
)

type pairRequest struct {
	PairingKey string `json:"pairing_key" binding:"required"`
	ClientName string `json:"client_name"`
}

func (s *Server) pair(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "pairing_key is required", false, nil)
		return
	}
	tokens, err := s.auth.Pair(req.PairingKey, req.ClientName)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid_pairing_key", "Pairing key does not match", false, nil)
		return
	}
	writeData(c, http.StatusOK, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) refresh(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "refresh_token is required", false, nil)
		return
	}
	tokens, err := s.auth.Refresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeError(c, http.StatusUnauthorized, "token_expired", "Refresh token expired", false, nil)
			return
		}
		writeUnauthorized(c)
		return
	}
	writeData(c, http.StatusOK, tokens)
}

func (s *Server) logout(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "refresh_token is required", false, nil)
		return
	}
	if err := s.auth.Logout(req.RefreshToken); err != nil {
		writeUnauthorized(c)
		return
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}
