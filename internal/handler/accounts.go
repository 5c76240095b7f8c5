package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"

	"campusevents/internal/account"
	"campusevents/internal/auth"
	"campusevents/internal/model"
)

type authResponse struct {
	Profile model.Profile  `json:"profile"`
	Tokens  auth.TokenPair `json:"tokens"`
}

func (s *Server) signIn(c *gin.Context, status int, p model.Profile) {
	pair, err := s.Tokens.Issue(p.ID, string(p.Role))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, authResponse{Profile: p, Tokens: pair})
}

func (s *Server) register(c *gin.Context) {
	var req account.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.Accounts.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	s.signIn(c, http.StatusCreated, p)
}

func (s *Server) login(c *gin.Context) {
	var req account.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.Accounts.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	s.signIn(c, http.StatusOK, p)
}

func (s *Server) sendOTP(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier"`
		Channel    string `json:"channel"`
		RollNumber string `json:"roll_number"`
		Mobile     string `json:"mobile_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var (
		expires time.Time
		err     error
	)
	if req.RollNumber != "" {
		expires, err = s.Accounts.StartOTPLogin(c.Request.Context(), req.RollNumber, req.Mobile)
	} else {
		expires, err = s.Accounts.SendOTP(c.Request.Context(), req.Identifier, req.Channel)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"expires_at": expires})
}

func (s *Server) verifyOTP(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier" binding:"required"`
		Code       string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.Accounts.VerifyOTP(c.Request.Context(), req.Identifier, req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	s.signIn(c, http.StatusOK, p)
}

func (s *Server) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, claims, err := s.Tokens.Refresh(req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := s.Store.GetProfile(c.Request.Context(), claims.Subject)
	if errors.Is(err, errors.NotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
		return
	} else if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Profile: p, Tokens: pair})
}

func (s *Server) logout(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	s.Registry.Drop(claims.Subject)
	c.Status(http.StatusNoContent)
}

func (s *Server) me(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	p, err := s.Store.GetProfile(c.Request.Context(), claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateMe(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var upd model.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.Accounts.UpdateProfile(c.Request.Context(), claims.Subject, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.Registry.Reload(c.Request.Context(), claims.Subject); err != nil {
		logger.Warningf("reload session for %s: %v", claims.Subject, err)
	}
	c.JSON(http.StatusOK, p)
}
