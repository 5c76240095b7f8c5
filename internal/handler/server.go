// Package handler exposes the campus events API over gin.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"campusevents/internal/account"
	"campusevents/internal/auth"
	"campusevents/internal/cloudinary"
	"campusevents/internal/dataservice"
	"campusevents/internal/httpmiddleware"
	"campusevents/internal/model"
	"campusevents/internal/store"
)

var logger = loggo.GetLogger("campus.handler")

// Uploader stores images and returns where they can be fetched.
type Uploader interface {
	UploadDataURL(ctx context.Context, subfolder, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, subfolder string, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// Server holds the API's collaborators.
type Server struct {
	Store    store.Store
	Accounts *account.Service
	Tokens   *auth.Tokens
	Registry *Registry
	// Uploader is nil when image storage is not configured.
	Uploader Uploader
	// Limiter, when set, rate limits auth routes by address and the rest
	// by token subject.
	Limiter *httpmiddleware.TokenBucket
	// Health reports dependency status for /healthz.
	Health func(ctx context.Context) map[string]bool
}

// SubjectOrIP charges signed-in requests to their user and the rest to
// their address.
func SubjectOrIP(c *gin.Context) string {
	if claims, ok := auth.FromContext(c); ok {
		return "user:" + claims.Subject
	}
	return "ip:" + httpmiddleware.ClientIP(c)
}

// Register mounts every route on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	public := v1.Group("/auth")
	authed := v1.Group("", auth.Bearer(s.Tokens))
	if s.Limiter != nil {
		public.Use(s.Limiter.Middleware())
		authed.Use(s.Limiter.Middleware())
	}
	admin := auth.RequireRole(string(model.RoleAdmin))

	public.POST("/register", s.register)
	public.POST("/login", s.login)
	public.POST("/otp/send", s.sendOTP)
	public.POST("/otp/verify", s.verifyOTP)
	public.POST("/refresh", s.refreshToken)

	authed.POST("/auth/logout", s.logout)
	authed.GET("/me", s.me)
	authed.PUT("/me", s.updateMe)
	authed.GET("/me/registrations", s.myRegistrations)
	authed.GET("/me/attendance", s.myAttendance)
	authed.POST("/refresh", s.refreshData)

	authed.GET("/events", s.listEvents)
	authed.GET("/events/:id", s.getEvent)
	authed.POST("/events", admin, s.createEvent)
	authed.PUT("/events/:id", admin, s.updateEvent)
	authed.DELETE("/events/:id", admin, s.deleteEvent)
	authed.POST("/events/:id/register", s.registerForEvent)
	authed.DELETE("/events/:id/register", s.unregisterFromEvent)
	authed.GET("/events/:id/ticket", s.ticket)
	authed.GET("/events/:id/attendance", admin, s.eventAttendance)
	authed.POST("/events/:id/attendance", admin, s.markAttendance)
	authed.GET("/events/:id/attendance.csv", admin, s.exportAttendance)

	authed.GET("/stalls", s.listStalls)
	authed.POST("/stalls", admin, s.createStall)
	authed.PUT("/stalls/:id", admin, s.updateStall)
	authed.POST("/stalls/:id/reviews", s.addReview)

	authed.POST("/feedback", s.submitFeedback)
	authed.GET("/feedback", admin, s.listFeedback)
	authed.GET("/analytics", admin, s.analytics)
	authed.POST("/uploads", admin, s.upload)
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	if s.Health != nil {
		for name, ok := range s.Health(c.Request.Context()) {
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
	}
	c.JSON(status, body)
}

// service returns the caller's data service, reloading it first when
// another session changed shared data.
func (s *Server) service(c *gin.Context) (*dataservice.Service, bool) {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return nil, false
	}
	svc, err := s.Registry.Service(c.Request.Context(), claims.Subject)
	if errors.Is(err, errors.NotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
		return nil, false
	} else if err != nil {
		writeError(c, err)
		return nil, false
	}
	if svc.Stale() {
		if res := svc.RefreshData(c.Request.Context()); !res.OK {
			logger.Warningf("refresh for %s: %v", claims.Subject, res.Err)
		}
	}
	return svc, true
}

func statusFor(code dataservice.Code) int {
	switch code {
	case dataservice.CodeOK:
		return http.StatusOK
	case dataservice.CodeInvalid:
		return http.StatusBadRequest
	case dataservice.CodeForbidden:
		return http.StatusForbidden
	case dataservice.CodeNotFound:
		return http.StatusNotFound
	case dataservice.CodeConflict:
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}

func writeResult(c *gin.Context, okStatus int, res dataservice.Result) {
	if res.OK {
		c.JSON(okStatus, res)
		return
	}
	c.JSON(statusFor(res.Code), res)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.NotValid):
		status = http.StatusBadRequest
	case errors.Is(err, errors.Unauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errors.Forbidden):
		status = http.StatusForbidden
	case errors.Is(err, errors.NotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.AlreadyExists):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), errors.ErrorStack(err))
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
