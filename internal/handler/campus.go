package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"

	"campusevents/internal/auth"
	"campusevents/internal/cloudinary"
	"campusevents/internal/model"
)

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

func (s *Server) refreshData(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	writeResult(c, http.StatusOK, svc.RefreshData(c.Request.Context()))
}

func (s *Server) myRegistrations(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": svc.UserRegisteredEvents()})
}

func (s *Server) myAttendance(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_ids": svc.UserAttendance()})
}

func (s *Server) listEvents(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": svc.Events()})
}

func (s *Server) getEvent(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	evt, found := svc.Event(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"event":      evt,
		"registered": svc.IsRegistered(evt.ID),
		"attended":   svc.HasAttended(evt.ID),
	})
}

func (s *Server) createEvent(c *gin.Context) {
	var evt model.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	writeResult(c, http.StatusCreated, svc.AddEvent(c.Request.Context(), evt))
}

func (s *Server) updateEvent(c *gin.Context) {
	var upd model.EventUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	writeResult(c, http.StatusOK, svc.UpdateEvent(c.Request.Context(), c.Param("id"), upd))
}

func (s *Server) deleteEvent(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	writeResult(c, http.StatusOK, svc.DeleteEvent(c.Request.Context(), c.Param("id")))
}

func (s *Server) registerForEvent(c *gin.Context) {
	var req struct {
		UserID        string `json:"user_id"`
		PaymentMethod string `json:"payment_method"`
	}
	if !bindOptional(c, &req) {
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	if req.UserID == "" {
		claims, _ := auth.FromContext(c)
		req.UserID = claims.Subject
	}
	writeResult(c, http.StatusCreated, svc.RegisterForEvent(c.Request.Context(), c.Param("id"), req.UserID, req.PaymentMethod))
}

func (s *Server) unregisterFromEvent(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		claims, _ := auth.FromContext(c)
		userID = claims.Subject
	}
	writeResult(c, http.StatusOK, svc.UnregisterFromEvent(c.Request.Context(), c.Param("id"), userID))
}

func (s *Server) ticket(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	payload, res := svc.TicketPayload(c.Param("id"))
	if !res.OK {
		writeResult(c, http.StatusOK, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": res.ID, "qr_data": payload})
}

func (s *Server) eventAttendance(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	records, res := svc.EventAttendance(c.Request.Context(), c.Param("id"))
	if !res.OK {
		writeResult(c, http.StatusOK, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": records, "total_present": len(records)})
}

// markAttendance takes either a scanned QR payload or an explicit user id.
func (s *Server) markAttendance(c *gin.Context) {
	var req struct {
		QRData string `json:"qr_data"`
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	if req.QRData != "" {
		writeResult(c, http.StatusCreated, svc.ScanAttendance(c.Request.Context(), c.Param("id"), req.QRData))
		return
	}
	writeResult(c, http.StatusCreated, svc.MarkAttendance(c.Request.Context(), c.Param("id"), req.UserID, ""))
}

func (s *Server) exportAttendance(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	res := svc.ExportAttendance(c.Request.Context(), c.Param("id"), &buf)
	if !res.OK {
		writeResult(c, http.StatusOK, res)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+res.ID+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) listStalls(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"stalls": svc.FoodStalls()})
}

// stallRequest treats a missing is_active as true.
type stallRequest struct {
	model.FoodStall
	IsActive *bool `json:"is_active"`
}

func (r stallRequest) stall() model.FoodStall {
	st := r.FoodStall
	st.IsActive = r.IsActive == nil || *r.IsActive
	st.Rating, st.ReviewCount, st.Reviews = 0, 0, nil
	return st
}

func (s *Server) createStall(c *gin.Context) {
	var req stallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	writeResult(c, http.StatusCreated, svc.AddFoodStall(c.Request.Context(), req.stall()))
}

func (s *Server) updateStall(c *gin.Context) {
	var req stallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	st := req.stall()
	st.ID = c.Param("id")
	writeResult(c, http.StatusOK, svc.UpdateFoodStall(c.Request.Context(), st))
}

func (s *Server) addReview(c *gin.Context) {
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	res := svc.AddFoodStallReview(c.Request.Context(), c.Param("id"), model.Review{Rating: req.Rating, Comment: req.Comment})
	writeResult(c, http.StatusCreated, res)
}

func (s *Server) submitFeedback(c *gin.Context) {
	var f model.Feedback
	if err := c.ShouldBindJSON(&f); err != nil {
		badRequest(c, err)
		return
	}
	svc, ok := s.service(c)
	if !ok {
		return
	}
	writeResult(c, http.StatusCreated, svc.SubmitFeedback(c.Request.Context(), f))
}

func (s *Server) listFeedback(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	svc, ok := s.service(c)
	if !ok {
		return
	}
	list, res := svc.Feedback(c.Request.Context(), limit)
	if !res.OK {
		writeResult(c, http.StatusOK, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": list})
}

func (s *Server) analytics(c *gin.Context) {
	svc, ok := s.service(c)
	if !ok {
		return
	}
	d, res := svc.Analytics(c.Request.Context())
	if !res.OK {
		writeResult(c, http.StatusOK, res)
		return
	}
	c.JSON(http.StatusOK, d)
}

// upload stores an event or stall image from a multipart file or a JSON
// data URL.
func (s *Server) upload(c *gin.Context) {
	if s.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	folder := c.DefaultQuery("kind", "events")
	if folder != "events" && folder != "stalls" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be events or stalls"})
		return
	}

	var (
		result *cloudinary.UploadResult
		err    error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		result, err = s.Uploader.UploadBytes(c.Request.Context(), folder, data, header.Filename)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": `provide {"data": "<base64 data URL>"}`})
			return
		}
		result, err = s.Uploader.UploadDataURL(c.Request.Context(), folder, body.Data)
	}
	if errors.Is(err, errors.NotValid) {
		badRequest(c, err)
		return
	} else if err != nil {
		logger.Errorf("image upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       result.SecureURL,
		"public_id": result.PublicID,
		"width":     result.Width,
		"height":    result.Height,
		"bytes":     result.Bytes,
	})
}
