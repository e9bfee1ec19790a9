package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/SuPReme-0/ClassLens/internal/attendance"
	"github.com/SuPReme-0/ClassLens/internal/auth"
	"github.com/SuPReme-0/ClassLens/internal/config"
	"github.com/SuPReme-0/ClassLens/internal/httpmiddleware"
	"github.com/SuPReme-0/ClassLens/internal/notify"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) bool
}

// Server exposes the attendance service over HTTP.
type Server struct {
	cfg      config.App
	svc      *attendance.Service
	registry *notify.Registry
	limiter  *httpmiddleware.SimpleTokenBucket
	checks   []HealthCheck
}

// NewServer wires handlers to the service and subscriber registry.
func NewServer(cfg config.App, svc *attendance.Service, registry *notify.Registry, limiter *httpmiddleware.SimpleTokenBucket, checks ...HealthCheck) *Server {
	return &Server{cfg: cfg, svc: svc, registry: registry, limiter: limiter, checks: checks}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger("/healthz", "/metrics"))
	r.Use(corsMiddleware(s.cfg.AllowedOrigin))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealth)
	r.GET("/ws", notify.Handler(s.registry, s.cfg.AllowedOrigin))

	v := r.Group("/api")
	if s.limiter != nil {
		v.Use(s.limiter.GinMiddleware())
	}
	v.POST("/sessions/start", s.handleStartSession)
	v.POST("/sessions/validate", s.handleValidateSession)
	v.POST("/attendance/mark", s.handleMark)
	v.GET("/attendance/class/:class_id", s.handleClassAttendance)
	v.GET("/attendance/student/:student_id", s.handleStudentAttendance)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{"status": "ok", "subscribers": s.registry.Len()}
	status := http.StatusOK
	for _, hc := range s.checks {
		ok := hc.Check(ctx)
		body[hc.Name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req struct {
		ClassID   string `json:"class_id"`
		TeacherID string `json:"teacher_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	token, err := s.svc.StartSession(c.Request.Context(), req.ClassID, req.TeacherID)
	if err != nil {
		respondError(c, err, map[string]any{"class_id": req.ClassID, "teacher_id": req.TeacherID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_token": token})
}

func (s *Server) handleValidateSession(c *gin.Context) {
	var req struct {
		SessionToken string `json:"session_token"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c)
			return
		}
	}
	if req.SessionToken == "" {
		req.SessionToken = auth.BearerToken(c)
	}
	info, err := s.svc.ValidateSession(c.Request.Context(), req.SessionToken)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, info)
}

type markRequest struct {
	ClassID        string          `json:"class_id"`
	StudentID      string          `json:"student_id"`
	SignalStrength *float64        `json:"signal_strength"`
	ScanPayload    json.RawMessage `json:"scan_payload"`
}

func (s *Server) handleMark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	rec, err := s.svc.Mark(c.Request.Context(), attendance.MarkRequest{
		ClassID:        req.ClassID,
		StudentID:      req.StudentID,
		SignalStrength: req.SignalStrength,
		ScanPayload:    opaquePayload(req.ScanPayload),
	})
	if err != nil {
		respondError(c, err, map[string]any{"class_id": req.ClassID, "student_id": req.StudentID})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleClassAttendance(c *gin.Context) {
	classID := c.Param("class_id")
	records, err := s.svc.ClassAttendance(c.Request.Context(), classID, c.Query("date"))
	if err != nil {
		respondError(c, err, map[string]any{"class_id": classID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleStudentAttendance(c *gin.Context) {
	studentID := c.Param("student_id")
	records, err := s.svc.StudentAttendance(c.Request.Context(), studentID)
	if err != nil {
		respondError(c, err, map[string]any{"student_id": studentID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// opaquePayload keeps the scan payload as text: JSON strings are unquoted,
// any other JSON value is stored verbatim.
func opaquePayload(raw json.RawMessage) *string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	return &trimmed
}

func badJSON(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body", "code": "bad_request"})
}

// respondError maps domain errors to status codes. Unknown errors are logged
// and reported without detail.
func respondError(c *gin.Context, err error, fields map[string]any) {
	status, code, msg := http.StatusInternalServerError, "internal", "internal server error"
	switch {
	case errors.Is(err, attendance.ErrAlreadyMarked):
		status, code, msg = http.StatusBadRequest, "already_marked", err.Error()
	case errors.Is(err, attendance.ErrMissingField), errors.Is(err, attendance.ErrInvalidDate):
		status, code, msg = http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, attendance.ErrNotOwner), errors.Is(err, attendance.ErrNotEnrolled):
		status, code, msg = http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, auth.ErrInvalidSignature), errors.Is(err, auth.ErrMalformed), errors.Is(err, auth.ErrExpired),
		errors.Is(err, attendance.ErrClassNotFound):
		status, code, msg = http.StatusUnauthorized, "unauthorized", err.Error()
	default:
		log.Error().Err(err).Fields(fields).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func corsMiddleware(origin string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if _, ok := skipped[c.Request.URL.Path]; ok {
			return
		}
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
