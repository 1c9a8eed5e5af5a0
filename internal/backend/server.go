package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/prajwalbangera/interview-voice/internal/domain"
)

// Server exposes the lifecycle and interview-store endpoints.
type Server struct {
	store      *Store
	livekitURL string
}

func NewServer(store *Store, livekitURL string) *Server {
	if livekitURL == "" {
		livekitURL = "ws://localhost:7880"
	}
	return &Server{store: store, livekitURL: livekitURL}
}

// OrgRequired rejects lifecycle calls without a tenant header.
func OrgRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Organization") == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing Organization header"})
			return
		}
		c.Next()
	}
}

func SetupRouter(mode string, srv *Server) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", srv.handleHealth)

	lifecycle := r.Group("/", OrgRequired())
	lifecycle.POST("/start_livekit_interview/", srv.handleStart)
	lifecycle.GET("/get_livekit_token/", srv.handleToken)
	lifecycle.POST("/stop_livekit_interview/", srv.handleStop)

	r.GET("/interviews", srv.handleListInterviews)
	r.POST("/interviews", srv.handleCreateInterview)
	r.GET("/interviews/metrics", srv.handleMetrics)
	r.GET("/interviews/:id", srv.handleGetInterview)
	r.GET("/interviews/:id/status", srv.handleInterviewStatus)
	r.GET("/interviews/:id/transcript", srv.handleTranscript)
	r.GET("/templates", srv.handleTemplates)

	log.Info().Str("module", "backend").Msg("router setup")
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

type startRequest struct {
	RefNum         string `json:"ref_num"`
	CustomDuration int    `json:"custom_duration"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefNum == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid ref_num"})
		return
	}

	iv, ok := s.store.GetByRef(req.RefNum)
	if !ok {
		now := time.Now().UTC()
		iv = domain.Interview{
			ID:            uuid.NewString(),
			RefNum:        req.RefNum,
			CandidateName: "Candidate " + req.RefNum,
			Position:      "Unknown",
			ScheduledAt:   now,
			Duration:      60,
			CreatedAt:     now,
		}
	}

	now := time.Now().UTC()
	if req.CustomDuration > 0 {
		iv.Duration = req.CustomDuration
	}
	iv.Status = domain.InterviewInProgress
	iv.LiveStatus = &domain.LiveStatus{
		Status:           domain.InterviewInProgress,
		StartedAt:        &now,
		RemainingSeconds: iv.Duration * 60,
	}
	iv.UpdatedAt = now
	if err := s.store.Upsert(iv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info().Str("module", "backend").Str("ref_num", req.RefNum).Msg("interview started")
	c.JSON(http.StatusOK, gin.H{"status": "started", "ref_num": req.RefNum})
}

func (s *Server) handleToken(c *gin.Context) {
	refNum := c.Query("ref_num")
	participant := c.Query("participant_name")
	roomName := c.Query("room_name")
	if refNum == "" || participant == "" || roomName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "ref_num, participant_name and room_name are required"})
		return
	}

	// Mock token only; a production deployment signs a real JWT here.
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"token":            "mock-token-" + uuid.NewString(),
		"livekit_url":      s.livekitURL,
		"room_name":        roomName,
		"participant_name": participant,
	})
}

type stopRequest struct {
	RefNum string `json:"ref_num"`
}

func (s *Server) handleStop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefNum == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid ref_num"})
		return
	}

	iv, ok := s.store.GetByRef(req.RefNum)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "interview not found"})
		return
	}

	now := time.Now().UTC()
	iv.Status = domain.InterviewCompleted
	var startedAt *time.Time
	if iv.LiveStatus != nil {
		startedAt = iv.LiveStatus.StartedAt
	}
	iv.LiveStatus = &domain.LiveStatus{
		Status:          domain.InterviewCompleted,
		StartedAt:       startedAt,
		EndedAt:         &now,
		ProgressPercent: 100,
	}
	iv.UpdatedAt = now
	if err := s.store.Upsert(iv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info().Str("module", "backend").Str("ref_num", req.RefNum).Msg("interview stopped")
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleListInterviews(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.List())
}

type createInterviewRequest struct {
	RefNum        string `json:"ref_num" binding:"required"`
	CandidateName string `json:"candidate_name" binding:"required"`
	Position      string `json:"position" binding:"required"`
	Duration      int    `json:"duration"`
}

func (s *Server) handleCreateInterview(c *gin.Context) {
	var req createInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Duration <= 0 {
		req.Duration = 60
	}

	now := time.Now().UTC()
	iv := domain.Interview{
		ID:            uuid.NewString(),
		RefNum:        req.RefNum,
		CandidateName: req.CandidateName,
		Position:      req.Position,
		ScheduledAt:   now,
		Duration:      req.Duration,
		Status:        domain.InterviewScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Upsert(iv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, iv)
}

func (s *Server) handleGetInterview(c *gin.Context) {
	iv, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "interview not found"})
		return
	}
	c.JSON(http.StatusOK, iv)
}

func (s *Server) handleInterviewStatus(c *gin.Context) {
	iv, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "interview not found"})
		return
	}

	if iv.LiveStatus == nil {
		c.JSON(http.StatusOK, domain.LiveStatus{Status: iv.Status})
		return
	}

	ls := *iv.LiveStatus
	if ls.StartedAt != nil && iv.Status == domain.InterviewInProgress {
		elapsed := time.Since(*ls.StartedAt).Seconds()
		total := float64(iv.Duration * 60)
		if total > 0 {
			ls.ProgressPercent = min(100, elapsed/total*100)
		}
		ls.RemainingSeconds = int(max(0, total-elapsed))
	}
	c.JSON(http.StatusOK, ls)
}

func (s *Server) handleTranscript(c *gin.Context) {
	iv, ok := s.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "interview not found"})
		return
	}

	entries := iv.TranscriptEntries
	if entries == nil {
		entries = []domain.TranscriptEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"interview_id": iv.ID,
		"candidate":    iv.CandidateName,
		"entries":      entries,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Metrics())
}

func (s *Server) handleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, []domain.Template{
		{
			ID:          "template-frontend",
			Name:        "Frontend Engineer",
			Role:        "Frontend Engineer",
			Description: "Covers UI fundamentals, performance, and accessibility.",
			Duration:    60,
			Topics:      []string{"React", "TypeScript", "System Design"},
			Difficulty:  "mid",
		},
		{
			ID:          "template-llm",
			Name:        "LLM Engineer",
			Role:        "LLM Engineer",
			Description: "Focus on LLM deployment, prompt engineering, and RAG.",
			Duration:    75,
			Topics:      []string{"Python", "LLM Ops", "RAG Architecture"},
			Difficulty:  "senior",
		},
	})
}

// Addr formats the listen address for a port.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
