package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/conversation"
	"github.com/coursemate/coursemate/internal/knowledge"
)

// Request validation bounds, mirrored in the handler docs.
const (
	maxQueryLength  = 500
	maxSearchLength = 200
	maxRecommendK   = 20
	maxSearchK      = 50
	maxCategoryK    = 100

	defaultSearchK   = 10
	defaultCategoryK = 10
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "歡迎使用AI課程推薦API",
		"version": "1.0.0",
		"health":  "/health",
	})
}

type recommendRequest struct {
	Query     string `json:"query"`
	K         int    `json:"k"`
	SessionID string `json:"session_id,omitempty"`
}

type recommendResponse struct {
	Query             string             `json:"query"`
	Success           bool               `json:"success"`
	Recommendation    string             `json:"recommendation"`
	RetrievedCourses  []knowledge.Result `json:"retrieved_courses"`
	TotalFound        int                `json:"total_found"`
	ResponseTime      float64            `json:"response_time"`
	SessionID         string             `json:"session_id,omitempty"`
	FollowupQuestions []string           `json:"followup_questions,omitempty"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "無效的請求格式: "+err.Error())
		return
	}
	if req.Query == "" || len(req.Query) > maxQueryLength {
		s.writeError(w, http.StatusBadRequest, "query 長度須介於 1 到 500 字元")
		return
	}
	if req.K < 0 || req.K > maxRecommendK {
		s.writeError(w, http.StatusBadRequest, "k 須介於 1 到 20，省略或填 0 使用預設值")
		return
	}

	start := time.Now()
	query := req.Query

	// A session threads feedback signals into retrieval.
	var sessionID uuid.UUID
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "無效的 session_id")
			return
		}
		sessionID = id
		if sctx, err := s.sessions.Context(r.Context(), sessionID); err == nil {
			query = conversation.RefineQuery(query, sctx)
		} else if !errors.Is(err, conversation.ErrSessionNotFound) {
			s.logger.Warn("loading session context", "session_id", sessionID, "error", err)
		}
	}

	rec, err := s.pipeline.Recommend(r.Context(), query, req.K)
	if err != nil {
		s.logger.Error("recommendation failed", "query", req.Query, "error", err)
		s.writeError(w, http.StatusInternalServerError, "推薦過程中發生錯誤")
		return
	}

	resp := recommendResponse{
		Query:            req.Query,
		Success:          rec.Success,
		Recommendation:   rec.Recommendation,
		RetrievedCourses: rec.Courses,
		TotalFound:       len(rec.Courses),
		ResponseTime:     time.Since(start).Seconds(),
	}

	if sessionID != uuid.Nil {
		resp.SessionID = sessionID.String()
		if err := s.sessions.AddMessage(r.Context(), sessionID, ai.RoleUser, req.Query); err != nil {
			s.logger.Warn("recording user message", "session_id", sessionID, "error", err)
		}
		if err := s.sessions.AddMessage(r.Context(), sessionID, ai.RoleAssistant, rec.Recommendation); err != nil {
			s.logger.Warn("recording assistant message", "session_id", sessionID, "error", err)
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchResponse struct {
	Query        string             `json:"query"`
	Courses      []knowledge.Result `json:"courses"`
	TotalFound   int                `json:"total_found"`
	ResponseTime float64            `json:"response_time"`
}

// handleSearch is retrieval only, no generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "無效的請求格式: "+err.Error())
		return
	}
	if req.Query == "" || len(req.Query) > maxSearchLength {
		s.writeError(w, http.StatusBadRequest, "query 長度須介於 1 到 200 字元")
		return
	}
	if req.K < 0 || req.K > maxSearchK {
		s.writeError(w, http.StatusBadRequest, "k 須介於 1 到 50，省略或填 0 使用預設值")
		return
	}
	if req.K == 0 {
		req.K = defaultSearchK
	}

	start := time.Now()
	courses, err := s.pipeline.Retrieve(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error("search failed", "query", req.Query, "error", err)
		s.writeError(w, http.StatusInternalServerError, "搜索過程中發生錯誤")
		return
	}
	if courses == nil {
		courses = []knowledge.Result{}
	}

	s.writeJSON(w, http.StatusOK, searchResponse{
		Query:        req.Query,
		Courses:      courses,
		TotalFound:   len(courses),
		ResponseTime: time.Since(start).Seconds(),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.pipeline.Categories(r.Context())
	if err != nil {
		s.logger.Error("listing categories", "error", err)
		s.writeError(w, http.StatusInternalServerError, "獲取類別時發生錯誤")
		return
	}
	if categories == nil {
		categories = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"total":      len(categories),
	})
}

func (s *Server) handleCoursesByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")

	limit := defaultCategoryK
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCategoryK {
			s.writeError(w, http.StatusBadRequest, "limit 須介於 1 到 100")
			return
		}
		limit = n
	}

	courses, err := s.pipeline.CoursesByCategory(r.Context(), category)
	if err != nil {
		s.logger.Error("listing courses by category", "category", category, "error", err)
		s.writeError(w, http.StatusInternalServerError, "獲取課程時發生錯誤")
		return
	}

	returned := courses
	if len(returned) > limit {
		returned = returned[:limit]
	}
	if returned == nil {
		returned = []knowledge.Entry{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"category":    category,
		"courses":     returned,
		"total_found": len(courses),
		"returned":    len(returned),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Stats(r.Context())
	if err != nil {
		s.logger.Error("reading stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "獲取統計信息時發生錯誤")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_courses":    stats.TotalCourses,
		"total_categories": stats.TotalCategories,
		"categories":       stats.Categories,
		"model_name":       stats.ChatModel,
		"embedding_model":  stats.EmbeddingModel,
		"system_status":    "ready",
		"last_updated":     stats.LastUpdated,
	})
}

func (s *Server) handleCheckUpdates(w http.ResponseWriter, r *http.Request) {
	status, err := s.pipeline.CheckForUpdates(r.Context())
	if err != nil {
		s.logger.Error("checking updates", "error", err)
		s.writeError(w, http.StatusInternalServerError, "檢查更新時發生錯誤")
		return
	}

	message := "課程資料已是最新"
	if status.NeedsUpdate {
		message = "課程資料有更新，建議重建知識庫"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"updated":   status.NeedsUpdate,
		"message":   message,
		"detail":    status,
		"timestamp": time.Now(),
		"status":    "success",
	})
}

// handleRebuild kicks off a background rebuild. Only one rebuild runs at
// a time; concurrent requests get a conflict.
func (s *Server) handleRebuild(w http.ResponseWriter, _ *http.Request) {
	if !s.rebuilding.CompareAndSwap(false, true) {
		s.writeError(w, http.StatusConflict, "知識庫重建已在進行中")
		return
	}

	go func() {
		defer s.rebuilding.Store(false)

		// Bounded independently of the HTTP request lifetime.
		ctx, cancel := context.WithTimeout(s.baseCtx, 10*time.Minute)
		defer cancel()

		s.logger.Info("knowledge base rebuild started")
		if err := s.pipeline.Rebuild(ctx); err != nil {
			s.logger.Error("knowledge base rebuild failed", "error", err)
			return
		}
		s.logger.Info("knowledge base rebuild finished")
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "知識庫重建任務已啟動",
		"status":  "processing",
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.Create(r.Context())
	if err != nil {
		s.logger.Error("creating session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "建立會話時發生錯誤")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"session_id": id.String()})
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "無效的 session_id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleSessionContext(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	sctx, err := s.sessions.Context(r.Context(), id)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, "會話不存在")
		return
	}
	if err != nil {
		s.logger.Error("reading session context", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "讀取會話時發生錯誤")
		return
	}
	s.writeJSON(w, http.StatusOK, sctx)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	stats, err := s.sessions.SessionStats(r.Context(), id)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, "會話不存在")
		return
	}
	if err != nil {
		s.logger.Error("reading session stats", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "讀取會話統計時發生錯誤")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	err := s.sessions.Delete(r.Context(), id)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		s.writeError(w, http.StatusNotFound, "會話不存在")
		return
	}
	if err != nil {
		s.logger.Error("deleting session", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "刪除會話時發生錯誤")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	FeedbackType    string   `json:"feedback_type"`
	Content         string   `json:"content"`
	RejectedCourses []string `json:"rejected_courses,omitempty"`
	Reasons         []string `json:"reasons,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "無效的請求格式: "+err.Error())
		return
	}

	err := s.sessions.AddFeedback(r.Context(), id, req.FeedbackType, req.Content,
		req.RejectedCourses, req.Reasons)
	switch {
	case errors.Is(err, conversation.ErrInvalidFeedbackKind):
		s.writeError(w, http.StatusBadRequest,
			"feedback_type 須為 dissatisfied、partially_satisfied 或 satisfied")
		return
	case errors.Is(err, conversation.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "會話不存在")
		return
	case err != nil:
		s.logger.Error("recording feedback", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "記錄反饋時發生錯誤")
		return
	}

	resp := map[string]any{"status": "recorded"}
	ask, err := s.sessions.ShouldAskFollowup(r.Context(), id)
	if err != nil {
		s.logger.Warn("checking followup", "session_id", id, "error", err)
	} else if ask {
		resp["followup_questions"] = conversation.FollowupQuestions(req.Content)
	}

	s.writeJSON(w, http.StatusOK, resp)
}
