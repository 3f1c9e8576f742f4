package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"signaling-platform/internal/auth"
	"signaling-platform/internal/engine"
	"signaling-platform/internal/history"
	"signaling-platform/internal/media"
	"signaling-platform/internal/rbac"
	"signaling-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Engines  *engine.Registry
	Sessions *session.Service
	History  *history.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.DisplayName, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

// Refresh exchanges a valid refresh token for a new pair. The role is
// re-supplied by the client because refresh tokens do not carry one.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.RefreshToken == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token, role required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), claims.UserID, claims.DisplayName, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	ReceiverID   string `json:"receiver_id"`
	CallType     string `json:"call_type"`
	RenderTarget string `json:"render_target,omitempty"`
}

type acceptCallRequest struct {
	RenderTarget string `json:"render_target,omitempty"`
}

func (h Handlers) engineFor(c *gin.Context) (*engine.Engine, bool) {
	if h.Engines == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine not configured"})
		return nil, false
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return nil, false
	}
	eng, err := h.Engines.For(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine unavailable"})
		return nil, false
	}
	return eng, true
}

func (h Handlers) StartCall(c *gin.Context) {
	eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ReceiverID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "receiver_id required"})
		return
	}
	callType := session.CallType(req.CallType)
	if !callType.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_type must be voice or video"})
		return
	}

	cs, err := eng.StartCall(c.Request.Context(), req.ReceiverID, callType, media.RenderTarget(req.RenderTarget))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	var req acceptCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	if err := eng.AcceptCall(c.Request.Context(), sessionID, media.RenderTarget(req.RenderTarget)); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

func (h Handlers) DeclineCall(c *gin.Context) {
	eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	if err := eng.DeclineCall(c.Request.Context(), sessionID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

// EndCall ends the named session, or the engine's current one when the body
// omits session_id.
func (h Handlers) EndCall(c *gin.Context) {
	eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	var req struct {
		SessionID string `json:"session_id,omitempty"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if err := eng.EndCall(c.Request.Context(), req.SessionID); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

// CallState returns the engine snapshot for the authenticated user.
func (h Handlers) CallState(c *gin.Context) {
	eng, ok := h.engineFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, eng.Snapshot())
}

// CallEvents streams engine snapshots over SSE. The first event is the
// current snapshot so clients never start blind.
func (h Handlers) CallEvents(c *gin.Context) {
	eng, ok := h.engineFor(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	events := make(chan engine.Snapshot, 16)
	unregister := eng.OnChange(func(s engine.Snapshot) {
		select {
		case events <- s:
		default:
			// Slow client; it will catch up on the next snapshot.
		}
	})
	defer unregister()

	events <- eng.Snapshot()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case snap := <-events:
			data, err := json.Marshal(snap)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "event: call_state\ndata: %s\n\n", data)
			return true
		}
	})
}

// GetSession is a point read of one session record. Only a participant may
// read it.
func (h Handlers) GetSession(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	id := c.Param("session_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	cs, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	role, _ := auth.Role(c.Request.Context())
	if cs.CallerID != userID && cs.ReceiverID != userID && !rbac.IsAdmin(role) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, cs)
}

// --- History (support surface) ---

func (h Handlers) RecentHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
	}
	recs, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h Handlers) HistorySummary(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history not configured"})
		return
	}
	counts, err := h.History.CountByKind(c.Request.Context(), 200)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotAuthenticated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrCallInProgress):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotParticipant):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrTokenIssuance), errors.Is(err, engine.ErrMediaJoinFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Convenience middleware bundles.

func RequireUserAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireUser(), rbac.RequireAnyRole(roles...)}
}
