package transport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/schatha/stamford-parking-system-sub001/internal/service"
	"github.com/schatha/stamford-parking-system-sub001/internal/transport/middleware"
	"github.com/shopspring/decimal"
)

type SessionHandler struct {
	sessionService service.SessionService
}

func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

type confirmRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type extendRequest struct {
	AdditionalHours decimal.Decimal `json:"additional_hours"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sessionService.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *SessionHandler) ConfirmPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var req confirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	session, err := h.sessionService.ConfirmPayment(c.Request.Context(), userID, sessionID, req.PaymentRef)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) ExtendSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sessionService.ExtendSession(c.Request.Context(), userID, sessionID, req.AdditionalHours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) TerminateSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	result, err := h.sessionService.TerminateSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"session":         result.Session,
		"time_used_hours": result.TimeUsedHours,
		"refund_due":      result.RefundDue,
		"refunded_total":  result.RefundedTotal,
	}
	if result.RefundError != nil {
		body["refund_warning"] = result.RefundError.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	details, err := h.sessionService.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *SessionHandler) GetUserSessions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		limit = 0
	}

	sessions, err := h.sessionService.GetUserSessions(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func currentUser(c *gin.Context) (int64, bool) {
	userID, err := middleware.UserID(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return 0, false
	}
	return userID, true
}

func sessionParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, &entity.ValidationError{Field: "id", Message: "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}
