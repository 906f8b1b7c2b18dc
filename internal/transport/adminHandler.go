package transport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/schatha/stamford-parking-system-sub001/internal/database/redisStore"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/schatha/stamford-parking-system-sub001/internal/service"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	sessionService service.SessionService
	deadLetters    redisStore.EventDeadLetterStore
}

func NewAdminHandler(sessionService service.SessionService, deadLetters redisStore.EventDeadLetterStore) *AdminHandler {
	return &AdminHandler{sessionService: sessionService, deadLetters: deadLetters}
}

// ListSessions filters by ?status=&zone_id=&vehicle_id=&user_id=&limit=&offset=.
func (h *AdminHandler) ListSessions(c *gin.Context) {
	filter := entity.SessionFilter{Status: entity.SessionStatus(c.Query("status"))}

	for key, dst := range map[string]*int64{
		"zone_id":    &filter.ZoneID,
		"vehicle_id": &filter.VehicleID,
		"user_id":    &filter.UserID,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(c, &entity.ValidationError{Field: key, Message: "must be an integer"})
			return
		}
		*dst = v
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.sessionService.ListSessions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// Sweep runs the expiry and stale-payment passes immediately.
func (h *AdminHandler) Sweep(c *gin.Context) {
	ctx := c.Request.Context()

	expired, err := h.sessionService.ExpireSessions(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	cancelled, err := h.sessionService.ReapStalePending(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"expired":   expired,
		"cancelled": cancelled,
	}).Info("Manual session sweep completed")

	c.JSON(http.StatusOK, gin.H{"expired": expired, "cancelled": cancelled})
}

// FailedEvents lists lifecycle events the broker rejected, newest first.
func (h *AdminHandler) FailedEvents(c *gin.Context) {
	if h.deadLetters == nil {
		c.JSON(http.StatusOK, gin.H{"events": []*redisStore.FailedEvent{}, "total": 0})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	ctx := c.Request.Context()

	events, err := h.deadLetters.List(ctx, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.deadLetters.Size(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}
