package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/schatha/stamford-parking-system-sub001/internal/service"
	"github.com/shopspring/decimal"
)

type ZoneHandler struct {
	zoneService service.ZoneService
}

func NewZoneHandler(zoneService service.ZoneService) *ZoneHandler {
	return &ZoneHandler{zoneService: zoneService}
}

type estimateRequest struct {
	DurationHours decimal.Decimal `json:"duration_hours"`
}

func (h *ZoneHandler) ListZones(c *gin.Context) {
	zones, err := h.zoneService.ListZones(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"zones": zones, "count": len(zones)})
}

func (h *ZoneHandler) GetZone(c *gin.Context) {
	zone, err := h.zoneService.GetZone(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, zone)
}

// CheckRestrictions previews a session: ?start=RFC3339&duration_hours=2.
// start defaults to now.
func (h *ZoneHandler) CheckRestrictions(c *gin.Context) {
	start, err := timeQuery(c, "start")
	if err != nil {
		respondError(c, err)
		return
	}
	hours, err := decimal.NewFromString(c.Query("duration_hours"))
	if err != nil {
		respondError(c, &entity.ValidationError{Field: "duration_hours", Message: "must be a number"})
		return
	}

	check, err := h.zoneService.CheckRestrictions(c.Request.Context(), c.Param("number"), start, hours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, check)
}

func (h *ZoneHandler) NextAvailable(c *gin.Context) {
	from, err := timeQuery(c, "from")
	if err != nil {
		respondError(c, err)
		return
	}

	next, err := h.zoneService.NextAvailableTime(c.Request.Context(), c.Param("number"), from)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"next_available": next})
}

func (h *ZoneHandler) EstimateCost(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	estimate, err := h.zoneService.EstimateCost(c.Request.Context(), c.Param("number"), req.DurationHours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, estimate)
}

func timeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &entity.ValidationError{Field: key, Message: "must be an RFC3339 timestamp"}
	}
	return t, nil
}
