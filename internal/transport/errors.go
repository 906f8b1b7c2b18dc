package transport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/sirupsen/logrus"
)

// respondError maps service errors onto HTTP statuses. Anything unrecognised
// is logged and reported as 500 without its message.
func respondError(c *gin.Context, err error) {
	var (
		validation *entity.ValidationError
		notFound   *entity.NotFoundError
		conflict   *entity.ConflictError
		restricted *entity.RestrictionError
		limit      *entity.LimitExceededError
		payment    *entity.PaymentError
	)

	switch {
	case errors.As(err, &validation), errors.Is(err, entity.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.Is(err, entity.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &restricted):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        restricted.Error(),
			"restrictions": restricted.Restrictions,
		})
	case errors.As(err, &limit):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           limit.Error(),
			"max_hours":       limit.MaxHours,
			"remaining_hours": limit.Remaining,
		})
	case errors.Is(err, entity.ErrNoAvailability):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &payment):
		logrus.WithError(err).Warn("Payment gateway rejected request")
		c.JSON(http.StatusPaymentRequired, gin.H{"error": payment.Error()})
	default:
		_ = c.Error(err)
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled service error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
