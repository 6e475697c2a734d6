package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type deliveryStatusRequest struct {
	MessageSID string `json:"messageSid" binding:"required"`
	Status     string `json:"status" binding:"required"`
}

// NotificationStatus handles delivery callbacks from the messaging gateway.
// The gateway retries on non-2xx, so unknown message SIDs are acknowledged
// rather than rejected.
func (s *Server) NotificationStatus(c *gin.Context) {
	var req deliveryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.paymentSvc.ProcessDeliveryStatus(c.Request.Context(), req.MessageSID, req.Status); err != nil {
		s.log.Warn("delivery status not applied", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
