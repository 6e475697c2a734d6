package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type submitPaymentRequest struct {
	Payment      int      `json:"payment" binding:"required"`
	Amount       float64  `json:"amount"`
	ReferenceIDs []string `json:"referenceIds" binding:"required"`
}

func (s *Server) SubmitPaymentRun(c *gin.Context) {
	programID, err := strconv.ParseInt(c.Param("programId"), 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req submitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	jobCount, err := s.paymentSvc.SubmitPaymentRun(
		c.Request.Context(),
		programID,
		req.Payment,
		req.Amount,
		req.ReferenceIDs,
		requestScope(c),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobCount": jobCount})
}

func (s *Server) GetPaymentProgress(c *gin.Context) {
	programID, err := strconv.ParseInt(c.Param("programId"), 10, 64)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pending, err := s.paymentSvc.Progress(c.Request.Context(), programID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pending": pending})
}
