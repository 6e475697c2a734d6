package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) BlockWallet(c *gin.Context) {
	s.toggleBlock(c, true)
}

func (s *Server) UnblockWallet(c *gin.Context) {
	s.toggleBlock(c, false)
}

func (s *Server) toggleBlock(c *gin.Context, block bool) {
	if err := s.paymentSvc.ToggleBlockWallet(c.Request.Context(), c.Param("tokenCode"), block); err != nil {
		AbortWithError(c, err)
		return
	}

	status := "unblocked"
	if block {
		status = "blocked"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
