package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListTransactions(c *gin.Context) {
	transactions, err := s.paymentSvc.TransactionsFor(
		c.Request.Context(),
		c.Param("referenceId"),
		requestScope(c),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (s *Server) GetWallets(c *gin.Context) {
	wallets, err := s.paymentSvc.Wallets(
		c.Request.Context(),
		c.Param("referenceId"),
		requestScope(c),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

func (s *Server) ReissueWallet(c *gin.Context) {
	err := s.paymentSvc.Reissue(
		c.Request.Context(),
		c.Param("referenceId"),
		requestScope(c),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reissued"})
}
