package server

import (
	"github.com/gin-gonic/gin"
	"github.com/reliefops/disburse/internal/scope"
)

const scopeHeader = "X-Scope"

// Actions gated by the permission check.
const (
	ActionPaymentCreate = "payment:create"
	ActionPaymentRead   = "payment:read"
	ActionWalletRead    = "wallet:read"
	ActionWalletManage  = "wallet:manage"
	ActionVoucherRead   = "voucher:read"
)

func (s *Server) requirePermission(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.permission(c, action); err != nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// requestScope reads the explicit row filter from the X-Scope header. A
// missing header means unrestricted.
func requestScope(c *gin.Context) scope.Scope {
	return scope.New(c.GetHeader(scopeHeader))
}
