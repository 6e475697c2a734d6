package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reliefops/disburse/internal/fsp"
	visadomain "github.com/reliefops/disburse/internal/fsp/visa/domain"
	voucherdomain "github.com/reliefops/disburse/internal/fsp/voucher/domain"
	programdomain "github.com/reliefops/disburse/internal/program/domain"
	regdomain "github.com/reliefops/disburse/internal/registration/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, voucherdomain.ErrAlreadySent):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isUpstreamError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	var validationErr *fsp.RemoteValidationError
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, regdomain.ErrAttributeUndefined),
		errors.Is(err, regdomain.ErrAttributeType),
		errors.As(err, &validationErr):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, regdomain.ErrNotFound),
		errors.Is(err, programdomain.ErrNotFound),
		errors.Is(err, visadomain.ErrCustomerNotFound),
		errors.Is(err, visadomain.ErrWalletNotFound),
		errors.Is(err, voucherdomain.ErrVoucherNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	var unavailableErr *fsp.RemoteUnavailableError
	return errors.As(err, &unavailableErr)
}
