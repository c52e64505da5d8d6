package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/storage"
	"github.com/smallbiznis/credits/internal/subscription"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware converts errors attached to the context into a
// JSON error response after the handler chain finishes.
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
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request payload"}
	case errors.Is(err, creditdomain.ErrInvalidAmount):
		return http.StatusBadRequest, errorPayload{Type: "invalid_amount", Message: "amount is invalid for this operation"}
	case errors.Is(err, creditdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{Type: "insufficient_credits", Message: "not enough available credits"}
	case errors.Is(err, creditdomain.ErrUserNotFound):
		return http.StatusNotFound, errorPayload{Type: "user_not_found", Message: "user has no credit balance"}
	case errors.Is(err, creditdomain.ErrReservationNotFound):
		return http.StatusNotFound, errorPayload{Type: "reservation_not_found", Message: "reservation does not exist"}
	case errors.Is(err, subscription.ErrPlanNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "resource does not exist"}
	case errors.Is(err, creditdomain.ErrReservationAlreadyClosed):
		return http.StatusConflict, errorPayload{Type: "reservation_already_closed", Message: "reservation was already committed or released"}
	case errors.Is(err, creditdomain.ErrContention):
		return http.StatusConflict, errorPayload{Type: "contention", Message: "operation lost too many concurrent updates, retry"}
	case errors.Is(err, creditdomain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "storage_unavailable", Message: "storage backend is unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}
