package middleware

import (
	"errors"
	"net/http"

	"go-interview-backend/internal/delivery/http/response"
	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/apperror"
	"go-interview-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// domainStatus maps domain sentinels to HTTP errors. Order matters: the first match wins,
// so ErrProviderNotFound must precede ErrNotFound.
var domainStatus = []struct {
	err     error
	code    int
	message string
}{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "Calendar account is not connected or the grant expired. Please reconnect."},
	{domain.ErrInsufficientScope, http.StatusUnauthorized, "Calendar grant lacks event access. Please reconnect."},
	{domain.ErrForbidden, http.StatusForbidden, "You do not have access to this resource"},
	{domain.ErrProviderTransient, http.StatusBadGateway, "Calendar provider is unavailable. Please try again."},
	{domain.ErrProviderRejected, http.StatusBadGateway, "Calendar provider rejected the request"},
	{domain.ErrProviderNotFound, http.StatusBadGateway, "Calendar event no longer exists at the provider"},
	{domain.ErrNotFound, http.StatusNotFound, "Resource not found"},
	{domain.ErrVersionConflict, http.StatusConflict, "Interview was modified concurrently. Reload and retry."},
	{domain.ErrAlreadyExists, http.StatusConflict, "Resource already exists"},
	{domain.ErrInvalidTransition, http.StatusConflict, "Interview status does not allow this change"},
	{domain.ErrExternalRefImmutable, http.StatusConflict, "External event reference cannot change"},
	{domain.ErrInvalidWindow, http.StatusUnprocessableEntity, "Invalid interview time window"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "Invalid input"},
	{domain.ErrUnknownProvider, http.StatusBadRequest, "Unknown calendar provider"},
}

// ToAppError converts err into an AppError. Unknown errors become 500s.
func ToAppError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range domainStatus {
		if errors.Is(err, m.err) {
			return apperror.New(m.code, m.message, err)
		}
	}
	return apperror.Internal(err)
}

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		appErr := ToAppError(err)

		if appErr.Code >= http.StatusInternalServerError {
			// Never expose internal error details to clients.
			reqID, _ := c.Get("RequestID")
			logger.Log.Error("request failed",
				"request_id", reqID,
				"path", c.FullPath(),
				"status", appErr.Code,
				"error", err,
			)
		}
		if appErr.Code == http.StatusInternalServerError {
			response.Error(c, appErr.Code, "An unexpected error occurred. Please try again later.", nil)
			return
		}
		response.Error(c, appErr.Code, appErr.Message, nil)
	}
}
