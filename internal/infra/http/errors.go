package http

import (
	"errors"
	"net/http"

	"coreconnect/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeUnauthenticated    = "UNAUTHENTICATED"
	codeModuleNotLicensed  = "MODULE_NOT_LICENSED"
	codeModuleNotEnabled   = "MODULE_NOT_ENABLED"
	codeInsufficientPerms  = "INSUFFICIENT_PERMISSIONS"
	codePolicyUnavailable  = "POLICY_UNAVAILABLE"
	codeRateLimited        = "RATE_LIMITED"
	codeRateLimitBackend   = "RATE_LIMIT_UNAVAILABLE"
	codeForbidden          = "FORBIDDEN"
	codeInvalidJSON        = "INVALID_JSON"
	codeInvalidStatus      = "INVALID_STATUS"
	codeStoreError         = "STORE_ERROR"
	codeNotFound           = "NOT_FOUND"
)

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// writeError maps domain errors onto terminal responses without echoing
// internal store errors to the caller.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeErrorCode(c, http.StatusUnauthorized, codeUnauthenticated, "unauthenticated")
	case errors.Is(err, domain.ErrModuleNotEnabled):
		writeErrorCode(c, http.StatusForbidden, codeModuleNotEnabled, "module not enabled for tenant")
	case errors.Is(err, domain.ErrInsufficientPermission):
		writeErrorCode(c, http.StatusForbidden, codeInsufficientPerms, "insufficient permissions")
	case errors.Is(err, domain.ErrPolicyStoreUnavailable), errors.Is(err, domain.ErrTenantScopeRequired):
		writeErrorCode(c, http.StatusForbidden, codePolicyUnavailable, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(c, http.StatusNotFound, codeNotFound, "not found")
	default:
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
