package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	invoicedomain "github.com/smallbiznis/taxledger/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/taxledger/internal/tax/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrBadGateway     = errors.New("bad_gateway")
	ErrRateLimited    = errors.New("rate_limited")
)

// validationErrors are the domain sentinels that mean the caller sent bad
// input. The sentinel text doubles as the error code.
var validationErrors = []error{
	ErrInvalidRequest,
	taxdomain.ErrInvalidTenant,
	taxdomain.ErrInvalidJurisdictionCode,
	taxdomain.ErrInvalidJurisdictionType,
	taxdomain.ErrInvalidName,
	taxdomain.ErrInvalidID,
	taxdomain.ErrInvalidAmount,
	taxdomain.ErrInvalidTaxCode,
	taxdomain.ErrInvalidTaxRate,
	taxdomain.ErrInvalidRuleType,
	taxdomain.ErrInvalidEffectiveWindow,
	invoicedomain.ErrInvalidTenant,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrInvalidCurrency,
	invoicedomain.ErrInvalidItems,
	glsyncdomain.ErrInvalidTenant,
	glsyncdomain.ErrInvalidReference,
	glsyncdomain.ErrInvalidReferenceType,
}

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if sentinel := validationSentinel(err); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code, err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isGatewayError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "gl_sync_failed",
			Message: "general ledger sync failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationSentinel(err error) error {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isConflictError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, taxdomain.ErrDuplicateCode) ||
		errors.Is(err, invoicedomain.ErrInvoiceNotDraft)
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, taxdomain.ErrDuplicateCode):
		return "code already exists"
	case errors.Is(err, invoicedomain.ErrInvoiceNotDraft):
		return "invoice is not a draft"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, taxdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isGatewayError(err error) bool {
	return errors.Is(err, ErrBadGateway) ||
		errors.Is(err, glsyncdomain.ErrAdapterRejected) ||
		errors.Is(err, glsyncdomain.ErrAdapterUnavailable)
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_items":
		return "items"
	case "invalid_amount":
		return "items.amount"
	}
	return strings.TrimPrefix(code, "invalid_")
}

// validationErrorMessage surfaces the detail a service wrapped around the
// sentinel, if any.
func validationErrorMessage(code string, err error) string {
	if msg := strings.TrimSpace(strings.TrimPrefix(err.Error(), code+":")); msg != "" && msg != code {
		return msg
	}
	if code == "invalid_request" {
		return "invalid request"
	}
	return "invalid value"
}
