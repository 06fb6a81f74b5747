// Package validation provides input validation helpers and middleware.
package validation

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// HashLength is the exact length, in characters, of a fingerprint hash.
const HashLength = 32

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidFingerprintHash reports whether s is exactly HashLength characters
// of well-formed UTF-8 with no NUL. The alphabet is otherwise not restricted;
// clients hash with whatever they like.
func IsValidFingerprintHash(s string) bool {
	return utf8.ValidString(s) &&
		!strings.ContainsRune(s, 0) &&
		utf8.RuneCountInString(s) == HashLength
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidHash checks that a field is a fingerprint hash
func ValidHash(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidFingerprintHash(value) {
			return &ValidationError{Field: field, Message: "must be exactly 32 characters"}
		}
		return nil
	}
}

// HashParamMiddleware rejects requests whose named URL parameter is not a
// fingerprint hash.
func HashParamMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsValidFingerprintHash(c.Param(param)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_hash",
				"message": "hash must be exactly 32 characters",
			})
			return
		}
		c.Next()
	}
}
