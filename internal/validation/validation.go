// Package validation provides input validation for the ticket API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (256KB). Intake forms are
// small; anything larger is abuse.
const MaxRequestSize = 256 << 10

// MaxStringLength is the maximum length for free-text fields
const MaxStringLength = 4000

// refRegex validates platform references: channels, members, and roles are
// numeric snowflake-style identifiers.
var refRegex = regexp.MustCompile(`^[0-9]{1,32}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidRef checks whether a string is a well-formed platform reference.
func IsValidRef(ref string) bool {
	return refRegex.MatchString(ref)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
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

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
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

// ValidRef checks if a field is a well-formed platform reference
func ValidRef(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidRef(value) {
			return &ValidationError{Field: field, Message: "must be a numeric platform reference"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ChannelParamMiddleware validates the :channel URL parameter on routes that
// use it, rejecting malformed references before they reach a handler.
func ChannelParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("channel")
		if ref != "" && !IsValidRef(ref) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_channel",
				"message": "channel must be a numeric platform reference",
			})
			return
		}
		c.Next()
	}
}
