// Package response renders the API's JSON envelope. Every endpoint answers
// either {"success": true, "data": ...} or {"success": false, "error":
// {"code", "message"}}; the sync client decodes the same shape.
package response

import "github.com/gin-gonic/gin"

// Success writes the data half of the envelope.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

// Error writes the error half with a machine-readable code such as
// NOT_OWNER or RULE_RUNNING.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// ErrorWithDetails adds a details payload to the error, used for per-field
// validation failures.
func ErrorWithDetails(c *gin.Context, statusCode int, code, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
