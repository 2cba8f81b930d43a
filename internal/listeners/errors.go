package listeners

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error envelope for the dashboard API.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
	Path      string      `json:"path"`
	Method    string      `json:"method"`
	Message   string      `json:"message,omitempty"`
}

// ErrorDetail carries the error specifics.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Hint    string      `json:"hint,omitempty"`
}

// SuccessResponse is the standard envelope for successful responses.
type SuccessResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Standardized error codes.
const (
	// Client errors (4xx)
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeNotFound   = "NOT_FOUND"

	// Server errors (5xx)
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"

	// Business logic errors
	ErrCodeCameraBusy      = "CAMERA_BUSY"
	ErrCodeCameraNotFound  = "CAMERA_NOT_FOUND"
	ErrCodeDatabaseError   = "DATABASE_ERROR"
	ErrCodeValidationError = "VALIDATION_ERROR"
)

// RespondWithError sends a standardized error response.
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}, hint string) {
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Message: message,
			Code:    errorCode,
			Details: details,
			Hint:    hint,
		},
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
	})
}

// RespondWithSuccess sends a standardized success response.
func RespondWithSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, SuccessResponse{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// BadRequest - 400
func BadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeBadRequest, message, details,
		"Check that the request parameters are correct")
}

// NotFound - 404
func NotFound(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusNotFound, ErrCodeNotFound, message, details,
		"Check that the resource exists and the identifier is correct")
}

// InternalServerError - 500
func InternalServerError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, ErrCodeInternalServer, message, details,
		"Contact the development team if the error persists")
}

// CameraNotFound - business error: unknown camera id
func CameraNotFound(c *gin.Context, cameraID int) {
	RespondWithError(c, http.StatusNotFound, ErrCodeCameraNotFound,
		"Camera not found",
		gin.H{
			"camera_id": cameraID,
			"reason":    "The requested camera is not registered on this server",
		},
		"Use GET /api/cameras to list the available cameras")
}

// ValidationError - generic field validation error
func ValidationError(c *gin.Context, field string, message string) {
	RespondWithError(c, http.StatusBadRequest, ErrCodeValidationError,
		"Validation error",
		gin.H{
			"field":  field,
			"reason": message,
		},
		"Check that all required fields are present and correctly typed")
}

// DatabaseError - database failure
func DatabaseError(c *gin.Context, operation string, err error) {
	RespondWithError(c, http.StatusInternalServerError, ErrCodeDatabaseError,
		"Database error",
		gin.H{
			"operation": operation,
			"error":     err.Error(),
		},
		"Check database connectivity. Contact the administrator if the error persists")
}

// Success - generic 200 response
func Success(c *gin.Context, data interface{}, message string) {
	RespondWithSuccess(c, http.StatusOK, data, message)
}

// Created - 201
func Created(c *gin.Context, data interface{}, message string) {
	RespondWithSuccess(c, http.StatusCreated, data, message)
}
