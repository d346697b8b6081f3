package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusCoder is implemented by errors that know their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// PublicMessenger is implemented by errors whose message is safe to show
// to the caller.
type PublicMessenger interface {
	PublicMessage() string
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithError sends an error response. Errors that carry no status are
// reported as a generic 500 so transport details never leak to the client.
func RespondWithError(c *gin.Context, err error) {
	status, message := Classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, NewErrorResponse(message))
}

// Classify resolves the HTTP status and client-facing message for err.
func Classify(err error) (int, string) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
		message = err.Error()
	}
	var pm PublicMessenger
	if errors.As(err, &pm) {
		message = pm.PublicMessage()
	}
	return status, message
}
