package response

import "github.com/gin-gonic/gin"

type APIError struct {
	Message string `json:"message"`
}

type Meta struct {
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Meta      *Meta     `json:"meta,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

func RespondOK(c *gin.Context, status int, data any, meta *Meta) {
	c.JSON(status, APIResponse{
		Data:      data,
		Meta:      meta,
		RequestID: c.GetString("request_id"),
	})
}

func RespondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, APIResponse{
		Error:     &APIError{Message: message},
		RequestID: c.GetString("request_id"),
	})
}
