package middleware

import (
	"crypto/subtle"
	nethttp "net/http"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

const AgentKeyHeader = "x-agent-key"

// AgentKey rejects requests whose x-agent-key header does not match key.
// An empty key means the server was started without one.
func AgentKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			response.RespondError(c, nethttp.StatusInternalServerError, service.ErrNotConfigured.Error())
			c.Abort()
			return
		}
		got := []byte(c.GetHeader(AgentKeyHeader))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			response.RespondError(c, nethttp.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
