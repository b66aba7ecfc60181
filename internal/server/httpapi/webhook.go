package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

type webhookEnvelope struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

func (s *Server) handleWebhook(c *gin.Context) {
	var env webhookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if env.Data == nil {
		env.Data = json.RawMessage(`{}`)
	}

	handled, err := s.webhook.Handle(c.Request.Context(), c.GetHeader("X-Webhook-Secret"), env.Event, env.Data)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"handled": handled})
}
