package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EternisAI/silo-c2/internal/agents"
	"github.com/EternisAI/silo-c2/internal/api/http/dto"
)

type CheckinHandler struct {
	agentService *agents.Service
}

// NewCheckinHandler accepts a nil service; the handler then answers every
// request with a configuration error.
func NewCheckinHandler(agentService *agents.Service) *CheckinHandler {
	return &CheckinHandler{
		agentService: agentService,
	}
}

// Checkin registers or refreshes an agent and hands back its pending task
// POST /checkin
func (h *CheckinHandler) Checkin(c *gin.Context) {
	if h.agentService == nil {
		slog.Error("Check-in rejected: agent storage is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgConfigError})
		return
	}

	var req dto.CheckinRequest
	if err := decodeBody(c, &req, maxCheckinBodySize); err != nil {
		slog.Warn("Invalid check-in body", "error", err, "client_ip", c.ClientIP())
		abortOnBodyError(c, err)
		return
	}

	out, err := h.agentService.Checkin(c.Request.Context(), agents.CheckinInput{
		AgentID:       req.AgentID,
		Hostname:      req.Hostname,
		OSName:        req.OSName,
		EncryptedData: req.EncryptedData,
		SourceIP:      c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, agents.ErrInvalidAgentID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "agentId is invalid."})
			return
		}
		slog.Error("Check-in failed", "error", err, "agent_id", req.AgentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
		return
	}

	c.JSON(http.StatusOK, dto.CheckinResponse{
		Message: "Check-in successful",
		AgentID: out.AgentID,
		Task:    out.Task,
	})
}
