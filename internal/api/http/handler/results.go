package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/EternisAI/silo-c2/internal/agents"
	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/results"
)

type ResultsHandler struct {
	resultService *results.Service
	maxBodySize   int64
}

// NewResultsHandler accepts bodies up to maxBodySize bytes, or
// DefaultMaxResultBodySize when maxBodySize is not positive.
func NewResultsHandler(resultService *results.Service, maxBodySize int64) *ResultsHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxResultBodySize
	}
	return &ResultsHandler{
		resultService: resultService,
		maxBodySize:   maxBodySize,
	}
}

// StoreResult persists one task result as an artifact
// POST /results
func (h *ResultsHandler) StoreResult(c *gin.Context) {
	if h.resultService == nil {
		slog.Error("Result rejected: artifact storage is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgConfigError})
		return
	}

	var req dto.ResultRequest
	if err := decodeBody(c, &req, h.maxBodySize); err != nil {
		slog.Warn("Invalid result body", "error", err, "client_ip", c.ClientIP())
		abortOnBodyError(c, err)
		return
	}

	if agents.ValidateAgentID(req.AgentID) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId is required."})
		return
	}

	var content string
	switch {
	case req.EncryptedData != nil && *req.EncryptedData != "":
		content = *req.EncryptedData
	case req.TaskResult != nil:
		content = *req.TaskResult
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskResult is required."})
		return
	}

	key, err := h.resultService.Store(c.Request.Context(), req.AgentID, []byte(content))
	if err != nil {
		slog.Error("Failed to store result", "error", err, "agent_id", req.AgentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
		return
	}

	c.JSON(http.StatusOK, dto.ResultResponse{
		Message: "Result stored successfully",
		Key:     key,
	})
}
