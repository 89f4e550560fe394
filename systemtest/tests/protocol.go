package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/store"
)

// Env is the running backend shared by the system tests.
type Env struct {
	Engine    *gin.Engine
	Agents    store.AgentStore
	Artifacts store.ArtifactStore
}

func TestHealthCheck(t *testing.T, router *gin.Engine) {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestProtocol(t *testing.T, env Env) {
	ctx := context.Background()
	var agentID string

	t.Run("new agent is assigned an id", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodPost, "/checkin", dto.CheckinRequest{Hostname: "h1", OSName: "linux"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.CheckinResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Check-in successful", resp.Message)
		assert.Equal(t, dto.NoTask, resp.Task)
		require.NotEmpty(t, resp.AgentID)
		agentID = resp.AgentID

		rec, err := env.Agents.GetAgent(ctx, agentID)
		require.NoError(t, err)
		assert.Equal(t, "h1", rec.Hostname)
		assert.False(t, rec.LastSeen.IsZero())
	})

	t.Run("pending task is delivered once", func(t *testing.T) {
		require.NotEmpty(t, agentID)
		require.NoError(t, env.Agents.SetPendingTask(ctx, agentID, "whoami"))

		rr := doJSON(env.Engine, http.MethodPost, "/checkin", dto.CheckinRequest{AgentID: agentID, Hostname: "h1"})
		var resp dto.CheckinResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "whoami", resp.Task)

		rr = doJSON(env.Engine, http.MethodPost, "/checkin", dto.CheckinRequest{AgentID: agentID, Hostname: "h1"})
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, dto.NoTask, resp.Task)
	})

	t.Run("result is stored under the agent prefix", func(t *testing.T) {
		require.NotEmpty(t, agentID)
		output := "root"
		rr := doJSON(env.Engine, http.MethodPost, "/results", dto.ResultRequest{AgentID: agentID, TaskResult: &output})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ResultResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Contains(t, resp.Key, agentID+"/")

		content, err := env.Artifacts.GetArtifact(ctx, resp.Key)
		require.NoError(t, err)
		assert.Equal(t, []byte("root"), content)
	})

	t.Run("empty check-in is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/checkin", nil)
		rr := httptest.NewRecorder()
		env.Engine.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("result without agent id is rejected", func(t *testing.T) {
		output := "root"
		rr := doJSON(env.Engine, http.MethodPost, "/results", dto.ResultRequest{TaskResult: &output})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
