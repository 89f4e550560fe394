package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/agents"
	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/EternisAI/silo-c2/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupCheckinRouter(h *CheckinHandler) *gin.Engine {
	r := gin.New()
	r.POST("/checkin", h.Checkin)
	return r
}

func postRaw(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, r *gin.Engine, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return postRaw(r, path, string(body))
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

// failingAgentStore fails every write and records whether one was attempted.
type failingAgentStore struct {
	*store.Memory
	upsertErr error
	claimErr  error
	writes    int
}

func (f *failingAgentStore) UpsertCheckin(ctx context.Context, u store.CheckinUpdate) error {
	f.writes++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Memory.UpsertCheckin(ctx, u)
}

func (f *failingAgentStore) ClaimPendingTask(ctx context.Context, id string) (string, bool, error) {
	if f.claimErr != nil {
		return "", false, f.claimErr
	}
	return f.Memory.ClaimPendingTask(ctx, id)
}

func TestCheckinNewAgent(t *testing.T) {
	mem := store.NewMemory()
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(mem)))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{Hostname: "h1", OSName: "linux"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.CheckinResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Check-in successful", resp.Message)
	assert.NotEmpty(t, resp.AgentID)
	assert.Equal(t, dto.NoTask, resp.Task)

	rec, err := mem.GetAgent(context.Background(), resp.AgentID)
	require.NoError(t, err)
	assert.Equal(t, "h1", rec.Hostname)
	assert.Equal(t, "203.0.113.7", rec.SourceIP)
	assert.False(t, rec.LastSeen.IsZero())
}

func TestCheckinSourceIPNeverFromBody(t *testing.T) {
	mem := store.NewMemory()
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(mem)))

	w := postRaw(r, "/checkin", `{"agentId":"U1","hostname":"h1","sourceIp":"1.1.1.1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := mem.GetAgent(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", rec.SourceIP)
}

func TestCheckinDeliversTaskOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(mem)))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1", Hostname: "h1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mem.SetPendingTask(ctx, "U1", "whoami"))

	w = postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1", Hostname: "h1"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.CheckinResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "U1", resp.AgentID)
	assert.Equal(t, "whoami", resp.Task)

	rec, err := mem.GetAgent(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, rec.PendingTask)

	w = postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1", Hostname: "h1"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.NoTask, resp.Task)
}

func TestCheckinRepeatedDoesNotDuplicate(t *testing.T) {
	mem := store.NewMemory()
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(mem)))

	for i := 0; i < 3; i++ {
		w := postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1", Hostname: "h1"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	all, err := mem.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCheckinEncryptedMetadataStoredVerbatim(t *testing.T) {
	mem := store.NewMemory()
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(mem)))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1", EncryptedData: "AQAAAA-opaque"})
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := mem.GetAgent(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "AQAAAA-opaque", rec.EncryptedData)
	assert.Empty(t, rec.Hostname)
}

func TestCheckinEmptyBody(t *testing.T) {
	s := &failingAgentStore{Memory: store.NewMemory()}
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(s)))

	for _, body := range []string{"", "   "} {
		w := postRaw(r, "/checkin", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "body is empty or missing.", errorOf(t, w))
	}
	assert.Zero(t, s.writes)
}

func TestCheckinMalformedJSON(t *testing.T) {
	s := &failingAgentStore{Memory: store.NewMemory()}
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(s)))

	w := postRaw(r, "/checkin", `{"hostname":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "body is not valid JSON.", errorOf(t, w))
	assert.Zero(t, s.writes)
}

func TestCheckinInvalidAgentID(t *testing.T) {
	s := &failingAgentStore{Memory: store.NewMemory()}
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(s)))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "../../x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.writes)
}

func TestCheckinNotConfigured(t *testing.T) {
	r := setupCheckinRouter(NewCheckinHandler(nil))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{Hostname: "h1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server configuration error", errorOf(t, w))
}

func TestCheckinUpsertFailure(t *testing.T) {
	s := &failingAgentStore{Memory: store.NewMemory(), upsertErr: errors.New("throughput exceeded")}
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(s)))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An internal server error occurred", errorOf(t, w))
	assert.NotContains(t, w.Body.String(), "throughput")
}

func TestCheckinClaimFailureStillSucceeds(t *testing.T) {
	s := &failingAgentStore{Memory: store.NewMemory(), claimErr: errors.New("conditional check failed")}
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(s)))

	w := postJSON(t, r, "/checkin", dto.CheckinRequest{AgentID: "U1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.CheckinResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.NoTask, resp.Task)
}

func TestCheckinBodyTooLarge(t *testing.T) {
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(store.NewMemory())))

	big := `{"hostname":"` + strings.Repeat("a", maxCheckinBodySize) + `"}`
	req, _ := http.NewRequest(http.MethodPost, "/checkin", bytes.NewBufferString(big))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "body is too large.", errorOf(t, w))
}

func TestCheckinNullBody(t *testing.T) {
	s := &failingAgentStore{Memory: store.NewMemory()}
	r := setupCheckinRouter(NewCheckinHandler(agents.NewService(s)))

	w := postRaw(r, "/checkin", " null ")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "body is empty or missing.", errorOf(t, w))
	assert.Zero(t, s.writes)

	all, err := s.ListAgents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
