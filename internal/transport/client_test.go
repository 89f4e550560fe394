package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EternisAI/silo-c2/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckinSuccess(t *testing.T) {
	var got dto.CheckinRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(dto.CheckinResponse{Message: "Check-in successful", AgentID: "U1", Task: dto.NoTask})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/checkin", srv.URL+"/results", time.Second)
	resp, err := c.Checkin(context.Background(), dto.CheckinRequest{Hostname: "h1"})

	require.NoError(t, err)
	assert.Equal(t, "U1", resp.AgentID)
	assert.Equal(t, dto.NoTask, resp.Task)
	assert.Equal(t, "h1", got.Hostname)
	assert.Empty(t, got.AgentID)
}

func TestCheckinNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"An internal server error occurred"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	resp, err := c.Checkin(context.Background(), dto.CheckinRequest{Hostname: "h1"})

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestCheckinMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	resp, err := c.Checkin(context.Background(), dto.CheckinRequest{})

	assert.Nil(t, resp)
	assert.Error(t, err)
}

func TestCheckinTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, srv.URL, 100*time.Millisecond)
	start := time.Now()
	_, err := c.Checkin(context.Background(), dto.CheckinRequest{})

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCheckinConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, url, time.Second)
	_, err := c.Checkin(context.Background(), dto.CheckinRequest{})
	assert.Error(t, err)
}

func TestSubmitResult(t *testing.T) {
	var got dto.ResultRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/results", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(dto.ResultResponse{Message: "Result stored successfully", Key: "U1/2025-01-01_00-00-00"})
	}))
	defer srv.Close()

	result := "root"
	c := NewClient(srv.URL+"/checkin", srv.URL+"/results", time.Second)
	err := c.SubmitResult(context.Background(), dto.ResultRequest{AgentID: "U1", TaskResult: &result})

	require.NoError(t, err)
	assert.Equal(t, "U1", got.AgentID)
	require.NotNil(t, got.TaskResult)
	assert.Equal(t, "root", *got.TaskResult)
	assert.Nil(t, got.EncryptedData)
}

func TestSubmitResultRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, time.Second)
	err := c.SubmitResult(context.Background(), dto.ResultRequest{AgentID: "U1"})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}
