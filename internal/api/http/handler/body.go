package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	maxCheckinBodySize = 1 << 20
	// DefaultMaxResultBodySize leaves room for a base64 envelope around the
	// agent's largest untruncated output.
	DefaultMaxResultBodySize = 16 << 20
)

const (
	msgConfigError   = "Server configuration error"
	msgInternalError = "An internal server error occurred"
	msgEmptyBody     = "body is empty or missing."
	msgInvalidJSON   = "body is not valid JSON."
	msgBodyTooLarge  = "body is too large."
)

var (
	errEmptyBody   = errors.New("empty body")
	errInvalidJSON = errors.New("invalid JSON")
)

var jsonNull = []byte("null")

// decodeBody reads a JSON body of at most limit bytes into v, telling an
// absent body apart from a malformed one. A literal null counts as absent.
func decodeBody(c *gin.Context, v any, limit int64) error {
	if c.Request.Body == nil {
		return errEmptyBody
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return errEmptyBody
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidJSON
	}
	return nil
}

// abortOnBodyError writes the 400 response matching a decodeBody error.
func abortOnBodyError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errEmptyBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgEmptyBody})
	case errors.Is(err, errInvalidJSON):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidJSON})
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBodyTooLarge})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": msgEmptyBody})
	}
}
