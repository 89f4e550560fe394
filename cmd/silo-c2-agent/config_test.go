package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveResultsURL(t *testing.T) {
	assert.Equal(t, "https://c2.example.com/results", deriveResultsURL("https://c2.example.com/checkin"))
	assert.Equal(t, "https://c2.example.com/prod/results", deriveResultsURL("https://c2.example.com/prod/checkin/"))
	assert.Empty(t, deriveResultsURL("https://c2.example.com/poll"))
	assert.Empty(t, deriveResultsURL(""))
}
