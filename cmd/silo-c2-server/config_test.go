package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-c2/internal/api/http/handler"
	"github.com/EternisAI/silo-c2/internal/store"
)

func TestParseCommaSeparated(t *testing.T) {
	assert.Nil(t, ParseCommaSeparated(""))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ParseCommaSeparated("10.0.0.1, 10.0.0.2"))
	assert.Equal(t, []string{"a"}, ParseCommaSeparated(" ,a, ,"))
}

func TestShippedConfigSharesStorageWithOperator(t *testing.T) {
	server := viper.New()
	server.SetConfigFile("application.yaml")
	require.NoError(t, server.ReadInConfig())

	operator := viper.New()
	operator.SetConfigFile("../silo-c2-operator/application.yaml")
	require.NoError(t, operator.ReadInConfig())

	assert.Equal(t, store.DriverPostgres, server.GetString("storage.driver"))
	assert.Equal(t, server.GetString("storage.driver"), operator.GetString("storage.driver"))
	assert.Equal(t, server.GetString("db.url"), operator.GetString("db.url"))
	assert.Equal(t, server.GetString("db.schema"), operator.GetString("db.schema"))
	assert.EqualValues(t, handler.DefaultMaxResultBodySize, server.GetInt64("http.max_result_body_size"))
}
