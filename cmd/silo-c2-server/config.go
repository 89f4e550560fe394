package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/EternisAI/silo-c2/internal/api/http"
	"github.com/EternisAI/silo-c2/internal/api/http/handler"
	"github.com/EternisAI/silo-c2/internal/db"
	"github.com/EternisAI/silo-c2/internal/logging"
	"github.com/EternisAI/silo-c2/internal/store"
)

type Config struct {
	Log     logging.Config
	Http    http.Config
	Storage store.Config
	DB      db.Config         `mapstructure:"db"`
	Redis   store.RedisConfig `mapstructure:"redis"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func setDefaults() {
	viper.SetDefault("log.level", logging.LOG_LEVEL_INFO)
	viper.SetDefault("log.format", logging.FormatText)
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.trusted_proxies", "")
	viper.SetDefault("http.allowed_origins", "")
	viper.SetDefault("http.max_result_body_size", handler.DefaultMaxResultBodySize)
	viper.SetDefault("storage.driver", "")
	viper.SetDefault("db.url", "")
	viper.SetDefault("db.schema", "")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.key_prefix", "silo-c2:")
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-c2-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Lists arrive as comma-separated strings when set from the environment.
	config.Http.TrustedProxies = ParseCommaSeparated(strings.Join(config.Http.TrustedProxies, ","))
	config.Http.AllowedOrigins = ParseCommaSeparated(strings.Join(config.Http.AllowedOrigins, ","))

	logging.Init(config.Log)

	if logging.IsDebug(config.Log) {
		redacted := config
		if redacted.DB.Url != "" {
			redacted.DB.Url = "<redacted>"
		}
		redacted.Redis.Password = ""
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
