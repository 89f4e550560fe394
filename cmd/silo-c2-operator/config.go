package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/EternisAI/silo-c2/internal/db"
	"github.com/EternisAI/silo-c2/internal/logging"
	"github.com/EternisAI/silo-c2/internal/operator"
	"github.com/EternisAI/silo-c2/internal/store"
)

type Config struct {
	Log      logging.Config
	Storage  store.Config
	DB       db.Config         `mapstructure:"db"`
	Redis    store.RedisConfig `mapstructure:"redis"`
	Crypto   CryptoConfig      `mapstructure:"crypto"`
	Operator OperatorConfig    `mapstructure:"operator"`
}

type CryptoConfig struct {
	Key string `mapstructure:"key"`
}

type OperatorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollAttempts int           `mapstructure:"poll_attempts"`
}

var config Config

func setDefaults() {
	viper.SetDefault("log.level", logging.LOG_LEVEL_WARNING)
	viper.SetDefault("log.format", logging.FormatText)
	viper.SetDefault("storage.driver", store.DriverPostgres)
	viper.SetDefault("db.url", "")
	viper.SetDefault("db.schema", "")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.key_prefix", "silo-c2:")
	viper.SetDefault("crypto.key", "")
	viper.SetDefault("operator.poll_interval", operator.DefaultPollInterval)
	viper.SetDefault("operator.poll_attempts", operator.DefaultPollAttempts)
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-c2-operator")
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

	// Logs go to stderr so command output stays clean.
	logging.InitTo(os.Stderr, config.Log)
}
