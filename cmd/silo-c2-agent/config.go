package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/EternisAI/silo-c2/internal/agent"
	"github.com/EternisAI/silo-c2/internal/executor"
	"github.com/EternisAI/silo-c2/internal/logging"
	"github.com/EternisAI/silo-c2/internal/transport"
)

type Config struct {
	Log    logging.Config
	C2     C2Config     `mapstructure:"c2"`
	Agent  AgentConfig  `mapstructure:"agent"`
	Crypto CryptoConfig `mapstructure:"crypto"`
}

type C2Config struct {
	CheckinURL    string        `mapstructure:"checkin_url"`
	ResultsURL    string        `mapstructure:"results_url"`
	SleepInterval time.Duration `mapstructure:"sleep_interval"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
}

type AgentConfig struct {
	StateFile   string        `mapstructure:"state_file"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// MaxOutputSize is the output size in bytes above which results are truncated.
	MaxOutputSize int `mapstructure:"max_output_size"`
}

type CryptoConfig struct {
	Key string        `mapstructure:"key" json:"-"`
	TTL time.Duration `mapstructure:"ttl"`
}

var config Config

func setDefaults() {
	viper.SetDefault("log.level", logging.LOG_LEVEL_INFO)
	viper.SetDefault("log.format", logging.FormatText)
	viper.SetDefault("c2.checkin_url", "")
	viper.SetDefault("c2.results_url", "")
	viper.SetDefault("c2.sleep_interval", agent.DefaultInterval)
	viper.SetDefault("c2.http_timeout", transport.DefaultTimeout)
	viper.SetDefault("agent.state_file", "./agent.id")
	viper.SetDefault("agent.task_timeout", executor.DefaultTimeout)
	viper.SetDefault("agent.max_output_size", agent.DefaultMaxOutputSize)
	viper.SetDefault("crypto.key", "")
	viper.SetDefault("crypto.ttl", 0)
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-c2-agent")
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

	if config.C2.ResultsURL == "" {
		config.C2.ResultsURL = deriveResultsURL(config.C2.CheckinURL)
	}

	logging.Init(config.Log)

	if logging.IsDebug(config.Log) {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

// deriveResultsURL maps ".../checkin" to ".../results" so a single base URL
// is enough to configure the agent.
func deriveResultsURL(checkinURL string) string {
	trimmed := strings.TrimSuffix(checkinURL, "/")
	if !strings.HasSuffix(trimmed, "/checkin") {
		return ""
	}
	return strings.TrimSuffix(trimmed, "/checkin") + "/results"
}
