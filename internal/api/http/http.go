package http

type Config struct {
	Port           uint     `mapstructure:"port"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	// AllowedOrigins enables CORS for browser-based consoles when non-empty.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxResultBodySize is the largest accepted /results body in bytes.
	MaxResultBodySize int64 `mapstructure:"max_result_body_size"`
}
