package config

import "os"

type Config struct {
	Port   string
	DBPath string

	// Provider settings. An empty APIKey is not an error: the reply
	// generator degrades to fallback-only mode.
	APIKey    string
	BaseURL   string
	ModelName string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:      getEnv("SHOPDESK_PORT", "8080"),
		DBPath:    getEnv("SHOPDESK_DB_PATH", "shopdesk.db"),
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		BaseURL:   getEnv("SHOPDESK_OPENAI_BASE_URL", ""),
		ModelName: getEnv("SHOPDESK_MODEL_NAME", "gpt-4o-mini"),
	}
}
