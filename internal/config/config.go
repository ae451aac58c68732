package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string
	DefaultModel string
	ImageModel   string
	TitleLength  int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = FromEnv()

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}
}

// FromEnv reads the configuration from the process environment without
// validating it.
func FromEnv() Config {
	return Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:  getEnv("DATABASE_URL", "aether_chat.db"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		DefaultModel: getEnv("DEFAULT_MODEL", "gemini-2.5-flash"),
		ImageModel:   getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),
		TitleLength:  getEnvAsInt("TITLE_LENGTH", 30),
	}
}

func (c Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
