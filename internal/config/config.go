package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY" required:"true"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash-latest"`
	DatabaseURL    string        `envconfig:"DATABASE_URL" default:"tasknest.db"`
	HTTPPort       string        `envconfig:"HTTP_PORT" default:"8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	ChatRateLimit  int           `envconfig:"CHAT_RATE_LIMIT" default:"100"`
	ChatRateWindow time.Duration `envconfig:"CHAT_RATE_WINDOW" default:"1h"`
	MaxToolRounds  int           `envconfig:"MAX_TOOL_ROUNDS" default:"2"`
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	if err := envconfig.Process("", &AppConfig); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The tool-round cap is what guarantees the agent loop terminates;
	// clamp it so a misconfigured value cannot remove the bound.
	if AppConfig.MaxToolRounds < 1 {
		AppConfig.MaxToolRounds = 1
	}
	if AppConfig.MaxToolRounds > 4 {
		AppConfig.MaxToolRounds = 4
	}
}
