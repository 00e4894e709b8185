package lib

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/theleywin/Realtime-Talent-Nest/src/store"
)

// Config carries everything read from the environment at startup.
type Config struct {
	Port            string
	MongoURI        string
	DBName          string
	JWTSecret       string
	FanoutBatchSize int
}

// LoadConfig reads a .env file when present, then the environment.
// Missing values fall back to development defaults.
func LoadConfig() Config {
	godotenv.Load()

	return Config{
		Port:            getEnv("PORT", "3000"),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:          getEnv("DB_NAME", "talentnest"),
		JWTSecret:       getEnv("JWT_SECRET", "fallback-secret-key"),
		FanoutBatchSize: getEnvInt("FANOUT_BATCH_SIZE", store.DefaultBatchLimit),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
