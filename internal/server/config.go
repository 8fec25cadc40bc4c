package server

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"baccarat/internal/game"
)

const (
	DEFAULT_PORT           = 8080
	DEFAULT_RETENTION_DAYS = 30
)

// Config is the process configuration, read once from the environment.
type Config struct {
	Port           int
	Table          game.Config
	MigrationsPath string
	AutoMigrate    bool
	Retention      time.Duration
	ArchiveEnabled bool
}

func LoadConfig() Config {
	return Config{
		Port: getEnvAsInt("PORT", DEFAULT_PORT),
		Table: game.Config{
			Decks:           getEnvAsInt("TABLE_DECKS", game.DEFAULT_DECKS),
			BettingSeconds:  getEnvAsInt("TABLE_BETTING_SECONDS", game.BETTING_SECONDS),
			ResultDelay:     time.Duration(getEnvAsInt("TABLE_RESULT_DELAY_MS", int(game.RESULT_DELAY/time.Millisecond))) * time.Millisecond,
			StartingBalance: int64(getEnvAsInt("TABLE_STARTING_BALANCE", game.DEFAULT_BALANCE)),
		},
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		AutoMigrate:    getEnv("DB_AUTO_MIGRATE", "false") == "true",
		Retention:      time.Duration(getEnvAsInt("ROUND_RETENTION_DAYS", DEFAULT_RETENTION_DAYS)) * 24 * time.Hour,
		ArchiveEnabled: os.Getenv("BLUEPRINT_DB_HOST") != "",
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
