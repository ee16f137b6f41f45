package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	ServerPort  string
	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	JWTSecret   string

	LogLevel  string
	LogFormat string

	OperationTimeout time.Duration

	PersistRetryInitial     time.Duration
	PersistRetryMaxElapsed  time.Duration
	PersistRetryMaxAttempts int

	TypingRatePerSec float64
	TypingBurst      int
	WSSendBuffer     int
	PresenceShards   int

	// SeedUsers populates the in-memory directory. Ignored by the postgres driver.
	SeedUsers []SeedUser
}

type SeedUser struct {
	ID          uuid.UUID
	DisplayName string
}

// Load reads configuration from the environment. A .env file in the working directory is
// applied first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "pulse"),
		DBPassword:  getEnv("DB_PASSWORD", "pulse_dev_password"),
		DBName:      getEnv("DB_NAME", "pulse"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		OperationTimeout: getEnvDuration("OPERATION_TIMEOUT_MS", 5*time.Second),

		PersistRetryInitial:     getEnvDuration("PERSIST_RETRY_INITIAL_MS", 50*time.Millisecond),
		PersistRetryMaxElapsed:  getEnvDuration("PERSIST_RETRY_MAX_ELAPSED_MS", 2*time.Second),
		PersistRetryMaxAttempts: getEnvInt("PERSIST_RETRY_MAX_ATTEMPTS", 5),

		TypingRatePerSec: getEnvFloat("TYPING_RATE_PER_SEC", 2),
		TypingBurst:      getEnvInt("TYPING_BURST", 4),
		WSSendBuffer:     getEnvInt("WS_SEND_BUFFER", 256),
		PresenceShards:   getEnvInt("PRESENCE_SHARDS", 32),

		SeedUsers: parseSeedUsers(getEnv("SEED_USERS", "")),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// parseSeedUsers reads "uuid:name,uuid:name". Malformed entries are skipped.
func parseSeedUsers(raw string) []SeedUser {
	var users []SeedUser
	for _, entry := range strings.Split(raw, ",") {
		idStr, name, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil || strings.TrimSpace(name) == "" {
			continue
		}
		users = append(users, SeedUser{ID: id, DisplayName: strings.TrimSpace(name)})
	}
	return users
}
