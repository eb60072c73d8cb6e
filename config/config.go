package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	Port string

	DBDriver   string // mysql, postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string // for sqlite this is the database file path
	DBLogLevel string

	SecretKey  string        // HMAC key used to sign session cookies
	SessionTTL time.Duration // lifetime of a login session

	UploadDir         string   // Root directory for uploaded audio files
	MaxContentLength  int64    // Maximum request body size in bytes
	AllowedExtensions []string // Lower-case extensions without the leading dot

	// Redis配置（会话存储）
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	LogLevel string
	LogFile  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// DefaultMaxContentLength is the upload limit (50 MiB).
const DefaultMaxContentLength int64 = 50 * 1024 * 1024

// DefaultSecretKey is only suitable for local development.
const DefaultSecretKey = "dev-secret-key-change-in-production"

// DefaultAllowedExtensions is the audio extension allow-list.
var DefaultAllowedExtensions = []string{"mp3", "wav", "flac", "m4a", "ogg"}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		Port:       getEnv("PORT", "8080"),
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "musicuser"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "musicdb"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		SecretKey:  getEnv("SECRET_KEY", DefaultSecretKey),
		SessionTTL: getEnvDuration("SESSION_TTL", 24*time.Hour),

		UploadDir:         getEnv("UPLOAD_FOLDER", "music"),
		MaxContentLength:  getEnvInt64("MAX_CONTENT_LENGTH", DefaultMaxContentLength),
		AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", DefaultAllowedExtensions),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}
