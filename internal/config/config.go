package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDev  = "dev"
	EnvProd = "production"

	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var defaultAllowedOrigins = []string{
	"https://crossskill.net",
	"https://www.crossskill.net",
	"https://d19z8axyv5innr.cloudfront.net",
	"http://coaching-platformm.s3-website-us-east-1.amazonaws.com",
	"https://main.*.amplifyapp.com",
	"http://98.92.71.17:3001",
	"http://localhost:3000",
	"http://localhost:5173",
}

type Config struct {
	Env            string
	Port           int
	AllowedOrigins []string
	FrontendURL    string

	StoreDriver      string
	ResetTokenDriver string
	UsersFile        string
	ResetTokensFile  string
	DBURL            string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DirectoryBaseURL   string
	DirectoryAPIKey    string
	DirectoryAPISecret string
	DirectoryTimeout   time.Duration

	LiveKitAPIKey   string
	LiveKitSecret   string
	LiveKitURL      string
	LiveKitTokenTTL time.Duration

	ResetTokenTTL time.Duration
	SweepInterval time.Duration
	// SweeperPort serves health checks for the standalone sweeper process.
	SweeperPort   int

	AuthRateLimit float64
	AuthRateBurst int
	MaxBodyBytes  int64

	AuditLogPath string
	OTELEndpoint string

	AdminUsername string
	AdminPassword string
	AdminEmail    string
	AdminName     string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "err", err)
	}

	env := normalizeEnv(getEnv("APP_ENV", getEnv("NODE_ENV", EnvDev)))
	dataDir := getEnv("DATA_DIR", ".")

	return Config{
		Env:            env,
		Port:           getEnvInt("PORT", 3001),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", defaultAllowedOrigins),
		FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),

		StoreDriver:      getEnv("STORE_DRIVER", DriverFile),
		ResetTokenDriver: getEnv("RESET_TOKEN_DRIVER", getEnv("STORE_DRIVER", DriverFile)),
		UsersFile:        getEnv("USERS_FILE", filepath.Join(dataDir, "users.json")),
		ResetTokensFile:  getEnv("RESET_TOKENS_FILE", filepath.Join(dataDir, "reset-tokens.json")),
		DBURL:            getEnv("DATABASE_URL", buildDBURL()),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DirectoryBaseURL:   strings.TrimRight(getEnv("DIRECTORY_BASE_URL", ""), "/"),
		DirectoryAPIKey:    getEnv("DIRECTORY_API_KEY", ""),
		DirectoryAPISecret: getEnv("DIRECTORY_API_SECRET", ""),
		DirectoryTimeout:   getEnvDuration("DIRECTORY_TIMEOUT", 5*time.Second),

		LiveKitAPIKey:   getEnv("LIVEKIT_API_KEY", "demo_key"),
		LiveKitSecret:   getEnv("LIVEKIT_SECRET", "demo_secret"),
		LiveKitURL:      getEnv("LIVEKIT_URL", "wss://demo.livekit.cloud"),
		LiveKitTokenTTL: getEnvDuration("LIVEKIT_TOKEN_TTL", 6*time.Hour),

		ResetTokenTTL: getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		SweeperPort:   getEnvInt("SWEEPER_PORT", 8081),

		AuthRateLimit: getEnvFloat("AUTH_RATE_LIMIT", 1),
		AuthRateBurst: getEnvInt("AUTH_RATE_BURST", 20),
		MaxBodyBytes:  int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		AuditLogPath: getEnv("AUDIT_LOG_PATH", filepath.Join(dataDir, "audit.log")),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AdminUsername: getEnv("SEED_ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("SEED_ADMIN_PASSWORD", "admin"),
		AdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@coaching.com"),
		AdminName:     getEnv("SEED_ADMIN_NAME", "Admin User"),
	}
}

func (c Config) IsProduction() bool {
	return c.Env == EnvProd
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return EnvProd
	case "", "dev", "development":
		return EnvDev
	default:
		return strings.ToLower(env)
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "coachhub")
	pass := getEnv("DB_PASSWORD", "coachhub")
	name := getEnv("DB_NAME", "coachhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid number in environment, using default", "key", key, "value", v)
			return fallback
		}
		return f
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "1h") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	if d, err := time.ParseDuration(v); err == nil {
		return d
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}

	slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
