package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	DBURL        string
	DBMinConns   int32
	DBMaxConns   int32
	QueryTimeout time.Duration

	// Session cookie + token settings. The secret peppers the HMAC applied
	// to session tokens before storage.
	SessionSecret     string
	SessionCookieName string
	SessionTTL        time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LoginRateLimit  int
	LoginRateWindow time.Duration

	TemplatesGlob  string
	AllowedOrigins []string
	OTLPEndpoint   string
}

func Load() Config {
	// Best-effort: a missing .env is fine in prod.
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")

	return Config{
		Env:  env,
		Port: getEnvInt("PORT", 8080),

		DBURL:        buildDBURL(),
		DBMinConns:   int32(getEnvInt("DB_MIN_CONNS", 2)),
		DBMaxConns:   int32(getEnvInt("DB_MAX_CONNS", 10)),
		QueryTimeout: getEnvDuration("DB_QUERY_TIMEOUT", 3*time.Second),

		SessionSecret:     getEnv("SESSION_SECRET", "dev-only-insecure-secret"),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "wb_session"),
		SessionTTL:        getEnvDuration("SESSION_TTL", 720*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LoginRateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),

		TemplatesGlob:  getEnv("TEMPLATES_GLOB", "templates/*.html"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// CookieSecure reports whether session cookies should carry the Secure flag.
func (c Config) CookieSecure() bool {
	return c.Env == "prod"
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "webbase")
	pass := getEnv("DB_PASSWORD", "webbase")
	name := getEnv("DB_NAME", "webbase")
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
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return d
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
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
