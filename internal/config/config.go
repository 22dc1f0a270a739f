package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort       string
	DBDSN         string
	JWTSecret     string
	JWTExpiresMin int
	RedisAddr     string
	RedisPassword string
	LogLevel      string
	CORSOrigins   string
}

func Load() Config {
	expires, _ := strconv.Atoi(get("JWT_EXPIRES_MIN", "10080"))
	return Config{
		AppPort:       get("APP_PORT", "8080"),
		DBDSN:         must("DB_DSN"),
		JWTSecret:     must("JWT_SECRET"),
		JWTExpiresMin: expires,
		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: get("REDIS_PASSWORD", ""),
		LogLevel:      get("LOG_LEVEL", "info"),
		CORSOrigins:   get("CORS_ORIGINS", "http://127.0.0.1:3000, http://localhost:3000"),
	}
}

// Client configures the terminal inbox.
type Client struct {
	APIURL           string
	Token            string
	ThreadInterval   time.Duration
	ListInterval     time.Duration
	RefreshPerMinute int
	CatalogCache     int
	LogLevel         string
}

func LoadClient() Client {
	return Client{
		APIURL:           get("PT_API_URL", "http://localhost:8080"),
		Token:            get("PT_TOKEN", ""),
		ThreadInterval:   duration("PT_THREAD_INTERVAL", 5*time.Second),
		ListInterval:     duration("PT_LIST_INTERVAL", 30*time.Second),
		RefreshPerMinute: integer("PT_REFRESH_PER_MINUTE", 12),
		CatalogCache:     integer("PT_CATALOG_CACHE", 256),
		LogLevel:         get("LOG_LEVEL", "warn"),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func duration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func integer(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil || n < 0 {
		return def
	}
	return n
}
