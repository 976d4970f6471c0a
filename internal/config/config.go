package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	Env        string
	LogLevel   string

	// BackendURL is the platform service every API route proxies to.
	BackendURL string

	// FilesURL serves uploaded media; the gateway passes /files through
	// to it untouched. Optional.
	FilesURL string

	KafkaBrokers []string
	AuditTopic   string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	VerifyCacheTTL time.Duration

	RefreshTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ListenAddr: getenv("GATEWAY_ADDR", ":8080"),
		Env:        getenv("APP_ENV", "development"),
		LogLevel:   getenv("LOG_LEVEL", "info"),

		BackendURL: must(os.Getenv("BACKEND_URL"), "BACKEND_URL"),
		FilesURL:   os.Getenv("FILES_URL"),

		KafkaBrokers: csv(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:   getenv("AUDIT_TOPIC", "auth_events"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        intenv("REDIS_DB", 0),
		VerifyCacheTTL: durenv("VERIFY_CACHE_TTL", 30*time.Second),

		RefreshTimeout: durenv("REFRESH_TIMEOUT", 10*time.Second),
	}
}

// Production reports whether cookies must carry the Secure flag.
func (c *Config) Production() bool {
	return c.Env == "production"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(v, name string) string {
	if v == "" {
		log.Fatalf("missing required env %s", name)
	}
	return v
}

func intenv(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenv(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csv(v string) []string {
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
