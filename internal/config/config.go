package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)


type WorkerPoolConfig struct {
	Concurrency  int
	PollInterval time.Duration
	RatePerSec   float64
	HealthAddr   string
}

type Config struct {
	Env      string
	Port     int
	DBURL    string
	RedisURL string

	GatewayURL     string
	GatewayTimeout time.Duration
	LockTTL        time.Duration

	SendWorker      WorkerPoolConfig
	FollowupWorker  WorkerPoolConfig
	AnalyticsWorker WorkerPoolConfig

	LogLevel string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:      env,
		Port:     port,
		DBURL:    dbURL,
		RedisURL: getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		GatewayURL:     getEnv("GATEWAY_URL", "https://api.brevo.com/v3"),
		GatewayTimeout: getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		LockTTL:        getEnvDuration("SCHEDULE_LOCK_TTL", 30*time.Second),

		SendWorker: WorkerPoolConfig{
			Concurrency:  getEnvInt("SEND_WORKER_CONCURRENCY", 5),
			PollInterval: getEnvDuration("SEND_WORKER_POLL_INTERVAL", 500*time.Millisecond),
			RatePerSec:   getEnvFloat("SEND_WORKER_RATE_PER_SEC", 10),
			HealthAddr:   getEnv("SEND_WORKER_HEALTH_ADDR", ":9101"),
		},
		FollowupWorker: WorkerPoolConfig{
			Concurrency:  getEnvInt("FOLLOWUP_WORKER_CONCURRENCY", 3),
			PollInterval: getEnvDuration("FOLLOWUP_WORKER_POLL_INTERVAL", 500*time.Millisecond),
			RatePerSec:   getEnvFloat("FOLLOWUP_WORKER_RATE_PER_SEC", 5),
			HealthAddr:   getEnv("FOLLOWUP_WORKER_HEALTH_ADDR", ":9102"),
		},
		AnalyticsWorker: WorkerPoolConfig{
			Concurrency:  getEnvInt("ANALYTICS_WORKER_CONCURRENCY", 2),
			PollInterval: getEnvDuration("ANALYTICS_WORKER_POLL_INTERVAL", 500*time.Millisecond),
			RatePerSec:   getEnvFloat("ANALYTICS_WORKER_RATE_PER_SEC", 10),
			HealthAddr:   getEnv("ANALYTICS_WORKER_HEALTH_ADDR", ":9103"),
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "leadflow")
	pass := getEnv("DB_PASSWORD", "leadflow")
	name := getEnv("DB_NAME", "leadflow")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration)(context.Context, context.CancelFunc){
	return context.WithTimeout(context.Background(),duration)
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
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.ParseFloat(v, 64)
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