package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigin  string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CartTTLMinutes int
}

func Load() Config {
	// Missing .env is fine; container deployments set real env vars.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cartTTL, err := strconv.Atoi(getEnv("CART_TTL_MINUTES", "120"))
	if err != nil || cartTTL < 1 {
		cartTTL = 120
	}

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigin:  getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		CartTTLMinutes: cartTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
