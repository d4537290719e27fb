package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Port       int
	LogLevel   string
	LogFormat  string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	AdminKey   string // API key for the admin endpoints

	// TrustedProxies are the proxy IPs whose X-Forwarded-For headers are
	// believed when attributing client addresses.
	TrustedProxies []string

	// DevMode swaps the postgres stores for in-memory ones and relaxes
	// admin auth; never enable in production.
	DevMode bool

	WorldFile    string
	FormulasFile string

	SweepInterval   time.Duration // cycle scheduler sweep period
	RefreshInterval time.Duration // presence re-push period
	MoveCooldown    time.Duration // per-connection movement throttle
	PackCapacity    int           // max total item quantity per player
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists, but don't fail if it doesn't
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBName:       getEnv("DB_NAME", "thrumwood"),
		AdminKey:     getEnv("ADMIN_KEY", ""),
		DevMode:      getEnv("DEV_MODE", "false") == "true",
		WorldFile:    getEnv("WORLD_FILE", "configs/world.yaml"),
		FormulasFile: getEnv("FORMULAS_FILE", "configs/formulas.yaml"),
	}

	if raw := getEnv("TRUSTED_PROXIES", ""); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, p)
			}
		}
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT value: %w", err)
	}
	cfg.Port = port

	cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval, err = getDuration("REFRESH_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.MoveCooldown, err = getDuration("MOVE_COOLDOWN", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg.PackCapacity, err = strconv.Atoi(getEnv("PACK_CAPACITY", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid PACK_CAPACITY value: %w", err)
	}

	if cfg.AdminKey == "" && !cfg.DevMode {
		return nil, fmt.Errorf("ADMIN_KEY environment variable must be set")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return d, nil
}

// GetDBConnString returns the PostgreSQL connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}
