package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	HTTP    ServerConfig
	MySQL   MySQLConfig
	Log     LogConfig
	Polar   PolarConfig
	Catalog CatalogConfig
	Jobs    JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type PolarConfig struct {
	WebhookSecret             string
	SignatureToleranceSeconds int64
}

type CatalogConfig struct {
	ProductCredits map[string]int64
}

type JobsConfig struct {
	SweepInterval time.Duration
	SweepLookback time.Duration
	BatchSize     int32
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	productCredits, err := parseProductCredits(os.Getenv("PRODUCT_CREDITS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "credits-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Polar: PolarConfig{
			WebhookSecret:             getEnv("POLAR_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("POLAR_SIGNATURE_TOLERANCE_SECONDS", 300)),
		},
		Catalog: CatalogConfig{
			ProductCredits: productCredits,
		},
		Jobs: JobsConfig{
			SweepInterval: getMinutesEnv("JOBS_SWEEP_INTERVAL_MINUTES", 5*time.Minute),
			SweepLookback: getMinutesEnv("JOBS_SWEEP_LOOKBACK_MINUTES", 10*time.Minute),
			BatchSize:     int32(getIntEnv("JOBS_BATCH_SIZE", 100)),
		},
	}, nil
}

// parseProductCredits reads the product-to-credits mapping as a JSON object,
// e.g. {"small":15,"medium":25,"large":50}. The mapping is the single source
// of truth for how many credits a purchase grants.
func parseProductCredits(raw string) (map[string]int64, error) {
	if raw == "" {
		return map[string]int64{}, nil
	}

	var rules map[string]int64
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("PRODUCT_CREDITS must be a JSON object of product id to credits: %w", err)
	}
	for productID, credits := range rules {
		if productID == "" {
			return nil, errors.New("PRODUCT_CREDITS contains an empty product id")
		}
		if credits <= 0 {
			return nil, fmt.Errorf("PRODUCT_CREDITS entry %q must grant a positive credit amount", productID)
		}
	}
	return rules, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
