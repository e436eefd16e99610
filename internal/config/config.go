// Package config loads the service configuration from environment
// variables. cmd/server loads an optional .env file before calling Load.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Config holds the runtime settings that every deployment must decide on.
type Config struct {
	Env  string // dev, test or prod
	Port string

	DBDriver   string // mysql or sqlite
	DBUser     string
	DBPass     string
	DBHost     string
	DBPort     string
	DBName     string
	SQLitePath string

	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int

	// SeedOnStart loads the demo users and rooms into an empty database.
	SeedOnStart bool
	// AdminID and AdminPassword create an ADMIN account during seeding.
	// No admin is created while AdminPassword is empty.
	AdminID       string
	AdminPassword string
}

// Load reads Config from the environment. Missing required values stop
// the process.
func Load() Config {
	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("APP_PORT", "8080"),
		DBDriver:       strings.ToLower(envStr("DB_DRIVER", "mysql")),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		SeedOnStart:    envBool("SEED_ON_START", false),
		AdminID:        envStr("ADMIN_ID", "admin"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
	}
	switch cfg.DBDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
	case "sqlite":
		cfg.SQLitePath = envStr("SQLITE_PATH", "ridesplit.db")
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	return cfg
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, c.DBHost, c.DBPort, c.DBName)
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
