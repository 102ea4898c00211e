package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is read once at startup and immutable afterwards.
type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string

	JwtSecret       string
	JwtAlgorithm    string
	TokenTTLSeconds int

	RateLimitPerMinute int
	AllowedOrigins     []string

	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or
// returns the provided DSN.
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}
	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:       getenv("PORT", "8080"),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/bookcatalog.db"),

		JwtSecret:    getenv("JWT_SECRET", "change-me"),
		JwtAlgorithm: getenv("JWT_ALGORITHM", "HS256"),

		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getenv("POSTGRES_PORT", "5432"),
		PostgresUser:     getenv("POSTGRES_USER", "catalog"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getenv("POSTGRES_DB", "bookcatalog"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
	}

	ttl, err := strconv.Atoi(getenv("TOKEN_TTL_SECONDS", "300"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("invalid TOKEN_TTL_SECONDS: %s", getenv("TOKEN_TTL_SECONDS", "300"))
	}
	c.TokenTTLSeconds = ttl

	limit, err := strconv.Atoi(getenv("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil || limit <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %s", getenv("RATE_LIMIT_PER_MINUTE", "120"))
	}
	c.RateLimitPerMinute = limit

	if origins := getenv("ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	switch c.JwtAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("unsupported JWT_ALGORITHM: %s (supported: HS256, HS384, HS512)", c.JwtAlgorithm)
	}

	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}
	if c.DBAdapter == "sqlite" && c.SQLiteFile == "" {
		return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
	}

	env := strings.ToLower(getenv("ENV", ""))
	if env == "production" || env == "prod" {
		if c.JwtSecret == "" || c.JwtSecret == "change-me" {
			return nil, errors.New("JWT_SECRET must be set in production")
		}
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
