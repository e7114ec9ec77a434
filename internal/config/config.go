package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	neturl "net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Cache drivers.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config centralises runtime configuration.
type Config struct {
	Env      string
	LogLevel string

	HTTPPort        string
	AllowedOrigins  []string
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int

	StoreDriver      string
	DatabaseURL      string
	DatabaseMaxConns int32
	SQLiteDSN        string

	CacheDriver   string
	RedisURL      string
	RedisPoolSize int
	CacheTTL      time.Duration
	PageCacheTTL  time.Duration
	CacheCapacity int

	JWTSecret  string
	JWTIssuer  string
	JWTExpiry  time.Duration
	BcryptCost int

	ConfirmationCodeTTL time.Duration
	ResetCodeTTL        time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from the environment and an optional .env file in the
// working directory. Environment variables win over the file.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	env := strings.ToLower(v.GetString("APP_ENV"))
	httpPort := v.GetString("HTTP_PORT")
	if httpPort == "" {
		httpPort = v.GetString("PORT")
	}

	cfg := Config{
		Env:      env,
		LogLevel: v.GetString("LOG_LEVEL"),

		HTTPPort:        httpPort,
		AllowedOrigins:  splitCSV(v.GetString("CORS_ALLOWED_ORIGINS")),
		ReadTimeoutSec:  v.GetInt("HTTP_READ_TIMEOUT"),
		WriteTimeoutSec: v.GetInt("HTTP_WRITE_TIMEOUT"),
		IdleTimeoutSec:  v.GetInt("HTTP_IDLE_TIMEOUT"),

		StoreDriver:      strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:      resolveDatabaseURL(v),
		DatabaseMaxConns: v.GetInt32("DATABASE_MAX_CONNS"),
		SQLiteDSN:        v.GetString("SQLITE_DSN"),

		CacheDriver:   strings.ToLower(v.GetString("CACHE_DRIVER")),
		RedisURL:      v.GetString("REDIS_URL"),
		RedisPoolSize: v.GetInt("REDIS_POOL_SIZE"),
		CacheTTL:      v.GetDuration("CACHE_TTL"),
		PageCacheTTL:  v.GetDuration("PAGE_CACHE_TTL"),
		CacheCapacity: v.GetInt("CACHE_CAPACITY"),

		JWTSecret:  v.GetString("JWT_SECRET"),
		JWTIssuer:  v.GetString("JWT_ISSUER"),
		JWTExpiry:  v.GetDuration("JWT_EXPIRY"),
		BcryptCost: v.GetInt("BCRYPT_COST"),

		ConfirmationCodeTTL: v.GetDuration("CONFIRMATION_CODE_TTL"),
		ResetCodeTTL:        v.GetDuration("RESET_CODE_TTL"),

		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUsername: v.GetString("SMTP_USERNAME"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		SMTPFrom:     v.GetString("SMTP_FROM"),
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = cfg.defaultStoreDriver()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem that would prevent startup.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database configuration missing: provide DATABASE_URL or PG* env vars")
		}
	case StoreSQLite:
		if c.SQLiteDSN == "" {
			return errors.New("SQLITE_DSN is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.CacheDriver {
	case CacheRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when CACHE_DRIVER=redis")
		}
	case CacheMemory, CacheNone:
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q", c.CacheDriver)
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.PageCacheTTL <= 0 || c.PageCacheTTL > c.CacheTTL {
		return errors.New("PAGE_CACHE_TTL must be positive and no longer than CACHE_TTL")
	}
	// Codes are only written to the log in development.
	if !c.IsDevelopment() && (c.SMTPHost == "" || c.SMTPFrom == "") {
		return errors.New("SMTP_HOST and SMTP_FROM are required outside development")
	}
	return nil
}

// IsDevelopment reports whether the process runs in a local or test environment.
func (c Config) IsDevelopment() bool {
	switch c.Env {
	case "local", "development", "dev", "test":
		return true
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("HTTP_READ_TIMEOUT", 15)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 15)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60)
	v.SetDefault("CACHE_DRIVER", CacheMemory)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("CACHE_TTL", time.Hour)
	v.SetDefault("PAGE_CACHE_TTL", time.Minute)
	v.SetDefault("CACHE_CAPACITY", 10000)
	v.SetDefault("JWT_ISSUER", "accounts")
	v.SetDefault("JWT_EXPIRY", 12*time.Hour)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CONFIRMATION_CODE_TTL", 24*time.Hour)
	v.SetDefault("RESET_CODE_TTL", time.Hour)
	v.SetDefault("SQLITE_DSN", "accounts.db")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("PGPORT", "5432")
	v.SetDefault("PGSSLMODE", "require")
}

// defaultStoreDriver keeps development runs free of an external database.
func (c Config) defaultStoreDriver() string {
	if c.IsDevelopment() {
		return StoreSQLite
	}
	return StorePostgres
}

// resolveDatabaseURL prefers an explicit URL and otherwise assembles one from PG* variables.
func resolveDatabaseURL(v *viper.Viper) string {
	for _, key := range []string{"DATABASE_URL", "POSTGRES_URL", "PGURL"} {
		if url := coerceDatabaseURL(v.GetString(key)); url != "" {
			return url
		}
	}

	host := firstNonEmpty(v.GetString("PGHOST"), v.GetString("POSTGRES_HOST"))
	user := firstNonEmpty(v.GetString("PGUSER"), v.GetString("POSTGRES_USER"))
	if host == "" || user == "" {
		return ""
	}
	database := firstNonEmpty(v.GetString("PGDATABASE"), v.GetString("POSTGRES_DB"), user)

	dsn := &neturl.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, v.GetString("PGPORT")),
		Path:   "/" + database,
		User:   neturl.User(user),
	}
	if password := firstNonEmpty(v.GetString("PGPASSWORD"), v.GetString("POSTGRES_PASSWORD")); password != "" {
		dsn.User = neturl.UserPassword(user, password)
	}
	query := dsn.Query()
	query.Set("sslmode", v.GetString("PGSSLMODE"))
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

func coerceDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"):
		return raw
	case strings.HasPrefix(raw, "postgresql://"):
		return "postgres://" + strings.TrimPrefix(raw, "postgresql://")
	}
	return ""
}

func splitCSV(value string) []string {
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return []string{"*"}
	}
	return parts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}
