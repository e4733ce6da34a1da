package config // package config loads application configuration from environment variables

import (
	"errors"        // errors joins the problems found while parsing
	"fmt"           // fmt formats configuration errors
	"io/fs"         // fs identifies a missing .env file
	"log"           // log is used to report configuration errors and halt execution
	"os"            // os provides access to environment variables
	"path/filepath" // filepath builds the default session path
	"strconv"       // strconv converts strings to other types

	"github.com/joho/godotenv" // godotenv loads a local .env file into the environment
)

// Database drivers accepted in DB_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	LogLevel       string // zap level name (debug, info, warn, error)
	DBDriver       string // mysql or sqlite
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	DBPath         string // sqlite database file
	RabbitURL      string // AMQP url of the row-change feed; empty disables it
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for password hashing
	AnonKey        string // api key of ordinary clients
	ServiceKey     string // api key of privileged clients
	SessionFile    string // where the terminal client keeps its tokens
	ActivityLog    string // row-change activity log file; "off" disables it
}

// Load reads .env (when present) and the environment and returns a Config.
// Invalid or missing values cause the program to exit with a fatal log
// message.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("cannot read .env: %v", err)
	}
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// Parse builds a Config from the current environment.  Every problem is
// reported, not only the first.
func Parse() (Config, error) {
	p := &parser{}
	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),               // environment (dev/test/prod)
		Port:           envStr("APP_PORT", "8080"),             // port to bind the HTTP server
		LogLevel:       envStr("LOG_LEVEL", "info"),            // minimum log level
		DBDriver:       envStr("DB_DRIVER", DriverMySQL),       // relational store driver
		DBPass:         os.Getenv("DB_PASS"),                   // database password (empty allowed)
		DBPath:         envStr("DB_PATH", "lostfound.db"),      // sqlite file
		RabbitURL:      os.Getenv("RABBITMQ_URL"),              // row-change broker
		JWTSecret:      p.must("JWT_SECRET"),                   // secret used for signing JWTs
		AccessTTLMin:   p.integer("ACCESS_TOKEN_TTL_MIN", 15),  // TTL for access tokens in minutes
		RefreshTTLDays: p.integer("REFRESH_TOKEN_TTL_DAYS", 7), // TTL for refresh tokens in days
		BcryptCost:     p.integer("BCRYPT_COST", 12),           // bcrypt cost factor
		AnonKey:        os.Getenv("ANON_KEY"),                  // anonymous api key
		ServiceKey:     os.Getenv("SERVICE_KEY"),               // privileged api key
		SessionFile:    envStr("SESSION_FILE", defaultSessionFile()),
		ActivityLog:    envStr("ACTIVITY_LOG", filepath.Join("logs", "activity.log")),
	}
	switch cfg.DBDriver {
	case DriverMySQL:
		cfg.DBUser = p.must("DB_USER")
		cfg.DBHost = p.must("DB_HOST")
		cfg.DBPort = p.must("DB_PORT")
		cfg.DBName = p.must("DB_NAME")
	case DriverSQLite:
	default:
		p.fail(fmt.Errorf("DB_DRIVER must be %s or %s, got %q", DriverMySQL, DriverSQLite, cfg.DBDriver))
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		p.fail(fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost))
	}
	return cfg, p.err()
}

// ValidateServer checks the values only the HTTP server needs.
func (c Config) ValidateServer() error {
	var errs []error
	if c.AnonKey == "" {
		errs = append(errs, errors.New("missing required env var: ANON_KEY"))
	}
	if c.ServiceKey == "" {
		errs = append(errs, errors.New("missing required env var: SERVICE_KEY"))
	}
	if c.AnonKey != "" && c.AnonKey == c.ServiceKey {
		errs = append(errs, errors.New("ANON_KEY and SERVICE_KEY must differ"))
	}
	return errors.Join(errs...)
}

// IsProd reports whether the application runs in production.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".lostfound-session.json"
	}
	return filepath.Join(dir, "lostfound", "session.json")
}

// parser collects configuration errors.
type parser struct {
	errs []error
}

func (p *parser) fail(err error) { p.errs = append(p.errs, err) }

func (p *parser) err() error { return errors.Join(p.errs...) }

// must retrieves the value of a required environment variable.
func (p *parser) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		p.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// integer is like envInt but reports malformed values instead of ignoring them.
func (p *parser) integer(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(fmt.Errorf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}
