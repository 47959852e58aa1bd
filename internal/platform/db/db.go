package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const driverName = "mysql"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// LoanConfig carries the lending tuning knobs: how long a lock acquisition
// may wait before the operation fails as retryable, and the default loan and
// renewal periods in days.
type LoanConfig struct {
	LockWaitSeconds int `yaml:"lock_wait_seconds"`
	LoanDays        int `yaml:"loan_days"`
	RenewDays       int `yaml:"renew_days"`
}

type Config struct {
	Version    string         `yaml:"version"`
	Mode       string         `yaml:"mode"`
	ListenAddr string         `yaml:"listen_addr"`
	DB         DatabaseConfig `yaml:"database"`
	Auth       AuthConfig     `yaml:"auth"`
	Loans      LoanConfig     `yaml:"loans"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Loans.LockWaitSeconds <= 0 {
		c.Loans.LockWaitSeconds = 3
	}
	if c.Loans.LoanDays <= 0 {
		c.Loans.LoanDays = 7
	}
	if c.Loans.RenewDays <= 0 {
		c.Loans.RenewDays = 7
	}
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Loans.LockWaitSeconds) * time.Second
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Pool sizing: keep the sum below MySQL max_connections.
	conn.SetMaxOpenConns(80)
	conn.SetMaxIdleConns(20)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return conn, nil
}
