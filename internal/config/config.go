package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ledger backends.
const (
	LedgerFile     = "file"
	LedgerMemory   = "memory"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
)

type AppConfig struct {
	IrisBaseURL string `env:"IRIS_BASE_URL"`
	IrisWSURL   string `env:"IRIS_WS_URL"`

	BotPrefix string `env:"BOT_PREFIX" envDefault:"!"`

	// transport credentials, sent as X-User-Id / X-Session-Id headers
	XUserID    string `env:"X_USER_ID"`
	XUserEmail string `env:"X_USER_EMAIL"`
	XSessionID string `env:"X_SESSION_ID"`

	AllowedRooms []string `env:"ALLOWED_ROOMS" envSeparator:","`

	EgressMode   string `env:"EGRESS_MODE" envDefault:"http"`
	EgressDryRun bool   `env:"EGRESS_DRYRUN" envDefault:"false"`

	WSMaxReconnect   int           `env:"WS_MAX_RECONNECT" envDefault:"5"`
	WSReconnectDelay time.Duration `env:"WS_RECONNECT_DELAY" envDefault:"1s"`

	LedgerBackend  string `env:"LEDGER_BACKEND" envDefault:"file"`
	LedgerFile     string `env:"LEDGER_FILE" envDefault:"points.csv"`
	LedgerRedisKey string `env:"LEDGER_REDIS_KEY" envDefault:"spy:points"`
	RedisURL       string `env:"REDIS_URL"`
	DatabaseURL    string `env:"DATABASE_URL"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"spy.db"`

	WordsFile   string `env:"WORDS_FILE"`
	MessagesDir string `env:"MESSAGES_DIR"`

	GameIdleTTL time.Duration `env:"GAME_IDLE_TTL" envDefault:"0s"`
	MinPlayers  int           `env:"MIN_PLAYERS" envDefault:"3"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*AppConfig, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()
	return Parse()
}

// Parse builds the config from the process environment only.
func Parse() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.IrisBaseURL = strings.TrimSpace(c.IrisBaseURL)
	c.IrisWSURL = strings.TrimSpace(c.IrisWSURL)
	c.BotPrefix = strings.TrimSpace(c.BotPrefix)
	c.XUserID = strings.TrimSpace(c.XUserID)
	c.XUserEmail = strings.TrimSpace(c.XUserEmail)
	c.XSessionID = strings.TrimSpace(c.XSessionID)
	c.EgressMode = strings.ToLower(strings.TrimSpace(c.EgressMode))
	c.LedgerBackend = strings.ToLower(strings.TrimSpace(c.LedgerBackend))

	rooms := c.AllowedRooms[:0]
	for _, r := range c.AllowedRooms {
		if s := strings.TrimSpace(r); s != "" {
			rooms = append(rooms, s)
		}
	}
	c.AllowedRooms = rooms

	if c.MinPlayers < 3 {
		c.MinPlayers = 3
	}
	if c.GameIdleTTL < 0 {
		c.GameIdleTTL = 0
	}
}

func (c *AppConfig) Validate() error {
	if c.XUserID == "" || c.XSessionID == "" {
		return errors.New("X_USER_ID and X_SESSION_ID credentials are required")
	}
	if c.IrisBaseURL == "" {
		return errors.New("IRIS_BASE_URL is required")
	}
	if c.IrisWSURL == "" {
		return errors.New("IRIS_WS_URL is required")
	}
	if c.BotPrefix == "" {
		return errors.New("BOT_PREFIX is required")
	}
	switch c.EgressMode {
	case "http", "ws", "auto":
	default:
		return fmt.Errorf("unsupported EGRESS_MODE: %s", c.EgressMode)
	}
	switch c.LedgerBackend {
	case LedgerFile, LedgerMemory, LedgerRedis, LedgerPostgres, LedgerSQLite:
	default:
		return fmt.Errorf("unsupported LEDGER_BACKEND: %s", c.LedgerBackend)
	}
	return nil
}

// Headers returns the Iris request/handshake headers derived from the credentials.
func (c *AppConfig) Headers() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XUserEmail != "" {
		h["X-User-Email"] = c.XUserEmail
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}

// RoomAllowed reports whether commands from room are handled.
// An empty allow list admits every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}
