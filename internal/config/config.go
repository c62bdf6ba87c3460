package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Game modes.
const (
	ModeAI     = "ai"
	ModeUser   = "user"
	ModeSeek   = "seek"
	ModeResume = "resume"
)

// View modes.
const (
	ViewConsole = "console"
	ViewWS      = "ws"
)

type AppConfig struct {
	LichessToken   string
	LichessBaseURL string

	Mode     string
	Opponent string
	AILevel  int
	GameID   string

	ClockLimit     int
	ClockIncrement int
	Rated          bool
	Color          string

	SubmitMaxAttempts int
	SubmitBaseDelay   time.Duration
	HTTPTimeout       time.Duration

	ViewMode    string
	ViewWSURL   string
	SnapshotDir string
	MessagesDir string

	RedisURL    string
	DatabaseURL string
}

// Load reads the environment and validates the result.
func Load() (*AppConfig, error) {
	cfg := LoadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv applies defaults and environment values without validating, so
// command-line flags can still be layered on top.
func LoadEnv() *AppConfig {
	cfg := &AppConfig{
		LichessBaseURL:    "https://lichess.org",
		Mode:              ModeAI,
		AILevel:           1,
		ClockLimit:        600,
		ClockIncrement:    5,
		Rated:             false,
		Color:             "random",
		SubmitMaxAttempts: 4,
		SubmitBaseDelay:   time.Second,
		HTTPTimeout:       10 * time.Second,
		ViewMode:          ViewConsole,
	}

	cfg.LichessToken = strings.TrimSpace(os.Getenv("LICHESS_TOKEN"))
	if v := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL")); v != "" {
		cfg.LichessBaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv("GAME_MODE")); v != "" {
		cfg.Mode = strings.ToLower(v)
	}
	cfg.Opponent = strings.TrimSpace(os.Getenv("GAME_OPPONENT"))
	cfg.GameID = strings.TrimSpace(os.Getenv("GAME_ID"))
	if v := strings.TrimSpace(os.Getenv("GAME_AI_LEVEL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AILevel = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLOCK_LIMIT")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ClockLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CLOCK_INCREMENT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ClockIncrement = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_RATED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Rated = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_COLOR")); v != "" {
		cfg.Color = strings.ToLower(v)
	}

	if v := strings.TrimSpace(os.Getenv("SUBMIT_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SubmitMaxAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUBMIT_BASE_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SubmitBaseDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}

	if v := strings.TrimSpace(os.Getenv("VIEW_MODE")); v != "" {
		cfg.ViewMode = strings.ToLower(v)
	}
	cfg.ViewWSURL = strings.TrimSpace(os.Getenv("VIEW_WS_URL"))
	cfg.SnapshotDir = strings.TrimSpace(os.Getenv("SNAPSHOT_DIR"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	return cfg
}

func (c *AppConfig) Validate() error {
	if c.LichessToken == "" {
		return errors.New("LICHESS_TOKEN is required")
	}
	switch c.Mode {
	case ModeAI:
		if c.AILevel < 1 || c.AILevel > 8 {
			return fmt.Errorf("GAME_AI_LEVEL must be 1-8, got %d", c.AILevel)
		}
	case ModeUser:
		if c.Opponent == "" {
			return errors.New("GAME_OPPONENT is required for mode user")
		}
	case ModeSeek:
		if c.ClockLimit == 0 {
			return errors.New("seek needs a clock (CLOCK_LIMIT > 0)")
		}
	case ModeResume:
		if c.GameID == "" && c.RedisURL == "" {
			return errors.New("GAME_ID or REDIS_URL is required for mode resume")
		}
	default:
		return fmt.Errorf("unknown GAME_MODE %q", c.Mode)
	}
	switch c.Color {
	case "white", "black", "random":
	default:
		return fmt.Errorf("GAME_COLOR must be white, black or random, got %q", c.Color)
	}
	switch c.ViewMode {
	case ViewConsole:
	case ViewWS:
		if c.ViewWSURL == "" {
			return errors.New("VIEW_WS_URL is required for view mode ws")
		}
	default:
		return fmt.Errorf("unknown VIEW_MODE %q", c.ViewMode)
	}
	return nil
}
