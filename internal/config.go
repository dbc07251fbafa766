package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	Host              string        `env:"HOST,default=localhost"`
	HTTPPort          int           `env:"HTTP_PORT,default=8080"`
	GRPCPort          int           `env:"GRPC_PORT,default=9090"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	SearchLimit          int           `env:"SEARCH_LIMIT,default=50"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=true"`
	CharReplacement   string `env:"CHARACTER_REPLACEMENT,default=*"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=2s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=5s"`
	EnableInspect   bool          `env:"ENABLE_INSPECT,default=false"`
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Compact(origins)
}

// Validate checks what the tags cannot express.
func (c Config) Validate() error {
	switch {
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.SearchLimit <= 0:
		return fmt.Errorf("SEARCH_LIMIT must be positive, got %d", c.SearchLimit)
	case c.LimitMessages != nil && *c.LimitMessages <= 0:
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	case c.WriteTimeout <= 0 || c.RestartInterval <= 0 || c.MetricInterval <= 0:
		return fmt.Errorf("WRITE_TIMEOUT, RESTART_INTERVAL and METRIC_INTERVAL must be positive")
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
