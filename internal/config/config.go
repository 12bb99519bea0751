package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	Host     string `envconfig:"REOLINK_HOST"`
	Username string `envconfig:"REOLINK_USERNAME" default:"admin"`
	Password string `envconfig:"REOLINK_PASSWORD"`

	Channel   int    `envconfig:"REOLINK_CHANNEL" default:"0"`
	Quality   string `envconfig:"QUALITY" default:"high"`
	OutputDir string `envconfig:"OUTPUT_DIR" default:"recordings"`
	Workers   int    `envconfig:"WORKERS" default:"2"`

	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"5m"`
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"30s"`
	Lookback       int           `envconfig:"LOOKBACK_DAYS" default:"30"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath            string `envconfig:"DB_PATH" default:"daygrab.db"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Web struct {
		Enabled         bool          `split_words:"true" default:"false"`
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9190"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// Args are the command line flags. Anything set here overrides the
// environment.
type Args struct {
	Host        string `arg:"--host" help:"recorder host or IP"`
	Username    string `arg:"-u,--username" help:"recorder account name"`
	Password    string `arg:"-p,--password" help:"recorder account password"`
	Date        string `arg:"-d,--date" help:"day to download (YYYY-MM-DD)"`
	Channel     *int   `arg:"-c,--channel" help:"camera channel"`
	Quality     string `arg:"-q,--quality" help:"high or low"`
	Workers     *int   `arg:"-w,--workers" help:"parallel download sessions"`
	Output      string `arg:"-o,--output" help:"output directory"`
	Interactive bool   `arg:"-i,--interactive" help:"pick channel and day interactively"`
}

// Apply overlays the parsed flags onto the environment config.
func (c *Config) Apply(args *Args) {
	if args.Host != "" {
		c.Host = args.Host
	}

	if args.Username != "" {
		c.Username = args.Username
	}

	if args.Password != "" {
		c.Password = args.Password
	}

	if args.Channel != nil {
		c.Channel = *args.Channel
	}

	if args.Quality != "" {
		c.Quality = args.Quality
	}

	if args.Workers != nil {
		c.Workers = *args.Workers
	}

	if args.Output != "" {
		c.OutputDir = args.Output
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
