// Package config loads service settings from the environment, .env files
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/nixxel-company-limited/escpos-dispatcher/adapter"
	"github.com/nixxel-company-limited/escpos-dispatcher/escpos"
	"github.com/nixxel-company-limited/escpos-dispatcher/queue"
	"github.com/nixxel-company-limited/escpos-dispatcher/receipt"
)

// EnvFiles are loaded before the environment is read. Variables already set
// win over the files.
var EnvFiles = []string{".env", ".env.local"}

type Config struct {
	AppEnv   string
	LogLevel string

	ServerAddress string
	HTTPAddress   string
	RawMaxBytes   int

	Device   string
	BaudRate int

	Cooldown            time.Duration
	OpenFailureCooldown time.Duration

	LogoPath     string
	LogoWidth    int
	PaperColumns int
	ReceiptFile  string
	CodePage     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_ADDRESS", "localhost:9100")
	v.SetDefault("HTTP_ADDRESS", "localhost:8080")
	v.SetDefault("RAW_MAX_BYTES", 1<<20)
	v.SetDefault("DEVICE", "usb")
	v.SetDefault("BAUD_RATE", adapter.DefaultBaudRate)
	v.SetDefault("COOLDOWN", queue.DefaultCooldown)
	v.SetDefault("OPEN_FAILURE_COOLDOWN", queue.DefaultOpenFailureCooldown)
	v.SetDefault("LOGO_PATH", "")
	v.SetDefault("LOGO_WIDTH", escpos.DefaultMaxWidth)
	v.SetDefault("PAPER_COLUMNS", receipt.DefaultColumns)
	v.SetDefault("RECEIPT_FILE", "")
	v.SetDefault("CODE_PAGE", "")
	v.SetDefault("CONFIG_FILE", "")
}

// Load reads the .env files, the environment and, when CONFIG_FILE is set,
// that file. Environment variables override the file.
func Load() (*Config, error) {
	if err := LoadEnvFiles(EnvFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		AppEnv:              v.GetString("APP_ENV"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		ServerAddress:       v.GetString("SERVER_ADDRESS"),
		HTTPAddress:         v.GetString("HTTP_ADDRESS"),
		RawMaxBytes:         v.GetInt("RAW_MAX_BYTES"),
		Device:              v.GetString("DEVICE"),
		BaudRate:            v.GetInt("BAUD_RATE"),
		Cooldown:            v.GetDuration("COOLDOWN"),
		OpenFailureCooldown: v.GetDuration("OPEN_FAILURE_COOLDOWN"),
		LogoPath:            v.GetString("LOGO_PATH"),
		LogoWidth:           v.GetInt("LOGO_WIDTH"),
		PaperColumns:        v.GetInt("PAPER_COLUMNS"),
		ReceiptFile:         v.GetString("RECEIPT_FILE"),
		CodePage:            v.GetString("CODE_PAGE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads each file that exists into the environment.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.ServerAddress == "" && c.HTTPAddress == "" {
		return fmt.Errorf("at least one of SERVER_ADDRESS and HTTP_ADDRESS is required")
	}

	if c.RawMaxBytes < 1 {
		return fmt.Errorf("raw max bytes must be positive, got %d", c.RawMaxBytes)
	}

	if c.BaudRate < 1 {
		return fmt.Errorf("baud rate must be positive, got %d", c.BaudRate)
	}

	if _, err := c.Target(); err != nil {
		return fmt.Errorf("invalid DEVICE: %w", err)
	}

	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative")
	}

	if c.OpenFailureCooldown < 0 {
		return fmt.Errorf("open failure cooldown must be non-negative")
	}

	if c.LogoWidth < 8 {
		return fmt.Errorf("logo width must be at least 8 dots, got %d", c.LogoWidth)
	}

	if c.PaperColumns < 16 {
		return fmt.Errorf("paper columns must be at least 16, got %d", c.PaperColumns)
	}

	if _, err := escpos.LookupCodePage(c.CodePage); err != nil {
		return err
	}

	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log level: %s", c.LogLevel)
		}
	}

	return nil
}

// Target is the default printer jobs go to when they name none.
func (c *Config) Target() (adapter.Target, error) {
	return adapter.ParseTarget(c.Device, c.BaudRate)
}

// Queue returns the scheduler settings.
func (c *Config) Queue() queue.Config {
	return queue.Config{Cooldown: c.Cooldown, OpenFailureCooldown: c.OpenFailureCooldown}
}
