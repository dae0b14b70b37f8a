// Package config loads the bot configuration from config.toml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvConfigFile = "INTAKE_CONFIG"
	envPrefix     = "INTAKE"

	configDir  = ".config/intake"
	configName = "config"
	configType = "toml"
)

const (
	ModeWebhook = "webhook"
	ModePoll    = "poll"

	BackendSheets = "sheets"
	BackendSQL    = "sql"
	BackendTOML   = "toml"
	BackendMemory = "memory"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	// Token may be a secret reference (pass:, file:, env:) or the literal token.
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
	Mode    string `mapstructure:"mode"`
	Listen  string `mapstructure:"listen"`
	// WebhookPath is where updates are accepted on Listen.
	WebhookPath string `mapstructure:"webhook_path"`
	// WebhookURL is registered with setWebhook at startup when set.
	WebhookURL     string        `mapstructure:"webhook_url"`
	SecretToken    string        `mapstructure:"secret_token"`
	Keyboard       string        `mapstructure:"keyboard"`
	ButtonsPerRow  int           `mapstructure:"buttons_per_row"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
}

type LedgerConfig struct {
	Backend string       `mapstructure:"backend"`
	Sheets  SheetsConfig `mapstructure:"sheets"`
	SQL     SQLConfig    `mapstructure:"sql"`
	TOML    TOMLConfig   `mapstructure:"toml"`
}

type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
	CredentialsFile string `mapstructure:"credentials_file"`
	ClientEmail     string `mapstructure:"client_email"`
	PrivateKey      string `mapstructure:"private_key"`
	Timezone        string `mapstructure:"timezone"`
}

type SQLConfig struct {
	Dialect string `mapstructure:"dialect"`
	DSN     string `mapstructure:"dsn"`
}

type TOMLConfig struct {
	Path string `mapstructure:"path"`
}

type SessionConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxQuantityChoices int           `mapstructure:"max_quantity_choices"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LoadOptions struct {
	// File overrides the config file search.
	File string
}

// legacyEnv maps keys to the environment names the first deployment used.
var legacyEnv = map[string]string{
	"telegram.token":               "BOT_TOKEN",
	"telegram.listen":              "PORT",
	"ledger.sheets.spreadsheet_id": "SPREADSHEET_ID",
	"ledger.sheets.sheet_name":     "SHEET_NAME",
	"ledger.sheets.client_email":   "GOOGLE_CLIENT_EMAIL",
	"ledger.sheets.private_key":    "GOOGLE_PRIVATE_KEY",
}

// Load reads config.toml (when present) and the environment. The returned
// viper instance carries the merged settings for adapters that read their own
// keys.
func Load(opts LoadOptions) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envName(key), legacy); err != nil {
			return nil, nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if err := readConfigFile(v, opts.File); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	return &cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.mode", ModeWebhook)
	v.SetDefault("telegram.listen", ":3000")
	v.SetDefault("telegram.webhook_path", "/")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.secret_token", "")
	v.SetDefault("telegram.keyboard", "inline")
	v.SetDefault("telegram.buttons_per_row", 1)
	v.SetDefault("telegram.request_timeout", 15*time.Second)
	v.SetDefault("telegram.poll_timeout", 30*time.Second)

	v.SetDefault("ledger.backend", BackendSheets)
	v.SetDefault("ledger.sheets.spreadsheet_id", "")
	v.SetDefault("ledger.sheets.sheet_name", "")
	v.SetDefault("ledger.sheets.credentials_file", "")
	v.SetDefault("ledger.sheets.client_email", "")
	v.SetDefault("ledger.sheets.private_key", "")
	v.SetDefault("ledger.sheets.timezone", "")
	v.SetDefault("ledger.sql.dialect", "sqlite")
	v.SetDefault("ledger.sql.dsn", "")
	v.SetDefault("ledger.toml.path", "")

	v.SetDefault("session.timeout", 30*time.Minute)
	v.SetDefault("session.max_quantity_choices", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func readConfigFile(v *viper.Viper, file string) error {
	if file == "" {
		file = os.Getenv(EnvConfigFile)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, configDir))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	return nil
}

func (c *Config) normalize() {
	c.Telegram.Mode = strings.ToLower(strings.TrimSpace(c.Telegram.Mode))
	c.Telegram.Keyboard = strings.ToLower(strings.TrimSpace(c.Telegram.Keyboard))
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	c.Ledger.SQL.Dialect = strings.ToLower(strings.TrimSpace(c.Ledger.SQL.Dialect))

	// PORT carries a bare port number.
	listen := strings.TrimSpace(c.Telegram.Listen)
	if listen != "" && !strings.Contains(listen, ":") {
		listen = ":" + listen
	}
	c.Telegram.Listen = listen

	if c.Telegram.WebhookPath == "" {
		c.Telegram.WebhookPath = "/"
	} else if !strings.HasPrefix(c.Telegram.WebhookPath, "/") {
		c.Telegram.WebhookPath = "/" + c.Telegram.WebhookPath
	}
}

// Validate checks enum values and the fields each ledger backend needs.
// Telegram credentials are checked by ValidateServe.
func (c Config) Validate() error {
	var errs []error

	switch c.Telegram.Mode {
	case ModeWebhook, ModePoll:
	default:
		errs = append(errs, fmt.Errorf("telegram.mode must be %s or %s, got %q", ModeWebhook, ModePoll, c.Telegram.Mode))
	}

	switch c.Telegram.Keyboard {
	case "inline", "reply":
	default:
		errs = append(errs, fmt.Errorf("telegram.keyboard must be inline or reply, got %q", c.Telegram.Keyboard))
	}

	if c.Telegram.ButtonsPerRow < 1 {
		errs = append(errs, errors.New("telegram.buttons_per_row must be at least 1"))
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, errors.New("session.timeout must be positive"))
	}
	if c.Session.MaxQuantityChoices < 1 {
		errs = append(errs, errors.New("session.max_quantity_choices must be at least 1"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	switch c.Ledger.Backend {
	case BackendSheets:
		if c.Ledger.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("ledger.sheets.spreadsheet_id is required"))
		}
		if c.Ledger.Sheets.SheetName == "" {
			errs = append(errs, errors.New("ledger.sheets.sheet_name is required"))
		}
		if c.Ledger.Sheets.CredentialsFile == "" && (c.Ledger.Sheets.ClientEmail == "" || c.Ledger.Sheets.PrivateKey == "") {
			errs = append(errs, errors.New("ledger.sheets needs credentials_file or client_email and private_key"))
		}
	case BackendSQL:
		switch c.Ledger.SQL.Dialect {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Errorf("ledger.sql.dialect must be sqlite or postgres, got %q", c.Ledger.SQL.Dialect))
		}
		if c.Ledger.SQL.DSN == "" {
			errs = append(errs, errors.New("ledger.sql.dsn is required"))
		}
	case BackendTOML, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("ledger.backend must be one of sheets, sql, toml, memory, got %q", c.Ledger.Backend))
	}

	return errors.Join(errs...)
}

// ValidateServe adds the checks needed to talk to Telegram.
func (c Config) ValidateServe() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.Telegram.Mode == ModeWebhook && c.Telegram.Listen == "" {
		errs = append(errs, errors.New("telegram.listen is required in webhook mode"))
	}

	return errors.Join(errs...)
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
