package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
)

const (
	envPrefix             = "YAPP"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = "sqlite"
	defaultDatabasePath   = "yapp.db"
	defaultLogLevel       = "info"
	defaultTokenTTL       = 60
	defaultAPIBaseURL     = "http://localhost:8080"
	defaultAPITimeout     = 10
	defaultReactionMode   = "set"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	SigningSecret  string
	Issuer         string
	TokenTTL       time.Duration
	LogLevel       string
	LogFile        string
	RedisURL       string
}

// ClientConfig captures configuration for the feed client.
type ClientConfig struct {
	APIBaseURL          string
	APITimeout          time.Duration
	StreamURL           string
	AuthToken           string
	IdentityEmail       string
	ReactionMode        string
	RefreshAfterComment bool
	LogLevel            string
}

// LoadDotEnv reads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("auth.issuer", auth.DefaultIssuer)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("log.level", defaultLogLevel)

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("api.timeout_seconds", defaultAPITimeout)
	configViper.SetDefault("reactions.mode", defaultReactionMode)
	configViper.SetDefault("comments.refresh_after_create", false)
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		Issuer:         configViper.GetString("auth.issuer"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		LogLevel:       configViper.GetString("log.level"),
		LogFile:        configViper.GetString("log.file"),
		RedisURL:       configViper.GetString("redis.url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	return nil
}

// LoadClient parses client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		APIBaseURL:          strings.TrimRight(strings.TrimSpace(configViper.GetString("api.base_url")), "/"),
		APITimeout:          time.Duration(configViper.GetInt("api.timeout_seconds")) * time.Second,
		StreamURL:           strings.TrimSpace(configViper.GetString("api.stream_url")),
		AuthToken:           strings.TrimSpace(configViper.GetString("auth.token")),
		IdentityEmail:       strings.TrimSpace(configViper.GetString("identity.email")),
		ReactionMode:        strings.ToLower(strings.TrimSpace(configViper.GetString("reactions.mode"))),
		RefreshAfterComment: configViper.GetBool("comments.refresh_after_create"),
		LogLevel:            configViper.GetString("log.level"),
	}
	if cfg.APIBaseURL == "" {
		return ClientConfig{}, fmt.Errorf("api.base_url is required")
	}
	if cfg.APITimeout <= 0 {
		return ClientConfig{}, fmt.Errorf("api.timeout_seconds must be positive")
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = deriveStreamURL(cfg.APIBaseURL)
	}
	return cfg, nil
}

func deriveStreamURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/stream"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/stream"
	default:
		return baseURL + "/stream"
	}
}
