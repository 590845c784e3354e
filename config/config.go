// Package config reads process configuration from the environment, after
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port            int
	DatabaseURL     string
	ServiceToken    string
	AllowedOrigins  []string
	AuthServiceURL  string
	CardCatalogURL  string
	CDNBaseURL      string
	R2              R2Config
	PushDebounce    time.Duration
	CoalesceWindow  time.Duration
	HoldInterval    time.Duration
	StorePoll       time.Duration
	SessionTTL      time.Duration
	CardCacheTTL    time.Duration
	SweepInterval   time.Duration
	LocalDBPath     string
	ServerURL       string
	UploadDir       string
	LogLevel        string
	EnvFileNotFound bool
}

// R2Config is optional. Icons fall back to the local upload dir when it is
// incomplete.
type R2Config struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
}

func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.Bucket != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 5200)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("GAME_SERVICE_TOKEN", "")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_SERVICE_URL", "")
	v.SetDefault("CARD_CATALOG_URL", "https://api.scryfall.com")
	v.SetDefault("CDN_BASE_URL", "")
	v.SetDefault("CLOUDFLARE_ACCOUNT_ID", "")
	v.SetDefault("R2_ACCESS_KEY_ID", "")
	v.SetDefault("R2_ACCESS_KEY_SECRET", "")
	v.SetDefault("R2_BUCKET_NAME", "")
	v.SetDefault("PUSH_DEBOUNCE", "300ms")
	v.SetDefault("COALESCE_WINDOW", "50ms")
	v.SetDefault("HOLD_INTERVAL", "200ms")
	v.SetDefault("STORE_POLL_INTERVAL", "250ms")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CARD_CACHE_TTL", "168h")
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("LOCAL_DB_PATH", "tabletop.db")
	v.SetDefault("SERVER_URL", "http://localhost:5200")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads .env files (missing ones are fine) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	notFound := false
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		notFound = true
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:           v.GetInt("PORT"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		ServiceToken:   v.GetString("GAME_SERVICE_TOKEN"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		AuthServiceURL: strings.TrimRight(v.GetString("AUTH_SERVICE_URL"), "/"),
		CardCatalogURL: strings.TrimRight(v.GetString("CARD_CATALOG_URL"), "/"),
		CDNBaseURL:     strings.TrimRight(v.GetString("CDN_BASE_URL"), "/"),
		R2: R2Config{
			AccountID: v.GetString("CLOUDFLARE_ACCOUNT_ID"),
			AccessKey: v.GetString("R2_ACCESS_KEY_ID"),
			SecretKey: v.GetString("R2_ACCESS_KEY_SECRET"),
			Bucket:    v.GetString("R2_BUCKET_NAME"),
		},
		PushDebounce:    v.GetDuration("PUSH_DEBOUNCE"),
		CoalesceWindow:  v.GetDuration("COALESCE_WINDOW"),
		HoldInterval:    v.GetDuration("HOLD_INTERVAL"),
		StorePoll:       v.GetDuration("STORE_POLL_INTERVAL"),
		SessionTTL:      v.GetDuration("SESSION_TTL"),
		CardCacheTTL:    v.GetDuration("CARD_CACHE_TTL"),
		SweepInterval:   v.GetDuration("SWEEP_INTERVAL"),
		LocalDBPath:     v.GetString("LOCAL_DB_PATH"),
		ServerURL:       strings.TrimRight(v.GetString("SERVER_URL"), "/"),
		UploadDir:       v.GetString("UPLOAD_DIR"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		EnvFileNotFound: notFound,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	durations := map[string]time.Duration{
		"PUSH_DEBOUNCE":       c.PushDebounce,
		"COALESCE_WINDOW":     c.CoalesceWindow,
		"HOLD_INTERVAL":       c.HoldInterval,
		"STORE_POLL_INTERVAL": c.StorePoll,
		"SESSION_TTL":         c.SessionTTL,
		"CARD_CACHE_TTL":      c.CardCacheTTL,
		"SWEEP_INTERVAL":      c.SweepInterval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}
	return nil
}

// RequireServer checks the keys only the store server needs.
func (c *Config) RequireServer() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.ServiceToken == "" {
		missing = append(missing, "GAME_SERVICE_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
