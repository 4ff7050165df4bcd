package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Walk-in policies decide what happens when someone checks in without being
// enrolled beforehand.
const (
	WalkInAdmit    = "admit"
	WalkInWaitlist = "waitlist"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabasePath   string `mapstructure:"DATABASE_PATH"`
	DatabaseDSN    string `mapstructure:"DATABASE_DSN"`

	DiscordClientID               string `mapstructure:"DISCORD_CLIENT_ID"`
	DiscordClientSecret           string `mapstructure:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURL            string `mapstructure:"DISCORD_REDIRECT_URL"`
	DiscordGuildID                string `mapstructure:"DISCORD_GUILD_ID"`
	DiscordOrganizerRoleID        string `mapstructure:"DISCORD_ORGANIZER_ROLE_ID"`
	DiscordBotToken               string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	AuthDisabled                  bool   `mapstructure:"AUTH_DISABLED"`

	WalkInPolicy  string `mapstructure:"WALK_IN_POLICY"`
	Timezone      string `mapstructure:"TIMEZONE"`
	DefaultLocale string `mapstructure:"DEFAULT_LOCALE"`

	StorageDriver     string `mapstructure:"STORAGE_DRIVER"`
	StorageDir        string `mapstructure:"STORAGE_DIR"`
	R2AccountID       string `mapstructure:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `mapstructure:"R2_BUCKET_NAME"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`
}

var boundEnv = []string{
	"DATABASE_DSN",
	"DISCORD_CLIENT_ID",
	"DISCORD_CLIENT_SECRET",
	"DISCORD_GUILD_ID",
	"DISCORD_ORGANIZER_ROLE_ID",
	"DISCORD_BOT_TOKEN",
	"DISCORD_NOTIFICATIONS_CHANNEL_ID",
	"JWT_SECRET",
	"AUTH_DISABLED",
	"R2_ACCOUNT_ID",
	"R2_ACCESS_KEY_ID",
	"R2_SECRET_ACCESS_KEY",
	"R2_BUCKET_NAME",
	"SMTP_HOST",
	"SMTP_USER",
	"SMTP_PASS",
	"SMTP_FROM",
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments pass plain environment variables.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_PATH", "checkin.db")
	v.SetDefault("DISCORD_REDIRECT_URL", "http://127.0.0.1:8080/auth/discord/callback")
	v.SetDefault("WALK_IN_POLICY", WalkInAdmit)
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("DEFAULT_LOCALE", "pt-BR")
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_DIR", "media")
	v.SetDefault("SMTP_PORT", 587)

	for _, key := range boundEnv {
		v.BindEnv(key)
	}

	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("config: DATABASE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("config: DATABASE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.WalkInPolicy != WalkInAdmit && c.WalkInPolicy != WalkInWaitlist {
		return fmt.Errorf("config: WALK_IN_POLICY must be %q or %q, got %q", WalkInAdmit, WalkInWaitlist, c.WalkInPolicy)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	switch c.StorageDriver {
	case "local":
	case "r2":
		if c.R2AccountID == "" || c.R2AccessKeyID == "" || c.R2SecretAccessKey == "" || c.R2BucketName == "" {
			return fmt.Errorf("config: R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY and R2_BUCKET_NAME are required for the r2 storage driver")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if !c.AuthDisabled && c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required unless AUTH_DISABLED is set")
	}

	return nil
}

// Location returns the time zone used to render check-in times.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MailEnabled reports whether enough SMTP settings are present to send email.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}
