package config

import (
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DatabaseDriver)
	}
	if cfg.WalkInPolicy != WalkInAdmit {
		t.Errorf("expected walk-in policy %q, got %q", WalkInAdmit, cfg.WalkInPolicy)
	}
	if cfg.SMTPPort != 587 {
		t.Errorf("expected SMTP port 587, got %d", cfg.SMTPPort)
	}
	if cfg.Location().String() != "America/Sao_Paulo" {
		t.Errorf("expected America/Sao_Paulo, got %s", cfg.Location())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("WALK_IN_POLICY", "waitlist")
	t.Setenv("SMTP_PORT", "465")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.WalkInPolicy != WalkInWaitlist {
		t.Errorf("expected waitlist policy, got %s", cfg.WalkInPolicy)
	}
	if cfg.SMTPPort != 465 {
		t.Errorf("expected SMTP port 465, got %d", cfg.SMTPPort)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DatabaseDriver: "sqlite",
			DatabasePath:   "checkin.db",
			WalkInPolicy:   WalkInAdmit,
			Timezone:       "UTC",
			StorageDriver:  "local",
			JWTSecret:      "secret",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "postgres without dsn", mutate: func(c *Config) { c.DatabaseDriver = "postgres" }, wantErr: "DATABASE_DSN"},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: "DATABASE_DRIVER"},
		{name: "bad policy", mutate: func(c *Config) { c.WalkInPolicy = "always" }, wantErr: "WALK_IN_POLICY"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "TIMEZONE"},
		{name: "r2 incomplete", mutate: func(c *Config) { c.StorageDriver = "r2" }, wantErr: "R2_"},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET"},
		{name: "auth disabled", mutate: func(c *Config) { c.JWTSecret = ""; c.AuthDisabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
