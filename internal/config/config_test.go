package config

import "testing"

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "signaling", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Media: MediaConfig{TokenSecret: "media-secret", ServerURL: "https://sfu.example.com"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	c.DB.SSLMode = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_MediaSecretMustDifferFromAuthSecret(t *testing.T) {
	c := validBase()
	c.Media.TokenSecret = c.Auth.JWTSecret
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for shared media/auth secret")
	}
}

func TestValidate_MediaDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Media.TokenTTL <= 0 {
		t.Fatalf("expected media token ttl default")
	}
	if c.Media.PairSlotTTL <= 0 {
		t.Fatalf("expected pair slot ttl default")
	}
}
