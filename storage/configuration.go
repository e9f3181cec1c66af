package storage

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// ---------- Config (from env) ----------

// JWTConfiguration controls the bearer tokens issued by the account API.
type JWTConfiguration struct {
	SigningKey string        `env:"JWT_SIGNING_KEY,required"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"nexus-account-api"`
	Audience   string        `env:"JWT_AUDIENCE" envDefault:"nexus-web-portal"`
	Duration   time.Duration `env:"JWT_DURATION" envDefault:"24h"`
}

// APIConfiguration is the configuration of the backend account API.
type APIConfiguration struct {
	Address             string   `env:"API_ADDR" envDefault:":8080"`
	Environment         string   `env:"ENVIRONMENT" envDefault:"development"`
	DSN                 string   `env:"DATABASE_DSN,required"` // e.g. a Postgres DSN or sqlite://nexus.db
	DiscordBotToken     string   `env:"DISCORD_BOT_TOKEN"`
	DiscordAPIURL       string   `env:"DISCORD_API_URL" envDefault:"https://discord.com/api/v10"`
	VerificationBaseURL string   `env:"VERIFICATION_BASE_URL" envDefault:"http://localhost:3000"` // portal origin used in DM links
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	JWT                 JWTConfiguration
}

func (c APIConfiguration) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// DiscordOAuthConfiguration holds the OAuth2 application credentials.
type DiscordOAuthConfiguration struct {
	ClientID     string `env:"DISCORD_CLIENT_ID,required"`
	ClientSecret string `env:"DISCORD_CLIENT_SECRET,required"`
	RedirectURL  string `env:"DISCORD_REDIRECT_URL,required"` // e.g. https://yourdomain.com/api/auth/callback/discord
	APIURL       string `env:"DISCORD_API_URL" envDefault:"https://discord.com/api/v10"`
}

// PortalConfiguration is the configuration of the web portal.
type PortalConfiguration struct {
	Address       string        `env:"PORTAL_ADDR" envDefault:":3000"`
	Environment   string        `env:"ENVIRONMENT" envDefault:"development"`
	APIURL        string        `env:"API_URL,required"`
	SessionSecret string        `env:"SESSION_SECRET,required"`
	CacheDSN      string        `env:"CACHE_DSN"` // e.g. redis://localhost:6379/0
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"168h"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"1h"`
	Discord       DiscordOAuthConfiguration
}

func (c PortalConfiguration) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// OAuthConfig builds the OAuth2 config for Discord.
func (c PortalConfiguration) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.Discord.ClientID,
		ClientSecret: c.Discord.ClientSecret,
		Endpoint:     endpoints.Discord,
		RedirectURL:  c.Discord.RedirectURL,
		Scopes:       []string{"identify", "email", "guilds"},
	}
}

func InitializeAPIConfiguration() (*APIConfiguration, error) {
	var cfg APIConfiguration
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse api configuration: %w", err)
	}
	if len(cfg.JWT.SigningKey) < 32 {
		return nil, fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes")
	}
	return &cfg, nil
}

func InitializePortalConfiguration() (*PortalConfiguration, error) {
	var cfg PortalConfiguration
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse portal configuration: %w", err)
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	return &cfg, nil
}
