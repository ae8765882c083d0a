package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen   = ":8001"
	DefaultDatabase = "botvault.db"
	DefaultProvider = "gmail"
)

// DefaultScopes cover read-only mail access plus the email claim used to
// label the linked account.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

var profileIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Config is built once at startup and passed explicitly into the
// components that need it. Nothing reads the environment after Load.
type Config struct {
	Listen   string    `yaml:"listen"`
	Database string    `yaml:"database"`
	OAuth    OAuth     `yaml:"oauth"`
	Profiles []Profile `yaml:"profiles"`
}

// OAuth holds the provider app registration. ClientID, ClientSecret, and
// RedirectURL can be overridden via OAUTH_CLIENT_ID, OAUTH_CLIENT_SECRET,
// and OAUTH_REDIRECT_URL.
type OAuth struct {
	Provider     string   `yaml:"provider"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// Profile is one bot tenant. Its token can be overridden via
// <ID>_BOT_TOKEN (profile id upper-cased, dashes to underscores).
type Profile struct {
	ID    string `yaml:"id"`
	Token string `yaml:"token"`
}

// Load reads the YAML config file, applies env overrides and defaults,
// and validates profile identifiers.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.OAuth.Provider == "" {
		c.OAuth.Provider = DefaultProvider
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = DefaultScopes
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OAUTH_CLIENT_ID"); v != "" {
		c.OAuth.ClientID = v
	}
	if v := os.Getenv("OAUTH_CLIENT_SECRET"); v != "" {
		c.OAuth.ClientSecret = v
	}
	if v := os.Getenv("OAUTH_REDIRECT_URL"); v != "" {
		c.OAuth.RedirectURL = v
	}
	for i := range c.Profiles {
		if v := os.Getenv(tokenEnvName(c.Profiles[i].ID)); v != "" {
			c.Profiles[i].Token = v
		}
	}
}

func tokenEnvName(profileID string) string {
	return strings.ToUpper(strings.ReplaceAll(profileID, "-", "_")) + "_BOT_TOKEN"
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if !profileIDRegexp.MatchString(p.ID) {
			return fmt.Errorf("invalid profile id %q", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate profile id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth client_id and client_secret are required")
	}
	if c.OAuth.RedirectURL == "" {
		return fmt.Errorf("oauth redirect_url is required")
	}
	return nil
}

// OAuth2 builds the oauth2 config for the authorization-code flow.
// Endpoint URLs default to Google's when the file names none.
func (o OAuth) OAuth2() *oauth2.Config {
	endpoint := googleOAuth.Endpoint
	if o.AuthURL != "" || o.TokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: o.AuthURL, TokenURL: o.TokenURL}
	}
	return &oauth2.Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		RedirectURL:  o.RedirectURL,
		Scopes:       o.Scopes,
		Endpoint:     endpoint,
	}
}
