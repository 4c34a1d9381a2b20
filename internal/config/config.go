package config // package config loads and generates the application configuration

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all runtime configuration values.  Unlike environment-only
// setups, the configuration lives in a JSON file under the storage directory
// so that generated secrets survive restarts.  Individual values may still be
// overridden through environment variables carrying the WEBAPP_ prefix.
type Config struct {
	// PublicUrl is the externally reachable base url of this application.
	PublicUrl string `json:"public_url"`

	Database       DatabaseConfig       `json:"database"`
	Authentication AuthenticationConfig `json:"authentication"`
	Upstream       UpstreamConfig       `json:"upstream"`
}

// DatabaseConfig describes the MySQL connection.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// AuthenticationConfig carries the secrets and knobs of the auth subsystem.
// Secret signs authorization codes, AccessSecret and RefreshSecret sign the
// corresponding token classes.  The three are distinct so that leaking one
// class of credential does not compromise the others.
type AuthenticationConfig struct {
	Secret        string `json:"secret"`
	AccessSecret  string `json:"access_secret"`
	RefreshSecret string `json:"refresh_secret"`

	ClientId     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// RedirectUri and AuthorizeEndpoint default to values derived from
	// PublicUrl when left empty in the file.
	RedirectUri       string `json:"redirect_uri"`
	AuthorizeEndpoint string `json:"authorize_endpoint"`

	CookieName       string `json:"cookie_name"`
	CookieExpiryDays int    `json:"cookie_expiry_days"`

	AccessTTLMin   int `json:"access_ttl_min"`
	RefreshTTLDays int `json:"refresh_ttl_days"`
	BcryptCost     int `json:"bcrypt_cost"`
}

// UpstreamConfig configures the optional cached-token refresh against an
// external identity provider.  The feature is disabled while TokenEndpoint
// is empty.
type UpstreamConfig struct {
	TokenEndpoint string `json:"token_endpoint"`
	ClientId      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
}

// Load reads the configuration file from dir (usually "storage"), creating it
// with defaults and freshly generated secrets when it does not exist yet.
// Environment overrides are applied after the file has been read.  Secrets
// are generated exactly once; subsequent boots reuse the persisted values so
// previously issued credentials stay valid.
func Load(dir string) (Config, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Config{}, fmt.Errorf("config: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.json")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return Config{}, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDerived(&cfg)
	return cfg, nil
}

// writeDefault persists a fresh configuration with random secrets.
func writeDefault(path string) error {
	cfg := Config{
		PublicUrl: "http://localhost:8080",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "3306",
			Username: "db_user",
			Password: "db_password",
			Database: "db_name",
		},
		Authentication: AuthenticationConfig{
			Secret:           randomSecret(32),
			AccessSecret:     randomSecret(32),
			RefreshSecret:    randomSecret(32),
			ClientId:         randomSecret(8),
			ClientSecret:     randomSecret(32),
			CookieName:       "webapp_session",
			CookieExpiryDays: 7,
			AccessTTLMin:     30,
			RefreshTTLDays:   30,
			BcryptCost:       12,
		},
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	// 0600: the file contains signing secrets
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides file values with WEBAPP_-prefixed environment variables.
func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"WEBAPP_PUBLIC_URL":                    &cfg.PublicUrl,
		"WEBAPP_DATABASE_HOST":                 &cfg.Database.Host,
		"WEBAPP_DATABASE_PORT":                 &cfg.Database.Port,
		"WEBAPP_DATABASE_USERNAME":             &cfg.Database.Username,
		"WEBAPP_DATABASE_PASSWORD":             &cfg.Database.Password,
		"WEBAPP_DATABASE_DATABASE":             &cfg.Database.Database,
		"WEBAPP_AUTHENTICATION_SECRET":         &cfg.Authentication.Secret,
		"WEBAPP_AUTHENTICATION_ACCESS_SECRET":  &cfg.Authentication.AccessSecret,
		"WEBAPP_AUTHENTICATION_REFRESH_SECRET": &cfg.Authentication.RefreshSecret,
		"WEBAPP_AUTHENTICATION_CLIENT_ID":      &cfg.Authentication.ClientId,
		"WEBAPP_AUTHENTICATION_CLIENT_SECRET":  &cfg.Authentication.ClientSecret,
		"WEBAPP_AUTHENTICATION_REDIRECT_URI":   &cfg.Authentication.RedirectUri,
		"WEBAPP_AUTHENTICATION_COOKIE_NAME":    &cfg.Authentication.CookieName,
		"WEBAPP_UPSTREAM_TOKEN_ENDPOINT":       &cfg.Upstream.TokenEndpoint,
		"WEBAPP_UPSTREAM_CLIENT_ID":            &cfg.Upstream.ClientId,
		"WEBAPP_UPSTREAM_CLIENT_SECRET":        &cfg.Upstream.ClientSecret,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	intOverrides := map[string]*int{
		"WEBAPP_AUTHENTICATION_ACCESS_TTL_MIN":     &cfg.Authentication.AccessTTLMin,
		"WEBAPP_AUTHENTICATION_REFRESH_TTL_DAYS":   &cfg.Authentication.RefreshTTLDays,
		"WEBAPP_AUTHENTICATION_COOKIE_EXPIRY_DAYS": &cfg.Authentication.CookieExpiryDays,
		"WEBAPP_AUTHENTICATION_BCRYPT_COST":        &cfg.Authentication.BcryptCost,
	}
	for key, dst := range intOverrides {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
}

// applyDerived fills optional values that default to derivations of PublicUrl.
func applyDerived(cfg *Config) {
	if cfg.Authentication.RedirectUri == "" {
		cfg.Authentication.RedirectUri = cfg.PublicUrl
	}
	if cfg.Authentication.AuthorizeEndpoint == "" {
		cfg.Authentication.AuthorizeEndpoint = cfg.PublicUrl + "/oauth2/authorize"
	}
	if cfg.Authentication.CookieName == "" {
		cfg.Authentication.CookieName = "webapp_session"
	}
	if cfg.Authentication.BcryptCost == 0 {
		cfg.Authentication.BcryptCost = 12
	}
	if cfg.Authentication.AccessTTLMin == 0 {
		cfg.Authentication.AccessTTLMin = 30
	}
	if cfg.Authentication.RefreshTTLDays == 0 {
		cfg.Authentication.RefreshTTLDays = 30
	}
	if cfg.Authentication.CookieExpiryDays == 0 {
		cfg.Authentication.CookieExpiryDays = 7
	}
}

// randomSecret returns n bytes of secure randomness as a hex string.
func randomSecret(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// A failing platform RNG leaves no sane way to generate secrets.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
