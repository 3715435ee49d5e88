package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/stephnangue/vortex/helper"
)

const (
	EnvTokenSecret = "VORTEX_TOKEN_SECRET"
	EnvLogLevel    = "VORTEX_LOG_LEVEL"

	minSigningKeySize = 32
)

// Config is the configuration for vortex server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Listeners []ListenerBlock `hcl:"listener,block"`
	Storage   *StorageBlock   `hcl:"storage,block"`
	Token     *TokenBlock     `hcl:"token,block"`
	Identity  *IdentityBlock  `hcl:"identity,block"`
	Login     *LoginBlock     `hcl:"login,block"`
	Audit     []AuditBlock    `hcl:"audit,block"`
}

type ListenerBlock struct {
	Name        string `hcl:"name,label"`
	Address     string `hcl:"address"`
	TLSCertFile string `hcl:"tls_cert_file,optional"`
	TLSKeyFile  string `hcl:"tls_key_file,optional"`
	TLSEnabled  bool   `hcl:"tls_enabled,optional"`
}

type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem", "postgres" or "redis"

	// PostgreSQL storage specific config
	ConnectionUrl      string `hcl:"connection_url,optional"`
	Table              string `hcl:"table,optional"`
	MaxIdleConnections int    `hcl:"max_idle_connections,optional"`
	MaxOpenConnections int    `hcl:"max_open_connections,optional"`
	ConnMaxLifetime    string `hcl:"conn_max_lifetime,optional"`
	SkipCreateTable    string `hcl:"skip_create_table,optional"`

	// Redis storage specific config
	Address   string `hcl:"address,optional"`
	URL       string `hcl:"url,optional"`
	Username  string `hcl:"username,optional"`
	Password  string `hcl:"password,optional"`
	DB        int    `hcl:"db,optional"`
	KeyPrefix string `hcl:"key_prefix,optional"`
	Retention string `hcl:"retention,optional"`
}

// Config returns the storage configuration as a map
func (s *StorageBlock) Config() map[string]string {
	config := make(map[string]string)

	config["type"] = s.Type

	set := func(key, value string) {
		if value != "" {
			config[key] = value
		}
	}
	setInt := func(key string, value int) {
		if value != 0 {
			config[key] = strconv.Itoa(value)
		}
	}

	set("connection_url", s.ConnectionUrl)
	set("table", s.Table)
	setInt("max_idle_connections", s.MaxIdleConnections)
	setInt("max_open_connections", s.MaxOpenConnections)
	set("conn_max_lifetime", s.ConnMaxLifetime)
	set("skip_create_table", s.SkipCreateTable)

	set("address", s.Address)
	set("url", s.URL)
	set("username", s.Username)
	set("password", s.Password)
	setInt("db", s.DB)
	set("key_prefix", s.KeyPrefix)
	set("retention", s.Retention)

	return config
}

type TokenBlock struct {
	TTL        string `hcl:"ttl,optional"`
	Secret     string `hcl:"secret,optional"`
	SecretFile string `hcl:"secret_file,optional"`
	Issuer     string `hcl:"issuer,optional"`
}

type IdentityBlock struct {
	Type            string      `hcl:"type,label"` // "static" or "postgres"
	ConnectionUrl   string      `hcl:"connection_url,optional"`
	SkipCreateTable bool        `hcl:"skip_create_table,optional"`
	CacheTTL        string      `hcl:"cache_ttl,optional"`
	CacheSize       int64       `hcl:"cache_size,optional"`
	Users           []UserBlock `hcl:"user,block"`
}

type UserBlock struct {
	Name         string   `hcl:"name,label"`
	PasswordHash string   `hcl:"password_hash,optional"`
	Enabled      *bool    `hcl:"enabled,optional"`
	Roles        []string `hcl:"roles,optional"`
}

// IsEnabled defaults to true when the enabled attribute is omitted.
func (u *UserBlock) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

type LoginBlock struct {
	Rate  float64 `hcl:"rate,optional"`
	Burst int     `hcl:"burst,optional"`
}

type AuditBlock struct {
	Type       string `hcl:"type,label"` // "file" or "stdout"
	Path       string `hcl:"path,optional"`
	MaxSizeMB  int    `hcl:"max_size_mb,optional"`
	MaxBackups int    `hcl:"max_backups,optional"`
	MaxAgeDays int    `hcl:"max_age_days,optional"`
	Compress   bool   `hcl:"compress,optional"`
	// HMACKey salts binding contexts. Defaults to the token signing key.
	HMACKey string `hcl:"hmac_key,optional"`
}

// LoadConfig reads, applies environment overrides to, and validates the
// configuration file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}
	return finish(&config)
}

// ParseConfig is LoadConfig over an in-memory source. filename must end in
// .hcl so the HCL syntax is selected.
func ParseConfig(filename string, src []byte) (*Config, error) {
	var config Config

	if err := hclsimple.Decode(filename, src, nil, &config); err != nil {
		return nil, err
	}
	return finish(&config)
}

func finish(c *Config) (*Config, error) {
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvTokenSecret); v != "" {
		if c.Token == nil {
			c.Token = &TokenBlock{}
		}
		c.Token.Secret = v
		c.Token.SecretFile = ""
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, err := c.GetApiListener(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.Storage == nil {
		result = multierror.Append(result, errors.New("a storage block is required"))
	} else {
		switch c.Storage.Type {
		case "inmem", "postgres", "redis":
		default:
			result = multierror.Append(result, fmt.Errorf("unsupported storage type %q", c.Storage.Type))
		}
	}

	if c.Token == nil {
		result = multierror.Append(result, fmt.Errorf("a token block is required (or set %s)", EnvTokenSecret))
	} else {
		if _, err := c.TokenTTL(); err != nil {
			result = multierror.Append(result, err)
		}
		if _, err := c.SigningKey(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.Identity == nil {
		result = multierror.Append(result, errors.New("an identity block is required"))
	} else {
		switch c.Identity.Type {
		case "static":
			seen := make(map[string]bool)
			for _, u := range c.Identity.Users {
				if seen[u.Name] {
					result = multierror.Append(result, fmt.Errorf("duplicate user %q", u.Name))
				}
				seen[u.Name] = true
			}
		case "postgres":
			if c.Identity.ConnectionUrl == "" {
				result = multierror.Append(result, errors.New("identity \"postgres\" requires connection_url"))
			}
		default:
			result = multierror.Append(result, fmt.Errorf("unsupported identity type %q", c.Identity.Type))
		}
		if _, err := c.CacheTTL(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	seenAudit := make(map[string]bool)
	for _, a := range c.Audit {
		switch a.Type {
		case "file":
			if a.Path == "" {
				result = multierror.Append(result, errors.New("audit \"file\" requires path"))
			}
		case "stdout":
		default:
			result = multierror.Append(result, fmt.Errorf("unsupported audit type %q", a.Type))
		}
		if seenAudit[a.Type] {
			result = multierror.Append(result, fmt.Errorf("duplicate audit block %q", a.Type))
		}
		seenAudit[a.Type] = true
	}

	if c.Login != nil && (c.Login.Rate < 0 || c.Login.Burst < 0) {
		result = multierror.Append(result, errors.New("login rate and burst must not be negative"))
	}

	return result.ErrorOrNil()
}

// TokenTTL returns the configured lifetime, or zero to use the default.
func (c *Config) TokenTTL() (time.Duration, error) {
	if c.Token == nil || c.Token.TTL == "" {
		return 0, nil
	}
	ttl, err := parseutil.ParseDurationSecond(c.Token.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid token ttl %q: %w", c.Token.TTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("token ttl must be positive, got %q", c.Token.TTL)
	}
	return ttl, nil
}

// SigningKey decodes the HMAC key from the secret or secret_file.
func (c *Config) SigningKey() ([]byte, error) {
	if c.Token == nil {
		return nil, errors.New("no token block")
	}

	secret := c.Token.Secret
	if secret == "" && c.Token.SecretFile != "" {
		raw, err := os.ReadFile(c.Token.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("read token secret_file: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		return nil, fmt.Errorf("token secret is not set (use secret, secret_file or %s)", EnvTokenSecret)
	}

	key, err := helper.DecodeSigningKey(secret)
	if err != nil {
		return nil, err
	}
	if len(key) < minSigningKeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", minSigningKeySize, len(key))
	}
	return key, nil
}

// CacheTTL returns the identity cache lifetime. Zero disables caching.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Identity == nil || c.Identity.CacheTTL == "" {
		return 0, nil
	}
	ttl, err := parseutil.ParseDurationSecond(c.Identity.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid identity cache_ttl %q: %w", c.Identity.CacheTTL, err)
	}
	return ttl, nil
}

// GetListenerByName returns a listener by its name (label)
func (c *Config) GetListenerByName(name string) (*ListenerBlock, error) {
	for _, listener := range c.Listeners {
		if listener.Name == name {
			return &listener, nil
		}
	}
	return nil, fmt.Errorf("listener '%s' not found", name)
}

// GetApiListener is a convenience method to get the Api listener
func (c *Config) GetApiListener() (*ListenerBlock, error) {
	return c.GetListenerByName("api")
}
