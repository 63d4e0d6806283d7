// Package config loads chronicle's configuration from CHRONICLE_-prefixed
// environment variables, generalized from EVE's EnvConfig/Validator
// pattern to the settings a chronicle process needs: which storage
// backend to open, sync defaults, the server's listen address, and
// service-level logging knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig loads typed values from environment variables under an
// optional prefix.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a loader for keys under prefix (e.g. "CHRONICLE").
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// GetString retrieves a string value with a default.
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		return v
	}
	return defaultValue
}

// MustGetString retrieves a required string value or panics.
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	v := os.Getenv(fullKey)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return v
}

// GetInt retrieves an integer value with a default.
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value with a default.
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetDuration retrieves a duration value with a default.
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a comma-separated value with a default.
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	v := os.Getenv(ec.buildKey(key))
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ServerConfig configures cmd/chronicle-server's HTTP listener.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

// LoadServerConfig loads ServerConfig from CHRONICLE_SERVER_*.
func LoadServerConfig(prefix string) ServerConfig {
	env := NewEnvConfig(prefix)
	return ServerConfig{
		Port:            env.GetInt("PORT", 8080),
		Host:            env.GetString("HOST", "0.0.0.0"),
		ReadTimeout:     env.GetDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    env.GetDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Debug:           env.GetBool("DEBUG", false),
	}
}

// StorageConfig selects and configures a storage.Backend.
type StorageConfig struct {
	// Kind is one of "memory", "local", "s3".
	Kind string

	LocalPath string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string
}

// LoadStorageConfig loads StorageConfig from CHRONICLE_STORAGE_*.
func LoadStorageConfig(prefix string) StorageConfig {
	env := NewEnvConfig(prefix)
	return StorageConfig{
		Kind:       env.GetString("KIND", "local"),
		LocalPath:  env.GetString("LOCAL_PATH", "./chronicle-data"),
		S3Bucket:   env.GetString("S3_BUCKET", ""),
		S3Region:   env.GetString("S3_REGION", "us-east-1"),
		S3Endpoint: env.GetString("S3_ENDPOINT", ""),
		S3Prefix:   env.GetString("S3_PREFIX", ""),
	}
}

// SyncConfig holds sync settings loaded from the environment. Load
// validates ConflictStrategy; the db facade does not construct a
// sync.Engine, so these values are not applied by db.Open.
type SyncConfig struct {
	RemoteKind       string
	LockTimeout      time.Duration
	ConflictStrategy string
}

// LoadSyncConfig loads SyncConfig from CHRONICLE_SYNC_*.
func LoadSyncConfig(prefix string) SyncConfig {
	env := NewEnvConfig(prefix)
	return SyncConfig{
		RemoteKind:       env.GetString("REMOTE_KIND", "s3"),
		LockTimeout:      env.GetDuration("LOCK_TIMEOUT", 30*time.Second),
		ConflictStrategy: env.GetString("CONFLICT_STRATEGY", "newest"),
	}
}

// ServiceConfig configures process identity and logging.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
	LogFormat   string
}

// LoadServiceConfig loads ServiceConfig from CHRONICLE_*.
func LoadServiceConfig(prefix string) ServiceConfig {
	env := NewEnvConfig(prefix)
	return ServiceConfig{
		Name:        env.GetString("NAME", "chronicle"),
		Version:     env.GetString("VERSION", "0.0.1"),
		Environment: env.GetString("ENVIRONMENT", "development"),
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		LogFormat:   env.GetString("LOG_FORMAT", "text"),
	}
}

// AuthConfig configures cmd/chronicle-server's JWT verification.
type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
}

// LoadAuthConfig loads AuthConfig from CHRONICLE_AUTH_*.
func LoadAuthConfig(prefix string) AuthConfig {
	env := NewEnvConfig(prefix)
	return AuthConfig{
		JWTSecret: env.GetString("JWT_SECRET", ""),
		JWTExpiry: env.GetDuration("JWT_EXPIRY", 24*time.Hour),
	}
}

// Config aggregates every chronicle configuration section.
type Config struct {
	Service ServiceConfig
	Server  ServerConfig
	Storage StorageConfig
	Sync    SyncConfig
	Auth    AuthConfig
}

// Load reads every section under the CHRONICLE prefix and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Service: LoadServiceConfig("CHRONICLE"),
		Server:  LoadServerConfig("CHRONICLE_SERVER"),
		Storage: LoadStorageConfig("CHRONICLE_STORAGE"),
		Sync:    LoadSyncConfig("CHRONICLE_SYNC"),
		Auth:    LoadAuthConfig("CHRONICLE_AUTH"),
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	v := NewValidator()
	v.RequireOneOf("Service.Environment", cfg.Service.Environment, []string{"development", "staging", "production"})
	v.RequireOneOf("Service.LogLevel", cfg.Service.LogLevel, []string{"debug", "info", "warn", "error"})
	v.RequireOneOf("Storage.Kind", cfg.Storage.Kind, []string{"memory", "local", "s3"})
	v.RequireOneOf("Sync.ConflictStrategy", cfg.Sync.ConflictStrategy, []string{"local-wins", "remote-wins", "newest", "manual"})
	v.RequirePositiveInt("Server.Port", cfg.Server.Port)
	if cfg.Storage.Kind == "s3" {
		v.RequireString("Storage.S3Bucket", cfg.Storage.S3Bucket)
	}
	return v.Validate()
}

// Validator accumulates configuration validation errors.
type Validator struct {
	errors []string
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

func (v *Validator) Errors() []string { return v.errors }

func (v *Validator) Validate() error {
	if v.IsValid() {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(v.errors, "; "))
}
