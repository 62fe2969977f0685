// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package portal

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"github.com/saeedjamali/ticket-sanjesh-sub007/pkg/logging"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/auth"
	"github.com/saeedjamali/ticket-sanjesh-sub007/services/portal/uploads"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SANJESH_PORT.
const EnvPrefix = "SANJESH_"

// Config configures the portal service.
//
// # Description
//
// Values are layered: the YAML file given to LoadConfig, then
// environment variables (EnvPrefix + the env tag), then the defaults in
// applyConfigDefaults for anything still zero.
//
// # Example
//
//	port: 8080
//	dataDir: /var/lib/sanjesh
//	jwtSecret: change-me-change-me-change-me-1234
//	uploads:
//	  backend: gcs
//	  gcsBucket: sanjesh-attachments
type Config struct {
	// Port is the HTTP listen port.
	// Default: 8080
	Port int `yaml:"port" env:"PORT"`

	// DataDir is the Badger directory. Ignored when InMemory is set.
	// Default: ./data
	DataDir string `yaml:"dataDir" env:"DATA_DIR"`

	// InMemory keeps every document in RAM. Data is lost on exit.
	InMemory bool `yaml:"inMemory" env:"IN_MEMORY"`

	// JWTSecret signs session tokens. Must be at least
	// auth.MinSecretLength bytes. Required.
	JWTSecret string `yaml:"jwtSecret" env:"JWT_SECRET"`

	// JWTIssuer is the iss claim.
	// Default: "sanjesh"
	JWTIssuer string `yaml:"jwtIssuer" env:"JWT_ISSUER"`

	// TokenTTL is the session lifetime.
	// Default: 12h
	TokenTTL time.Duration `yaml:"tokenTTL" env:"TOKEN_TTL"`

	// SecureCookies marks the session cookie Secure. Enable behind TLS.
	SecureCookies bool `yaml:"secureCookies" env:"SECURE_COOKIES"`

	// Uploads selects and configures the attachment store.
	Uploads UploadConfig `yaml:"uploads" envPrefix:"UPLOAD_"`

	// LoginRatePerMinute is the sustained login rate per client IP.
	// Default: 10
	LoginRatePerMinute float64 `yaml:"loginRatePerMinute" env:"LOGIN_RATE_PER_MINUTE"`

	// LoginBurst is how many logins an IP may make at once.
	// Default: 5
	LoginBurst int `yaml:"loginBurst" env:"LOGIN_BURST"`

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For
	// header is believed when resolving the client IP for login
	// throttling. Empty trusts no proxy and uses the socket address.
	TrustedProxies []string `yaml:"trustedProxies" env:"TRUSTED_PROXIES" envSeparator:","`

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables
	// trace export.
	OTelEndpoint string `yaml:"otelEndpoint" env:"OTEL_ENDPOINT"`

	// EnableMetrics exposes /metrics.
	EnableMetrics bool `yaml:"enableMetrics" env:"ENABLE_METRICS"`

	// GinMode is passed to gin.SetMode ("debug", "release", "test").
	// Default: "release"
	GinMode string `yaml:"ginMode" env:"GIN_MODE"`

	// Log configures the service logger.
	Log LogConfig `yaml:"log" envPrefix:"LOG_"`
}

// UploadConfig selects the attachment backend.
type UploadConfig struct {
	// Backend is uploads.BackendDisk or uploads.BackendGCS.
	// Default: "disk"
	Backend string `yaml:"backend" env:"BACKEND"`

	// Dir is the root directory of the disk backend.
	// Default: <DataDir>/uploads, or a temp dir for in-memory stores.
	Dir string `yaml:"dir" env:"DIR"`

	GCSBucket          string `yaml:"gcsBucket" env:"GCS_BUCKET"`
	GCSPrefix          string `yaml:"gcsPrefix" env:"GCS_PREFIX"`
	GCSCredentialsFile string `yaml:"gcsCredentialsFile" env:"GCS_CREDENTIALS_FILE"`

	// MaxBytes caps a single attachment.
	// Default: uploads.DefaultMaxBytes
	MaxBytes int64 `yaml:"maxBytes" env:"MAX_BYTES"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level" env:"LEVEL"`

	// Dir enables daily log files. Empty logs to stderr only.
	Dir string `yaml:"dir" env:"DIR"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json" env:"JSON"`
}

// LoadConfig reads path (when non-empty), applies SANJESH_* environment
// overrides and fills defaults.
//
// # Outputs
//
//   - Config: Ready to pass to New.
//   - error: Non-nil when the file cannot be read or parsed, an
//     environment value has the wrong type, or Validate fails.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem New would hit.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("jwtSecret must be at least %d bytes", auth.MinSecretLength))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Uploads.Backend {
	case uploads.BackendDisk:
	case uploads.BackendGCS:
		if c.Uploads.GCSBucket == "" {
			errs = append(errs, errors.New("uploads.gcsBucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload backend %q", c.Uploads.Backend))
	}
	for _, proxy := range c.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("trustedProxies: %q is not an IP or CIDR", proxy))
		}
	}
	switch c.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("unknown gin mode %q", c.GinMode))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TokenConfig returns the token issuer settings.
func (c Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: []byte(c.JWTSecret),
		Issuer: c.JWTIssuer,
		TTL:    c.TokenTTL,
	}
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "sanjesh"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	cfg.Uploads.Backend = strings.ToLower(strings.TrimSpace(cfg.Uploads.Backend))
	if cfg.Uploads.Backend == "" {
		cfg.Uploads.Backend = uploads.BackendDisk
	}
	if cfg.Uploads.Dir == "" && !cfg.InMemory {
		cfg.Uploads.Dir = filepath.Join(cfg.DataDir, "uploads")
	}
	if cfg.Uploads.MaxBytes == 0 {
		cfg.Uploads.MaxBytes = uploads.DefaultMaxBytes
	}
	if cfg.LoginRatePerMinute == 0 {
		cfg.LoginRatePerMinute = 10
	}
	if cfg.LoginBurst == 0 {
		cfg.LoginBurst = 5
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return cfg
}
