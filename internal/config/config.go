package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport values for ServerConfig.Transport.
const (
	TransportStdio = "stdio"
	TransportNone  = "none"
)

// Config captures the settings required to boot the firewall MCP server.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Firewall    FirewallConfig    `yaml:"firewall"`
	Logging     LoggingConfig     `yaml:"logging"`
	Patterns    PatternsConfig    `yaml:"patterns"`
	Cache       CacheConfig       `yaml:"cache"`
	Correlation CorrelationConfig `yaml:"correlation"`
}

// ServerConfig controls the MCP transport and the optional gRPC listener.
type ServerConfig struct {
	// Address is the gRPC listen address; empty disables gRPC.
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	Transport       string        `yaml:"transport"`
}

// FirewallConfig configures access to the firewall MSP REST API.
type FirewallConfig struct {
	MSPDomain         string        `yaml:"mspDomain"`
	Token             string        `yaml:"token"`
	BoxID             string        `yaml:"boxID"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// PatternsConfig controls loading of additional correlation pattern packs.
type PatternsConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls caching of entity search pages.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"keyPrefix"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	LocalSize    int           `yaml:"localSize"`
	LocalTTL     time.Duration `yaml:"localTTL"`
	SearchTTL    time.Duration `yaml:"searchTTL"`
}

// CorrelationConfig tunes dispatch and sizing of correlation requests.
type CorrelationConfig struct {
	SearchTimeout      time.Duration `yaml:"searchTimeout"`
	MaxParallel        int           `yaml:"maxParallel"`
	FetchLimit         int           `yaml:"fetchLimit"`
	MaxFetchLimit      int           `yaml:"maxFetchLimit"`
	DefaultResultLimit int           `yaml:"defaultResultLimit"`
	MaxResultLimit     int           `yaml:"maxResultLimit"`
	MaxClauseValues    int           `yaml:"maxClauseValues"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FIREWALL_MCP_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			MetricsAddress:  "",
			GracefulTimeout: 10 * time.Second,
			Transport:       TransportStdio,
		},
		Firewall: FirewallConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Patterns: PatternsConfig{Path: "configs/patterns/custom.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			KeyPrefix:    "firewall-mcp:",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			LocalSize:    256,
			LocalTTL:     30 * time.Second,
			SearchTTL:    2 * time.Minute,
		},
		Correlation: CorrelationConfig{
			SearchTimeout:      30 * time.Second,
			MaxParallel:        4,
			FetchLimit:         500,
			MaxFetchLimit:      2000,
			DefaultResultLimit: 100,
			MaxResultLimit:     1000,
			MaxClauseValues:    50,
		},
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Firewall.MSPDomain) == "" {
		errs = append(errs, errors.New("firewall.mspDomain is required"))
	}
	if strings.TrimSpace(c.Firewall.Token) == "" {
		errs = append(errs, errors.New("firewall.token is required"))
	}
	switch c.Server.Transport {
	case TransportStdio:
	case TransportNone:
		if c.Server.Address == "" {
			errs = append(errs, errors.New("server.address is required when server.transport is none"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.transport must be %q or %q", TransportStdio, TransportNone))
	}
	if c.Firewall.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("firewall.requestsPerSecond must not be negative"))
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, errors.New("cache.addr is required when cache is enabled"))
	}
	if c.Correlation.SearchTimeout <= 0 {
		errs = append(errs, errors.New("correlation.searchTimeout must be positive"))
	}
	if c.Correlation.MaxParallel < 1 {
		errs = append(errs, errors.New("correlation.maxParallel must be at least 1"))
	}
	if c.Correlation.MaxFetchLimit < 1 || c.Correlation.MaxFetchLimit > 10000 {
		errs = append(errs, errors.New("correlation.maxFetchLimit must be within [1, 10000]"))
	}
	if c.Correlation.MaxResultLimit < 1 || c.Correlation.MaxResultLimit > 10000 {
		errs = append(errs, errors.New("correlation.maxResultLimit must be within [1, 10000]"))
	}
	return errors.Join(errs...)
}

// BaseURL returns the MSP API root derived from the configured domain.
func (f FirewallConfig) BaseURL() string {
	domain := strings.TrimRight(strings.TrimSpace(f.MSPDomain), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIREWALL_MCP_GRPC_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FIREWALL_MCP_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FIREWALL_MCP_TRANSPORT"); v != "" {
		cfg.Server.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("FIREWALL_MSP_DOMAIN"); v != "" {
		cfg.Firewall.MSPDomain = v
	}
	if v := os.Getenv("FIREWALL_MSP_TOKEN"); v != "" {
		cfg.Firewall.Token = v
	}
	if v := os.Getenv("FIREWALL_BOX_ID"); v != "" {
		cfg.Firewall.BoxID = v
	}
	if v := os.Getenv("FIREWALL_MSP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Firewall.Timeout = d
		}
	}
	if v := os.Getenv("FIREWALL_MSP_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Firewall.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("FIREWALL_MCP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FIREWALL_MCP_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("FIREWALL_MCP_PATTERNS_PATH"); v != "" {
		cfg.Patterns.Path = v
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("FIREWALL_MCP_CACHE_SEARCH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SearchTTL = d
		}
	}
	if v := os.Getenv("FIREWALL_MCP_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.SearchTimeout = d
		}
	}
	if v := os.Getenv("FIREWALL_MCP_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Correlation.MaxParallel = n
		}
	}
}
