package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/aegis/config"
	ConfigFileName    = "aegis.yml"
)

// ValidScorers is the list of scorer names the pipeline knows how to build.
var ValidScorers = []string{"heuristic", "remote"}

// AegisConfig holds all AegisID server settings.
type AegisConfig struct {
	// Port is the HTTP listen port
	Port int `yaml:"port" json:"port"`

	// BindAddress is the HTTP listen address
	BindAddress string `yaml:"bind_address" json:"bind_address"`

	// OperatorTokenTTL is the TTL for operator tokens in seconds
	OperatorTokenTTL int `yaml:"operator_token_ttl" json:"operator_token_ttl"`

	// Scorers is the list of enabled scorers
	Scorers []string `yaml:"scorers" json:"scorers"`

	// DefaultScorer is the scorer used when a run does not name one
	DefaultScorer string `yaml:"default_scorer" json:"default_scorer"`

	// FallbackScorer is tried when the selected scorer fails hard
	FallbackScorer string `yaml:"fallback_scorer" json:"fallback_scorer"`

	// APIKeysPath is the scoring-API credentials file
	APIKeysPath string `yaml:"api_keys_path" json:"api_keys_path"`

	// PolicyPath is the review policy file
	PolicyPath string `yaml:"policy_path" json:"policy_path"`

	// ScoringRateLimit is the request-per-second cap on the remote scorer
	ScoringRateLimit float64 `yaml:"scoring_rate_limit" json:"scoring_rate_limit"`

	// ScoringRateBurst is the burst size for the remote scorer limiter
	ScoringRateBurst int `yaml:"scoring_rate_burst" json:"scoring_rate_burst"`

	// MaxConcurrentRuns bounds simultaneously executing review runs
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" json:"max_concurrent_runs"`

	// ListLimitMax is the maximum number of results for listing requests
	ListLimitMax int `yaml:"list_limit_max" json:"list_limit_max"`

	// LogLevel is the application log verbosity
	LogLevel string `yaml:"log_level" json:"log_level"`

	// sources tracks where each value came from
	sources map[string]string

	// configFilePath is the path to the config file
	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Global singleton config
var (
	globalConfig *AegisConfig
	configMu     sync.RWMutex
)

// Get returns the global configuration, loading it if necessary
func Get() *AegisConfig {
	configMu.RLock()
	if globalConfig != nil {
		configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			// Return defaults on error
			globalConfig = newDefault()
		} else {
			globalConfig = cfg
		}
	}
	return globalConfig
}

// Reload reloads the configuration from file and environment
func Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return nil
}

// newDefault returns a config with default values
func newDefault() *AegisConfig {
	return &AegisConfig{
		Port:              8084,
		BindAddress:       "0.0.0.0",
		OperatorTokenTTL:  480,
		Scorers:           []string{"heuristic"},
		DefaultScorer:     "heuristic",
		FallbackScorer:    "heuristic",
		APIKeysPath:       "config/api_keys.json",
		PolicyPath:        "config/review-policy.yml",
		ScoringRateLimit:  5,
		ScoringRateBurst:  10,
		MaxConcurrentRuns: 1,
		ListLimitMax:      1000,
		LogLevel:          "info",
		sources:           make(map[string]string),
	}
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over file values.
func Load() (*AegisConfig, error) {
	config := newDefault()

	// Initialize all sources as "default"
	for _, name := range attributeNames() {
		config.sources[name] = "default"
	}

	configPath := os.Getenv("AEGIS_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	// Missing config file is fine; a malformed one is not
	if data, err := os.ReadFile(config.configFilePath); err == nil {
		var fileConfig AegisConfig
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
		config.applyFileConfig(&fileConfig)
	}

	config.applyEnvConfig()

	return config, nil
}

func attributeNames() []string {
	return []string{
		"port", "bind_address", "operator_token_ttl", "scorers",
		"default_scorer", "fallback_scorer", "api_keys_path", "policy_path",
		"scoring_rate_limit", "scoring_rate_burst", "max_concurrent_runs",
		"list_limit_max", "log_level",
	}
}

func (c *AegisConfig) applyFileConfig(file *AegisConfig) {
	if file.Port != 0 {
		c.Port = file.Port
		c.sources["port"] = "file"
	}
	if file.BindAddress != "" {
		c.BindAddress = file.BindAddress
		c.sources["bind_address"] = "file"
	}
	if file.OperatorTokenTTL != 0 {
		c.OperatorTokenTTL = file.OperatorTokenTTL
		c.sources["operator_token_ttl"] = "file"
	}
	if len(file.Scorers) > 0 {
		c.Scorers = file.Scorers
		c.sources["scorers"] = "file"
	}
	if file.DefaultScorer != "" {
		c.DefaultScorer = file.DefaultScorer
		c.sources["default_scorer"] = "file"
	}
	if file.FallbackScorer != "" {
		c.FallbackScorer = file.FallbackScorer
		c.sources["fallback_scorer"] = "file"
	}
	if file.APIKeysPath != "" {
		c.APIKeysPath = file.APIKeysPath
		c.sources["api_keys_path"] = "file"
	}
	if file.PolicyPath != "" {
		c.PolicyPath = file.PolicyPath
		c.sources["policy_path"] = "file"
	}
	if file.ScoringRateLimit != 0 {
		c.ScoringRateLimit = file.ScoringRateLimit
		c.sources["scoring_rate_limit"] = "file"
	}
	if file.ScoringRateBurst != 0 {
		c.ScoringRateBurst = file.ScoringRateBurst
		c.sources["scoring_rate_burst"] = "file"
	}
	if file.MaxConcurrentRuns != 0 {
		c.MaxConcurrentRuns = file.MaxConcurrentRuns
		c.sources["max_concurrent_runs"] = "file"
	}
	if file.ListLimitMax != 0 {
		c.ListLimitMax = file.ListLimitMax
		c.sources["list_limit_max"] = "file"
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
		c.sources["log_level"] = "file"
	}
}

func (c *AegisConfig) applyEnvConfig() {
	if val := os.Getenv("AEGIS_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.Port = i
			c.sources["port"] = "environment"
		}
	}
	if val := os.Getenv("AEGIS_BIND_ADDRESS"); val != "" {
		c.BindAddress = val
		c.sources["bind_address"] = "environment"
	}
	if val := os.Getenv("AEGIS_OPERATOR_TOKEN_TTL"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.OperatorTokenTTL = i
			c.sources["operator_token_ttl"] = "environment"
		}
	}
	if val := os.Getenv("AEGIS_SCORERS"); val != "" {
		c.Scorers = splitAndTrim(val)
		c.sources["scorers"] = "environment"
	}
	if val := os.Getenv("AEGIS_DEFAULT_SCORER"); val != "" {
		c.DefaultScorer = val
		c.sources["default_scorer"] = "environment"
	}
	if val := os.Getenv("AEGIS_FALLBACK_SCORER"); val != "" {
		c.FallbackScorer = val
		c.sources["fallback_scorer"] = "environment"
	}
	if val := os.Getenv("AEGIS_API_KEYS_PATH"); val != "" {
		c.APIKeysPath = val
		c.sources["api_keys_path"] = "environment"
	}
	if val := os.Getenv("AEGIS_POLICY_PATH"); val != "" {
		c.PolicyPath = val
		c.sources["policy_path"] = "environment"
	}
	if val := os.Getenv("AEGIS_SCORING_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.ScoringRateLimit = f
			c.sources["scoring_rate_limit"] = "environment"
		}
	}
	if val := os.Getenv("AEGIS_SCORING_RATE_BURST"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.ScoringRateBurst = i
			c.sources["scoring_rate_burst"] = "environment"
		}
	}
	if val := os.Getenv("AEGIS_MAX_CONCURRENT_RUNS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.MaxConcurrentRuns = i
			c.sources["max_concurrent_runs"] = "environment"
		}
	}
	if val := os.Getenv("AEGIS_LIST_LIMIT_MAX"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.ListLimitMax = i
			c.sources["list_limit_max"] = "environment"
		}
	}
	if val := os.Getenv("AEGIS_LOG_LEVEL"); val != "" {
		c.LogLevel = val
		c.sources["log_level"] = "environment"
	}
}

// ConfigFilePath returns the path to the config file
func (c *AegisConfig) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *AegisConfig) Source(name string) string {
	if c.sources == nil {
		return "default"
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

// TokenTTL returns the operator token TTL as a duration
func (c *AegisConfig) TokenTTL() time.Duration {
	return time.Duration(c.OperatorTokenTTL) * time.Second
}

// IsScorerEnabled checks if a scorer is enabled
func (c *AegisConfig) IsScorerEnabled(name string) bool {
	for _, s := range c.Scorers {
		if s == name {
			return true
		}
	}
	return false
}

// Validate validates the configuration
func (c *AegisConfig) Validate() error {
	valid := make(map[string]bool)
	for _, s := range ValidScorers {
		valid[s] = true
	}
	for _, s := range c.Scorers {
		if !valid[s] {
			return fmt.Errorf("invalid scorer: %s", s)
		}
	}
	if !valid[c.DefaultScorer] {
		return fmt.Errorf("invalid default_scorer: %s", c.DefaultScorer)
	}
	if !valid[c.FallbackScorer] {
		return fmt.Errorf("invalid fallback_scorer: %s", c.FallbackScorer)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.OperatorTokenTTL <= 0 {
		return fmt.Errorf("operator_token_ttl must be positive")
	}
	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("max_concurrent_runs must be at least 1")
	}
	return nil
}

// Attributes returns all configuration attributes with their values and sources
func (c *AegisConfig) Attributes() []Attribute {
	return []Attribute{
		{Name: "port", Value: strconv.Itoa(c.Port), Source: c.Source("port")},
		{Name: "bind_address", Value: c.BindAddress, Source: c.Source("bind_address")},
		{Name: "operator_token_ttl", Value: strconv.Itoa(c.OperatorTokenTTL), Source: c.Source("operator_token_ttl")},
		{Name: "scorers", Value: strings.Join(c.Scorers, ","), Source: c.Source("scorers")},
		{Name: "default_scorer", Value: c.DefaultScorer, Source: c.Source("default_scorer")},
		{Name: "fallback_scorer", Value: c.FallbackScorer, Source: c.Source("fallback_scorer")},
		{Name: "api_keys_path", Value: c.APIKeysPath, Source: c.Source("api_keys_path")},
		{Name: "policy_path", Value: c.PolicyPath, Source: c.Source("policy_path")},
		{Name: "scoring_rate_limit", Value: strconv.FormatFloat(c.ScoringRateLimit, 'f', -1, 64), Source: c.Source("scoring_rate_limit")},
		{Name: "scoring_rate_burst", Value: strconv.Itoa(c.ScoringRateBurst), Source: c.Source("scoring_rate_burst")},
		{Name: "max_concurrent_runs", Value: strconv.Itoa(c.MaxConcurrentRuns), Source: c.Source("max_concurrent_runs")},
		{Name: "list_limit_max", Value: strconv.Itoa(c.ListLimitMax), Source: c.Source("list_limit_max")},
		{Name: "log_level", Value: c.LogLevel, Source: c.Source("log_level")},
	}
}

// FormatText returns a text representation of the configuration
func (c *AegisConfig) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-24s %-36s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-24s %-36s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-24s %-36s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *AegisConfig) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
