// Package config loads and validates the engine configuration from
// environment variables plus an optional YAML mappings file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mirrorops/issuesync/internal/fieldmap"
)

// DefaultExcludeLabel is the origin label that opts an issue out of syncing.
const DefaultExcludeLabel = "noado"

// Config holds all configuration for the sync engine.
type Config struct {
	// Mirror service settings
	ADOOrgURL     string
	ADOToken      string
	Project       string
	WorkItemType  string
	AreaPath      string
	IterationPath string
	BypassRules   bool

	// Origin service settings
	GitHubToken      string
	GitHubAppID      string
	GitHubPrivateKey string
	Repository       string // owner/name

	// Engine policy
	AutoCreate        bool
	DefaultAssignee   string
	ExcludeLabel      string
	ChangedWithinDays int

	// Mapping tables
	States  fieldmap.StateTable
	Handles map[string]string

	// Serve mode
	WebhookSecret string
	Port          int

	LogLevel string
}

// mappingsFile is the YAML shape of the state/handle tables.
type mappingsFile struct {
	States  map[string]string `yaml:"states"`
	Handles map[string]string `yaml:"handles"`
}

// Load reads configuration from the environment and the mappings file, then
// validates it. No remote call is made before validation passes.
func Load() (*Config, error) {
	cfg := &Config{
		ADOOrgURL:         strings.TrimSuffix(os.Getenv("ADO_ORG_URL"), "/"),
		ADOToken:          os.Getenv("ADO_TOKEN"),
		Project:           os.Getenv("ADO_PROJECT"),
		WorkItemType:      getEnv("ADO_WIT_TYPE", "Issue"),
		AreaPath:          os.Getenv("ADO_AREA_PATH"),
		IterationPath:     os.Getenv("ADO_ITERATION_PATH"),
		BypassRules:       getEnvBool("BYPASS_RULES", false),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		GitHubAppID:       os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:  os.Getenv("GITHUB_PRIVATE_KEY"),
		Repository:        os.Getenv("GITHUB_REPOSITORY"),
		AutoCreate:        getEnvBool("AUTO_CREATE", true),
		DefaultAssignee:   os.Getenv("DEFAULT_ASSIGNEE"),
		ExcludeLabel:      getEnv("EXCLUDE_LABEL", DefaultExcludeLabel),
		ChangedWithinDays: getEnvInt("CHANGED_WITHIN_DAYS", 1),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		Port:              getEnvInt("PORT", 8000),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		States: fieldmap.StateTable{
			fieldmap.StateKeyClosed:   "Closed",
			fieldmap.StateKeyDeleted:  "Removed",
			fieldmap.StateKeyReopened: "New",
		},
		Handles: map[string]string{},
	}

	if path := os.Getenv("MAPPINGS_FILE"); path != "" {
		if err := cfg.loadMappings(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadMappings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read mappings file: %w", err)
	}
	var m mappingsFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse mappings file: %w", err)
	}
	for key, value := range m.States {
		c.States[key] = value
	}
	if m.Handles != nil {
		c.Handles = m.Handles
	}
	return nil
}

// Owner returns the owner half of the configured repository full name.
func (c *Config) Owner() string {
	owner, _, _ := strings.Cut(c.Repository, "/")
	return owner
}

// Repo returns the name half of the configured repository full name.
func (c *Config) Repo() string {
	_, repo, _ := strings.Cut(c.Repository, "/")
	return repo
}

// Level parses the configured log verbosity.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) validate() error {
	if err := c.validateMirror(); err != nil {
		return err
	}
	if err := c.validateOrigin(); err != nil {
		return err
	}
	return c.validateMappings()
}

func (c *Config) validateMirror() error {
	if c.ADOOrgURL == "" {
		return fmt.Errorf("ADO_ORG_URL is required")
	}
	if c.ADOToken == "" {
		return fmt.Errorf("ADO_TOKEN is required")
	}
	if c.Project == "" {
		return fmt.Errorf("ADO_PROJECT is required")
	}
	if c.WorkItemType == "" {
		return fmt.Errorf("ADO_WIT_TYPE is required")
	}
	return nil
}

func (c *Config) validateOrigin() error {
	if c.GitHubToken == "" && (c.GitHubAppID == "" || c.GitHubPrivateKey == "") {
		return fmt.Errorf("GITHUB_TOKEN or GITHUB_APP_ID + GITHUB_PRIVATE_KEY is required")
	}
	if c.Repository != "" && !strings.Contains(c.Repository, "/") {
		return fmt.Errorf("GITHUB_REPOSITORY must be owner/name, got %q", c.Repository)
	}
	return nil
}

func (c *Config) validateMappings() error {
	if err := c.States.Validate(); err != nil {
		return err
	}
	// The handle table must be a true bijection: the reverse path inverts it,
	// and a collision would resolve an assignee arbitrarily.
	seen := make(map[string]string, len(c.Handles))
	for origin, principal := range c.Handles {
		if principal == "" {
			return fmt.Errorf("handle mapping for %q is empty", origin)
		}
		if prev, ok := seen[principal]; ok {
			return fmt.Errorf("handle mappings %q and %q both map to %q", prev, origin, principal)
		}
		seen[principal] = origin
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
