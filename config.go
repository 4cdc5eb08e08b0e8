package warden

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/warden/model/permission"
	"github.com/viant/warden/service/messaging"
	"github.com/viant/warden/service/processor"
)

// Store vendors.
const (
	StoreMemory = "memory"
	StoreFS     = "fs"
	StoreSQLite = "sqlite"
)

// EventsNone disables notifications.
const EventsNone = "none"

const dispatchQueue = "dispatch"

// Config is a serialisable representation of the engine configuration. It can
// be populated from YAML, JSON or viper. The zero value of a nested field falls
// back to the DefaultConfig value when the service is built.
type Config struct {
	Store          StoreConfig          `json:"store" yaml:"store" mapstructure:"store"`
	Audit          AuditConfig          `json:"audit" yaml:"audit" mapstructure:"audit"`
	Approval       ApprovalConfig       `json:"approval" yaml:"approval" mapstructure:"approval"`
	Classification ClassificationConfig `json:"classification" yaml:"classification" mapstructure:"classification"`
	Rules          RulesConfig          `json:"rules" yaml:"rules" mapstructure:"rules"`
	Execution      ExecutionConfig      `json:"execution" yaml:"execution" mapstructure:"execution"`
	Events         EventsConfig         `json:"events" yaml:"events" mapstructure:"events"`
	Workspace      WorkspaceConfig      `json:"workspace" yaml:"workspace" mapstructure:"workspace"`
	Tracing        TracingConfig        `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// StoreConfig selects the request table backend.
type StoreConfig struct {
	Vendor  string `json:"vendor" yaml:"vendor" mapstructure:"vendor"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" mapstructure:"baseURL"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
}

// AuditConfig selects the audit log backend; an empty vendor follows Store.
type AuditConfig struct {
	Vendor     string        `json:"vendor,omitempty" yaml:"vendor,omitempty" mapstructure:"vendor"`
	BaseURL    string        `json:"baseURL,omitempty" yaml:"baseURL,omitempty" mapstructure:"baseURL"`
	DSN        string        `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
	Retries    int           `json:"retries" yaml:"retries" mapstructure:"retries"`
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay" mapstructure:"retryDelay"`
}

// ApprovalConfig controls classification strictness, approver grants and TTLs.
// Sensitive lists kind fragments whose submission raises a security alert.
type ApprovalConfig struct {
	Strict    bool                     `json:"strict,omitempty" yaml:"strict,omitempty" mapstructure:"strict"`
	Approvers map[string]string        `json:"approvers,omitempty" yaml:"approvers,omitempty" mapstructure:"approvers"`
	Grants    []GrantConfig            `json:"grants,omitempty" yaml:"grants,omitempty" mapstructure:"grants"`
	Sensitive []string                 `json:"sensitive,omitempty" yaml:"sensitive,omitempty" mapstructure:"sensitive"`
	TTL       map[string]time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty" mapstructure:"ttl"`
}

// GrantConfig is a possibly temporary approver grant; ExpiresAt is RFC3339.
type GrantConfig struct {
	Approver  string `json:"approver" yaml:"approver" mapstructure:"approver"`
	Level     string `json:"level" yaml:"level" mapstructure:"level"`
	ExpiresAt string `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty" mapstructure:"expiresAt"`
}

// ClassificationConfig points at an optional classification table replacing the built-in one.
type ClassificationConfig struct {
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// RulesConfig points at an optional auto-approval rule file.
type RulesConfig struct {
	File string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
}

// ExecutionConfig controls dispatch; zero workers executes inline.
type ExecutionConfig struct {
	Workers    int           `json:"workers" yaml:"workers" mapstructure:"workers"`
	MaxRetries int           `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay" mapstructure:"retryDelay"`
}

// EventsConfig selects the notification queue vendor.
type EventsConfig struct {
	Vendor  string `json:"vendor" yaml:"vendor" mapstructure:"vendor"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" mapstructure:"baseURL"`
}

// WorkspaceConfig configures the executor collaborators.
type WorkspaceConfig struct {
	BaseURL      string `json:"baseURL" yaml:"baseURL" mapstructure:"baseURL"`
	VSCodeBinary string `json:"vscodeBinary,omitempty" yaml:"vscodeBinary,omitempty" mapstructure:"vscodeBinary"`
}

// TracingConfig enables OpenTelemetry tracing; an empty output file writes to stdout.
type TracingConfig struct {
	Enabled    bool   `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Service    string `json:"service,omitempty" yaml:"service,omitempty" mapstructure:"service"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
	OutputFile string `json:"outputFile,omitempty" yaml:"outputFile,omitempty" mapstructure:"outputFile"`
}

// DefaultConfig returns an in-memory configuration with inline execution.
func DefaultConfig() *Config {
	retry := processor.DefaultConfig().Retry
	return &Config{
		Store:     StoreConfig{Vendor: StoreMemory},
		Audit:     AuditConfig{Retries: 3, RetryDelay: 50 * time.Millisecond},
		Execution: ExecutionConfig{MaxRetries: retry.MaxRetries, RetryDelay: retry.Delay},
		Events:    EventsConfig{Vendor: string(messaging.VendorMemory)},
		Workspace: WorkspaceConfig{BaseURL: "."},
		Tracing:   TracingConfig{Service: "warden", Version: "0.1.0"},
	}
}

// AuditVendor returns the effective audit vendor.
func (c *Config) AuditVendor() string {
	if c.Audit.Vendor != "" {
		return c.Audit.Vendor
	}
	return c.Store.Vendor
}

// TTLTable merges configured TTLs over the defaults.
func (c *ApprovalConfig) TTLTable() (permission.TTL, error) {
	ret := permission.DefaultTTL()
	for name, d := range c.TTL {
		risk, err := permission.ParseRisk(name)
		if err != nil {
			return nil, fmt.Errorf("approval.ttl: %w", err)
		}
		ret[risk] = d
	}
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("approval.ttl: %w", err)
	}
	return ret, nil
}

// ApproverLevels parses approver grants.
func (c *ApprovalConfig) ApproverLevels() (map[string]permission.Level, error) {
	if len(c.Approvers) == 0 {
		return nil, nil
	}
	ret := make(map[string]permission.Level, len(c.Approvers))
	for name, text := range c.Approvers {
		level, err := permission.ParseLevel(text)
		if err != nil {
			return nil, fmt.Errorf("approval.approvers.%v: %w", name, err)
		}
		ret[name] = level
	}
	return ret, nil
}

// GrantList merges approvers and grants.
func (c *ApprovalConfig) GrantList() ([]*permission.Grant, error) {
	approvers, err := c.ApproverLevels()
	if err != nil {
		return nil, err
	}
	var ret []*permission.Grant
	for name, level := range approvers {
		ret = append(ret, &permission.Grant{Approver: name, Level: level})
	}
	for i, item := range c.Grants {
		level, err := permission.ParseLevel(item.Level)
		if err != nil {
			return nil, fmt.Errorf("approval.grants[%d]: %w", i, err)
		}
		grant := &permission.Grant{Approver: item.Approver, Level: level}
		if item.ExpiresAt != "" {
			expiresAt, err := time.Parse(time.RFC3339, item.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("approval.grants[%d].expiresAt: %w", i, err)
			}
			grant.ExpiresAt = &expiresAt
		}
		if err = grant.Validate(); err != nil {
			return nil, fmt.Errorf("approval.grants[%d]: %w", i, err)
		}
		ret = append(ret, grant)
	}
	return ret, nil
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	errs = append(errs, validateStore("store", c.Store.Vendor, c.Store.BaseURL, c.Store.DSN))
	if c.Audit.Vendor != "" {
		errs = append(errs, validateStore("audit", c.Audit.Vendor, c.auditBaseURL(), c.auditDSN()))
	}
	if c.Audit.Retries < 0 {
		errs = append(errs, fmt.Errorf("audit.retries must be >= 0"))
	}
	if _, err := c.Approval.TTLTable(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Approval.GrantList(); err != nil {
		errs = append(errs, err)
	}
	if c.Execution.Workers < 0 {
		errs = append(errs, fmt.Errorf("execution.workers must be >= 0"))
	}
	if c.Execution.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("execution.maxRetries must be >= 0"))
	}
	switch messaging.Vendor(c.Events.Vendor) {
	case messaging.VendorMemory, EventsNone, "":
	case messaging.VendorFS:
		if strings.TrimSpace(c.Events.BaseURL) == "" {
			errs = append(errs, fmt.Errorf("events.baseURL is required for fs vendor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported events vendor: %v", c.Events.Vendor))
	}
	return errors.Join(errs...)
}

func (c *Config) auditBaseURL() string {
	if c.Audit.BaseURL != "" {
		return c.Audit.BaseURL
	}
	return c.Store.BaseURL
}

func (c *Config) auditDSN() string {
	if c.Audit.DSN != "" {
		return c.Audit.DSN
	}
	return c.Store.DSN
}

func validateStore(section, vendor, baseURL, dsn string) error {
	switch vendor {
	case StoreMemory, "":
	case StoreFS:
		if strings.TrimSpace(baseURL) == "" {
			return fmt.Errorf("%v.baseURL is required for fs vendor", section)
		}
	case StoreSQLite:
		if strings.TrimSpace(dsn) == "" {
			return fmt.Errorf("%v.dsn is required for sqlite vendor", section)
		}
	default:
		return fmt.Errorf("unsupported %v vendor: %v", section, vendor)
	}
	return nil
}
