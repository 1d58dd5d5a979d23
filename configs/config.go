// Package config loads the controller's configuration surface (§6): scalar
// settings from the environment, the way the teacher's configs/config.go
// does, plus the app mapping list from a YAML file, since a flat list of
// mappings/schedules does not fit comfortably into env vars the way the
// teacher's scalar-only settings did.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"acaqueue/pkg/models"
)

// Config is the fully resolved configuration surface.
type Config struct {
	PollIntervalSeconds               int
	CooldownMinutes                   int
	IdleTimeoutMinutes                int
	RestartVerificationTimeoutMinutes int

	Mappings []*models.AppMapping

	MessageProcessingAlerts MessageProcessingAlertsConfig

	Broker BrokerConfig
	Cloud  CloudConfig

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	EtcdEndpoints []string

	SMTP SMTPConfig

	Audit AuditConfig

	APIPort     string
	JWTSecret   string
	JWTIssuer   string
	AuthEnabled bool
	// AuthMode selects which of the two auth shapes AuthMiddleware enforces
	// when AuthEnabled is true: "jwt" or "apikey".
	AuthMode string

	LeaderElectionTTL int
}

type MessageProcessingAlertsConfig struct {
	FirstAlertMinutes       int
	FollowupIntervalMinutes int
	MaxAlerts               int
	AlertEmails             []string
}

type BrokerConfig struct {
	ServerURL string
	Username  string
	Password  string
}

// CloudConfig carries both auth shapes named in §9's Open Questions:
// managed identity and client-secret. At most one may be configured;
// Validate rejects a config that sets both.
type CloudConfig struct {
	SubscriptionID          string
	ResourceGroupName       string
	ManagedIdentityClientID string
	TenantID                string
	ClientID                string
	ClientSecret            string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AuditConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// mappingsFile is the on-disk shape of the YAML mappings document.
type mappingsFile struct {
	Mappings []*models.AppMapping `yaml:"mappings"`
}

// Load reads scalar settings from the environment and the mapping list from
// the file named by MAPPINGS_FILE (default ./mappings.yaml), applying
// AppMapping defaults and validating the result.
func Load() (*Config, error) {
	cfg := &Config{
		PollIntervalSeconds:               getEnvAsInt("POLL_INTERVAL_SECONDS", 15),
		CooldownMinutes:                   getEnvAsInt("COOLDOWN_MINUTES", 5),
		IdleTimeoutMinutes:                getEnvAsInt("IDLE_TIMEOUT_MINUTES", 10),
		RestartVerificationTimeoutMinutes: getEnvAsInt("RESTART_VERIFICATION_TIMEOUT_MINUTES", 5),

		MessageProcessingAlerts: MessageProcessingAlertsConfig{
			FirstAlertMinutes:       getEnvAsInt("ALERT_FIRST_MINUTES", 20),
			FollowupIntervalMinutes: getEnvAsInt("ALERT_FOLLOWUP_MINUTES", 5),
			MaxAlerts:               getEnvAsInt("ALERT_MAX_ALERTS", 6),
			AlertEmails:             getEnvAsList("ALERT_EMAILS", nil),
		},

		Broker: BrokerConfig{
			ServerURL: getEnv("BROKER_SERVER_URL", ""),
			Username:  getEnv("BROKER_USERNAME", ""),
			Password:  getEnv("BROKER_PASSWORD", ""),
		},

		Cloud: CloudConfig{
			SubscriptionID:          getEnv("CLOUD_SUBSCRIPTION_ID", ""),
			ResourceGroupName:       getEnv("CLOUD_RESOURCE_GROUP_NAME", ""),
			ManagedIdentityClientID: getEnv("CLOUD_MANAGED_IDENTITY_CLIENT_ID", ""),
			TenantID:                getEnv("CLOUD_TENANT_ID", ""),
			ClientID:                getEnv("CLOUD_CLIENT_ID", ""),
			ClientSecret:            getEnv("CLOUD_CLIENT_SECRET", ""),
		},

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "acaqueue"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "acaqueue"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		EtcdEndpoints: getEnvAsList("ETCD_ENDPOINTS", []string{"localhost:2379"}),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvAsInt("SMTP_PORT", 25),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "acaqueue@localhost"),
		},

		Audit: AuditConfig{
			Bucket:          getEnv("AUDIT_S3_BUCKET", ""),
			Prefix:          getEnv("AUDIT_S3_PREFIX", "decisions/"),
			Region:          getEnv("AUDIT_S3_REGION", "us-east-1"),
			Endpoint:        getEnv("AUDIT_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("AUDIT_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AUDIT_S3_SECRET_ACCESS_KEY", ""),
		},

		APIPort:     getEnv("API_PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "acaqueue"),
		AuthEnabled: getEnvAsBool("AUTH_ENABLED", false),
		AuthMode:    getEnv("AUTH_MODE", "jwt"),

		LeaderElectionTTL: getEnvAsInt("LEADER_ELECTION_TTL", 30),
	}

	mappings, err := loadMappings(getEnv("MAPPINGS_FILE", "./mappings.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Mappings = mappings

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadMappings(path string) ([]*models.AppMapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read mappings file %q: %w", path, err)
	}

	var doc mappingsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse mappings file %q: %w", path, err)
	}

	for _, m := range doc.Mappings {
		m.ApplyDefaults()
	}
	return doc.Mappings, nil
}

// Validate enforces the configuration ranges from §6 and the auth-shape
// ambiguity rule from §9's Open Questions.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds < 1 || c.PollIntervalSeconds > 3600 {
		return fmt.Errorf("config: pollIntervalSeconds must be in [1,3600], got %d", c.PollIntervalSeconds)
	}
	if c.CooldownMinutes < 0 || c.CooldownMinutes > 1440 {
		return fmt.Errorf("config: cooldownMinutes must be in [0,1440], got %d", c.CooldownMinutes)
	}
	if c.IdleTimeoutMinutes < 1 || c.IdleTimeoutMinutes > 1440 {
		return fmt.Errorf("config: idleTimeoutMinutes must be in [1,1440], got %d", c.IdleTimeoutMinutes)
	}
	if c.RestartVerificationTimeoutMinutes < 1 || c.RestartVerificationTimeoutMinutes > 60 {
		return fmt.Errorf("config: restartVerificationTimeoutMinutes must be in [1,60], got %d", c.RestartVerificationTimeoutMinutes)
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("config: at least one app mapping is required")
	}
	if c.Broker.ServerURL == "" {
		return fmt.Errorf("config: broker.serverUrl is required")
	}
	if c.Cloud.SubscriptionID == "" || c.Cloud.ResourceGroupName == "" {
		return fmt.Errorf("config: cloud.subscriptionId and cloud.resourceGroupName are required")
	}

	hasManagedIdentity := c.Cloud.ManagedIdentityClientID != ""
	hasClientSecret := c.Cloud.ClientID != "" || c.Cloud.ClientSecret != ""
	if hasManagedIdentity && hasClientSecret {
		return fmt.Errorf("config: cloud auth is ambiguous — configure either managed identity or client secret, not both")
	}

	if c.AuthEnabled && c.AuthMode != "jwt" && c.AuthMode != "apikey" {
		return fmt.Errorf("config: authMode must be \"jwt\" or \"apikey\", got %q", c.AuthMode)
	}

	for _, m := range c.Mappings {
		if m.ContainerApp == "" {
			return fmt.Errorf("config: mapping is missing containerApp")
		}
		if len(m.Queues) == 0 {
			return fmt.Errorf("config: mapping %q has no queues", m.ContainerApp)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
