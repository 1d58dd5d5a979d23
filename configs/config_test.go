package config

import (
	"testing"

	"acaqueue/pkg/models"
)

func validConfig() *Config {
	return &Config{
		PollIntervalSeconds:               15,
		CooldownMinutes:                   5,
		IdleTimeoutMinutes:                10,
		RestartVerificationTimeoutMinutes: 5,
		Mappings: []*models.AppMapping{
			{ContainerApp: "worker-app", Queues: []string{"orders"}},
		},
		Broker: BrokerConfig{ServerURL: "amqp://localhost:5672"},
		Cloud:  CloudConfig{SubscriptionID: "sub-1", ResourceGroupName: "rg1"},
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsOutOfRangePollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.PollIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for pollIntervalSeconds out of [1,3600]")
	}
}

func TestValidate_RejectsMissingMappings(t *testing.T) {
	cfg := validConfig()
	cfg.Mappings = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when no app mappings are configured")
	}
}

func TestValidate_RejectsMissingBrokerURL(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.ServerURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when broker.serverUrl is empty")
	}
}

func TestValidate_RejectsAmbiguousCloudAuth(t *testing.T) {
	cfg := validConfig()
	cfg.Cloud.ManagedIdentityClientID = "mi-1"
	cfg.Cloud.ClientSecret = "secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when both managed identity and client secret are configured")
	}
}

func TestValidate_AcceptsManagedIdentityAlone(t *testing.T) {
	cfg := validConfig()
	cfg.Cloud.ManagedIdentityClientID = "mi-1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsUnknownAuthMode(t *testing.T) {
	cfg := validConfig()
	cfg.AuthEnabled = true
	cfg.AuthMode = "basic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an authMode other than jwt or apikey")
	}
}

func TestValidate_AcceptsAPIKeyAuthMode(t *testing.T) {
	cfg := validConfig()
	cfg.AuthEnabled = true
	cfg.AuthMode = "apikey"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsMappingWithoutQueues(t *testing.T) {
	cfg := validConfig()
	cfg.Mappings = []*models.AppMapping{{ContainerApp: "no-queues"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a mapping with no queues")
	}
}
