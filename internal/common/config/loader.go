package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and lets environment variables override any key (server.address -> SERVER_ADDRESS).
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	if root := findProjectRoot(); root != "" {
		v.AddConfigPath(filepath.Join(root, "configs"))
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally provided under
// their own environment variable names rather than the viper key path.
func overrideEmptyConfig(cfg *Config) {
	secrets := []struct {
		target *string
		env    string
	}{
		{&cfg.Integrations.Jenkins.URL, "JENKINS_URL"},
		{&cfg.Integrations.Jenkins.Username, "JENKINS_USERNAME"},
		{&cfg.Integrations.Jenkins.APIToken, "JENKINS_API_TOKEN"},
		{&cfg.Integrations.Notifications.WebhookURL, "CHAT_WEBHOOK_URL"},
		{&cfg.Database.Postgres.User, "DB_USER"},
		{&cfg.Database.Postgres.Password, "DB_PASSWORD"},
		{&cfg.Database.Redis.Password, "REDIS_PASSWORD"},
	}
	for _, s := range secrets {
		if *s.target != "" {
			continue
		}
		if val := os.Getenv(s.env); val != "" {
			*s.target = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "infra-chatops"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 600000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "chatops-executions"
	}
	if cfg.Database.Redis.KeyPrefix == "" {
		cfg.Database.Redis.KeyPrefix = "chatops"
	}
	if cfg.Database.Redis.ReportTTL == 0 {
		cfg.Database.Redis.ReportTTL = 7 * 24 * 3600
	}

	if cfg.Catalog.EntitiesFile == "" {
		cfg.Catalog.EntitiesFile = "configs/catalog/entities.yaml"
	}
	if cfg.Catalog.IntentsFile == "" {
		cfg.Catalog.IntentsFile = "configs/catalog/intents.yaml"
	}
	if cfg.Catalog.CommandTemplatesFile == "" {
		cfg.Catalog.CommandTemplatesFile = "configs/catalog/commands.yaml"
	}
	if cfg.Catalog.WorkflowsDir == "" {
		cfg.Catalog.WorkflowsDir = "configs/workflows"
	}
	if cfg.Catalog.StepRegistryFile == "" {
		cfg.Catalog.StepRegistryFile = "configs/step-registry.json"
	}

	if cfg.Interpreter.ConfidenceThreshold == 0 {
		cfg.Interpreter.ConfidenceThreshold = 0.7
	}

	if cfg.Engine.DefaultStepTimeout == 0 {
		cfg.Engine.DefaultStepTimeout = 300000
	}
	if cfg.Engine.TimeoutGrace == 0 {
		cfg.Engine.TimeoutGrace = 2000
	}
	if cfg.Engine.MaxConcurrentWorkflows == 0 {
		cfg.Engine.MaxConcurrentWorkflows = 16
	}

	for key, step := range cfg.Steps {
		if step.Timeout == 0 {
			step.Timeout = cfg.Engine.DefaultStepTimeout
		}
		if step.MaxRetries == 0 {
			step.MaxRetries = 3
		}
		cfg.Steps[key] = step
	}

	if cfg.Integrations.Jenkins.PollInterval == 0 {
		cfg.Integrations.Jenkins.PollInterval = 5000
	}
	if cfg.Integrations.Jenkins.QueueTimeout == 0 {
		cfg.Integrations.Jenkins.QueueTimeout = 30000
	}
	if cfg.Integrations.Jenkins.BuildTimeout == 0 {
		cfg.Integrations.Jenkins.BuildTimeout = 300000
	}
	if cfg.Integrations.Terraform.Binary == "" {
		cfg.Integrations.Terraform.Binary = "terraform"
	}
	if cfg.Integrations.Ansible.Binary == "" {
		cfg.Integrations.Ansible.Binary = "ansible-playbook"
	}
	if cfg.Integrations.Notifications.DefaultChannel == "" {
		cfg.Integrations.Notifications.DefaultChannel = "chat"
	}
	if cfg.Integrations.Notifications.AWSRegion == "" {
		cfg.Integrations.Notifications.AWSRegion = "us-east-1"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if t := cfg.Interpreter.ConfidenceThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("interpreter.confidence_threshold must be in (0, 1], got %v", t)
	}
	if cfg.Engine.MaxConcurrentWorkflows < 1 {
		return fmt.Errorf("engine.max_concurrent_workflows must be positive")
	}
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Tracing.Enabled && cfg.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required when tracing is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetStepConfig returns the settings for a step type, falling back to the engine defaults.
func GetStepConfig(cfg *Config, stepType string) StepConfig {
	if step, exists := cfg.Steps[stepType]; exists {
		return step
	}
	return StepConfig{
		Enabled:    true,
		Timeout:    cfg.Engine.DefaultStepTimeout,
		MaxRetries: 3,
	}
}

// IsStepEnabled reports whether a step type handler should be registered.
func IsStepEnabled(cfg *Config, stepType string) bool {
	if step, exists := cfg.Steps[stepType]; exists {
		return step.Enabled
	}
	return true
}
