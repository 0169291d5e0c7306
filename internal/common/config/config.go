package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig             `mapstructure:"app"`
	Server       ServerConfig          `mapstructure:"server"`
	Camunda      CamundaConfig         `mapstructure:"camunda"`
	Database     DatabaseConfig        `mapstructure:"database"`
	Catalog      CatalogConfig         `mapstructure:"catalog"`
	Interpreter  InterpreterConfig     `mapstructure:"interpreter"`
	Engine       EngineConfig          `mapstructure:"engine"`
	Steps        map[string]StepConfig `mapstructure:"steps"`
	Integrations IntegrationConfig     `mapstructure:"integrations"`
	Security     SecurityConfig        `mapstructure:"security"`
	Logging      LoggingConfig         `mapstructure:"logging"`
	Tracing      TracingConfig         `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	ReportTTL int    `mapstructure:"report_ttl"` // seconds
}

// --- Interpreter / Engine ---

// CatalogConfig points at the static data loaded once at startup.
type CatalogConfig struct {
	EntitiesFile         string `mapstructure:"entities_file"`
	IntentsFile          string `mapstructure:"intents_file"`
	CommandTemplatesFile string `mapstructure:"command_templates_file"`
	WorkflowsDir         string `mapstructure:"workflows_dir"`
	StepRegistryFile     string `mapstructure:"step_registry_file"`
}

type InterpreterConfig struct {
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold"`
	FillerWords         []string `mapstructure:"filler_words"`
}

type EngineConfig struct {
	DefaultStepTimeout     int `mapstructure:"default_step_timeout"` // milliseconds
	TimeoutGrace           int `mapstructure:"timeout_grace"`        // milliseconds
	MaxConcurrentWorkflows int `mapstructure:"max_concurrent_workflows"`
}

// StepConfig tunes one step type, keyed by type name ("terraform", "jenkins", ...).
type StepConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Timeout    int  `mapstructure:"timeout"` // milliseconds
	MaxRetries int  `mapstructure:"max_retries"`
}

// --- External collaborators ---
type IntegrationConfig struct {
	Jenkins       JenkinsConfig      `mapstructure:"jenkins"`
	Terraform     TerraformConfig    `mapstructure:"terraform"`
	Ansible       AnsibleConfig      `mapstructure:"ansible"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

type JenkinsConfig struct {
	URL          string `mapstructure:"url"`
	Username     string `mapstructure:"username"`
	APIToken     string `mapstructure:"api_token"`
	PollInterval int    `mapstructure:"poll_interval"` // milliseconds
	QueueTimeout int    `mapstructure:"queue_timeout"` // milliseconds
	BuildTimeout int    `mapstructure:"build_timeout"` // milliseconds
}

type TerraformConfig struct {
	Binary     string `mapstructure:"binary"`
	WorkingDir string `mapstructure:"working_dir"`
}

type AnsibleConfig struct {
	Binary       string `mapstructure:"binary"`
	PlaybookDir  string `mapstructure:"playbook_dir"`
	InventoryDir string `mapstructure:"inventory_dir"`
}

type NotificationConfig struct {
	DefaultChannel string `mapstructure:"default_channel"`
	AWSRegion      string `mapstructure:"aws_region"`
	FromEmail      string `mapstructure:"from_email"`
	EmailEnabled   bool   `mapstructure:"email_enabled"`
	SMSEnabled     bool   `mapstructure:"sms_enabled"`
	WebhookURL     string `mapstructure:"webhook_url"`
}

// SecurityConfig is the adapter-side gate applied before a command is submitted.
type SecurityConfig struct {
	AuthorizedUsers    []string `mapstructure:"authorized_users"`
	AdminUsers         []string `mapstructure:"admin_users"`
	RestrictedCommands []string `mapstructure:"restricted_commands"`
	ApprovalRequired   []string `mapstructure:"approval_required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}
