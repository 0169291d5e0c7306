package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: chatops-test
steps:
  jenkins:
    enabled: true
    timeout: 60000
  terraform:
    enabled: false
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "chatops-test", cfg.App.Name)
	assert.Equal(t, 0.7, cfg.Interpreter.ConfidenceThreshold)
	assert.Equal(t, 16, cfg.Engine.MaxConcurrentWorkflows)
	assert.Equal(t, "chat", cfg.Integrations.Notifications.DefaultChannel)
	assert.Equal(t, "configs/workflows", cfg.Catalog.WorkflowsDir)
	assert.Equal(t, 3, cfg.Steps["jenkins"].MaxRetries)
	assert.Equal(t, 60000, cfg.Steps["jenkins"].Timeout)
	assert.Equal(t, cfg.Engine.DefaultStepTimeout, cfg.Steps["terraform"].Timeout)
}

func TestLoadFromFile_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
interpreter:
  confidence_threshold: 0.7
integrations:
  jenkins:
    url: ${TEST_JENKINS_URL}
`)
	t.Setenv("INTERPRETER_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("TEST_JENKINS_URL", "http://jenkins.internal:8080")
	t.Setenv("JENKINS_API_TOKEN", "token-123")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.85, cfg.Interpreter.ConfidenceThreshold)
	assert.Equal(t, "http://jenkins.internal:8080", cfg.Integrations.Jenkins.URL)
	assert.Equal(t, "token-123", cfg.Integrations.Jenkins.APIToken)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "camunda enabled without broker",
			body:    "camunda:\n  enabled: true\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "threshold out of range",
			body:    "interpreter:\n  confidence_threshold: 1.5\n",
			wantErr: "confidence_threshold",
		},
		{
			name:    "redis enabled without address",
			body:    "database:\n  redis:\n    enabled: true\n",
			wantErr: "database.redis.address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetStepConfig_Fallback(t *testing.T) {
	cfg := &Config{Engine: EngineConfig{DefaultStepTimeout: 1000}}

	step := GetStepConfig(cfg, "ansible")
	assert.True(t, step.Enabled)
	assert.Equal(t, 1000, step.Timeout)
	assert.True(t, IsStepEnabled(cfg, "ansible"))
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
