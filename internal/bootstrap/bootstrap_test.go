package bootstrap

import (
	"testing"

	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/runner"
	sendnotification "infra-chatops/internal/workers/communication/send-notification"
	"infra-chatops/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Catalog: config.CatalogConfig{
			EntitiesFile:         "../../configs/catalog/entities.yaml",
			IntentsFile:          "../../configs/catalog/intents.yaml",
			CommandTemplatesFile: "../../configs/catalog/commands.yaml",
			WorkflowsDir:         "../../configs/workflows",
			StepRegistryFile:     "../../configs/step-registry.json",
		},
		Interpreter: config.InterpreterConfig{ConfidenceThreshold: 0.7, FillerWords: []string{"please"}},
		Engine:      config.EngineConfig{DefaultStepTimeout: 1000, TimeoutGrace: 50},
		Integrations: config.IntegrationConfig{
			Terraform:     config.TerraformConfig{Binary: "terraform"},
			Ansible:       config.AnsibleConfig{Binary: "ansible-playbook"},
			Notifications: config.NotificationConfig{DefaultChannel: "chat"},
		},
	}
}

func TestLoadCatalogs(t *testing.T) {
	cats, err := LoadCatalogs(testConfig().Catalog)
	require.NoError(t, err)

	assert.Len(t, cats.Templates.Names(), 6)
	assert.Empty(t, cats.Commands.Unmapped())
	_, ok := cats.Registry.Lookup("terraform")
	assert.True(t, ok)

	cfg := testConfig()
	cfg.Catalog.IntentsFile = "../../configs/catalog/missing.yaml"
	_, err = LoadCatalogs(cfg.Catalog)
	require.Error(t, err)
	stdErr := apperrors.AsStandardError(err)
	assert.Equal(t, apperrors.ErrCodeCatalogInvalid, stdErr.Code)
	assert.Contains(t, stdErr.Details, "missing.yaml")
}

func TestNewInterpreter_UsesConfig(t *testing.T) {
	cfg := testConfig()
	cats, err := LoadCatalogs(cfg.Catalog)
	require.NoError(t, err)

	in := NewInterpreter(cfg, cats)
	assert.Equal(t, 0.7, in.Threshold())
	cmd, err := in.Interpret("please deploy api to production")
	require.NoError(t, err)
	assert.Equal(t, "deploy", cmd.Intent)
}

func TestBuildHandlersAndEngine(t *testing.T) {
	cfg := testConfig()
	cats, err := LoadCatalogs(cfg.Catalog)
	require.NoError(t, err)

	handlers, err := BuildHandlers(cfg, Integrations{
		Runner: runner.NewScriptedRunner(),
		Sink:   sendnotification.NewRecordingSink(),
	}, logger.NewTestLogger(t))
	require.NoError(t, err)
	for _, st := range workflow.KnownStepTypes() {
		assert.Contains(t, handlers, st)
	}

	_, err = NewEngine(cfg, cats, handlers, logger.NewTestLogger(t))
	require.NoError(t, err)
}

func TestNewEngine_RejectsMissingHandlers(t *testing.T) {
	cfg := testConfig()
	cfg.Steps = map[string]config.StepConfig{"jenkins": {Enabled: false}}
	cats, err := LoadCatalogs(cfg.Catalog)
	require.NoError(t, err)

	handlers, err := BuildHandlers(cfg, Integrations{Runner: runner.NewScriptedRunner()}, logger.NewTestLogger(t))
	require.NoError(t, err)
	assert.NotContains(t, handlers, workflow.StepJenkins)

	_, err = NewEngine(cfg, cats, handlers, logger.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler for step types [jenkins]")
}

// A result condition only sees an Error entry when the referenced step is
// best-effort; otherwise the failure halts the run first and the else branch
// never executes.
func TestShippedTemplates_ResultBranchesReachable(t *testing.T) {
	cats, err := LoadCatalogs(testConfig().Catalog)
	require.NoError(t, err)

	for _, name := range cats.Templates.Names() {
		tmpl, ok := cats.Templates.Get(name)
		require.True(t, ok)

		byPosition := map[int]*workflow.StepSpec{}
		tmpl.Walk(func(s *workflow.StepSpec) { byPosition[s.Position] = s })
		tmpl.Walk(func(s *workflow.StepSpec) {
			if s.Condition == nil || s.Condition.Kind != workflow.ConditionResult || len(s.Else) == 0 {
				return
			}
			target := byPosition[s.Condition.Step]
			require.NotNil(t, target, "%s: %s", name, s.Name)
			assert.True(t, target.BestEffort, "%s: else branch of %q is unreachable, step %q halts on failure", name, s.Name, target.Name)
		})
	}
}
