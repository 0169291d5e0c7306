package mapper

import (
	"errors"
	"strings"
	"testing"

	"infra-chatops/internal/catalog"
	"infra-chatops/internal/interpreter"
	"infra-chatops/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fixture struct {
	interpreter *interpreter.Interpreter
	library     *catalog.Library
	templates   *workflow.TemplateSet
	mapper      *Mapper
}

func loadFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.LoadCatalogFile("../../configs/catalog/entities.yaml")
	require.NoError(t, err)
	lib, err := catalog.LoadLibraryFile("../../configs/catalog/intents.yaml", cat)
	require.NoError(t, err)
	templates, err := workflow.LoadDir("../../configs/workflows")
	require.NoError(t, err)
	m, err := LoadFile("../../configs/catalog/commands.yaml", templates, lib)
	require.NoError(t, err)
	return &fixture{interpreter: interpreter.New(cat, lib), library: lib, templates: templates, mapper: m}
}

func (f *fixture) interpret(t *testing.T, text string) *interpreter.Command {
	t.Helper()
	cmd, err := f.interpreter.Interpret(text)
	require.NoError(t, err)
	return cmd
}

// ==========================
// Materialize
// ==========================

func TestMaterialize_DeployCommand(t *testing.T) {
	f := loadFixture(t)
	cmd := f.interpret(t, "deploy api to production")

	inst, err := f.mapper.Materialize(cmd)
	require.NoError(t, err)

	assert.Equal(t, "deploy_workflow", inst.Template.Name)
	assert.Equal(t, "deploy", inst.Intent)
	assert.Equal(t, workflow.StatePending, inst.State())
	assert.Equal(t, 0, inst.Ledger.Len())
	assert.Equal(t, map[string]string{
		"service":     "api",
		"environment": "production",
		"version":     "latest",
		"playbook":    "deploy.yml",
	}, inst.Parameters)
}

func TestMaterialize_Idempotent(t *testing.T) {
	f := loadFixture(t)
	cmd := f.interpret(t, "scale web-server down by 2 in staging")

	first, err := f.mapper.Materialize(cmd)
	require.NoError(t, err)
	second, err := f.mapper.Materialize(cmd)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, first.Template, second.Template)
	assert.Equal(t, first.Parameters, second.Parameters)
	assert.NotSame(t, first.Ledger, second.Ledger)

	first.Parameters["amount"] = "99"
	assert.Equal(t, "2", second.Parameters["amount"])
	assert.Equal(t, "2", cmd.Parameters["amount"])
}

func TestMaterialize_FillsEveryDeclaredSlot(t *testing.T) {
	f := loadFixture(t)

	inst, err := f.mapper.Materialize(&interpreter.Command{
		Intent:     "scale",
		Parameters: map[string]string{"service": "api", "direction": "down", "amount": "2"},
	})
	require.NoError(t, err)

	count, ok := inst.Parameters["count"]
	assert.True(t, ok)
	assert.Equal(t, "", count)
	assert.Equal(t, "development", inst.Parameters["environment"])
}

func TestMaterialize_CommandParametersOverrideConstants(t *testing.T) {
	f := loadFixture(t)

	inst, err := f.mapper.Materialize(&interpreter.Command{
		Intent:     "status",
		Parameters: map[string]string{"environment": "staging", "service": "", "stack": "edge"},
	})
	require.NoError(t, err)
	assert.Equal(t, "edge", inst.Parameters["stack"])
}

func TestMaterialize_Errors(t *testing.T) {
	f := loadFixture(t)

	tests := []struct {
		name    string
		cmd     *interpreter.Command
		wantErr error
	}{
		{"unknown intent", &interpreter.Command{Intent: "reboot"}, ErrUnknownIntent},
		{"nil command", nil, ErrUnknownIntent},
		{"direct intent", &interpreter.Command{Intent: "help", Parameters: map[string]string{"topic": ""}}, ErrDirectIntent},
		{"empty required slot", &interpreter.Command{Intent: "deploy", Parameters: map[string]string{"service": " "}}, ErrMissingParameter},
		{"absent required slot", &interpreter.Command{Intent: "provision"}, ErrMissingParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := f.mapper.Materialize(tt.cmd)
			assert.Nil(t, inst)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestMapper_Lookups(t *testing.T) {
	f := loadFixture(t)

	assert.True(t, f.mapper.IsDirect("help"))
	assert.True(t, f.mapper.IsDirect("HELP"))
	assert.False(t, f.mapper.IsDirect("deploy"))
	assert.False(t, f.mapper.IsDirect("reboot"))
	assert.Empty(t, f.mapper.Unmapped())
	assert.Equal(t, []string{"deploy", "scale", "status", "provision", "rollback", "destroy", "help"}, f.mapper.Intents())

	ct, ok := f.mapper.Template("status")
	require.True(t, ok)
	assert.Equal(t, "platform", ct.Constants["stack"])
}

// ==========================
// Load-time validation
// ==========================

func TestNew_Validation(t *testing.T) {
	f := loadFixture(t)

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown workflow",
			doc:     "commands:\n  - intent: deploy\n    workflow: ship_it\n",
			wantErr: "unknown workflow",
		},
		{
			name:    "intent missing from library",
			doc:     "commands:\n  - intent: reboot\n    workflow: deploy_workflow\n",
			wantErr: "not in the intent library",
		},
		{
			name:    "duplicate intent",
			doc:     "commands:\n  - intent: help\n    direct: true\n  - intent: help\n    direct: true\n",
			wantErr: "duplicate",
		},
		{
			name:    "unprovided workflow parameter",
			doc:     "commands:\n  - intent: deploy\n    workflow: deploy_workflow\n",
			wantErr: "${playbook}",
		},
		{
			name:    "reserved constant",
			doc:     "commands:\n  - intent: deploy\n    workflow: deploy_workflow\n    constants:\n      playbook: deploy.yml\n      failed_step: none\n",
			wantErr: "reserved name",
		},
		{
			name:    "direct with workflow",
			doc:     "commands:\n  - intent: help\n    direct: true\n    workflow: status_workflow\n",
			wantErr: "cannot name a workflow",
		},
		{
			name:    "unknown field",
			doc:     "commands:\n  - intent: help\n    direct: true\n    approve: true\n",
			wantErr: "decode command templates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc), f.templates, f.library)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_WithoutLibrarySkipsSlotChecks(t *testing.T) {
	f := loadFixture(t)
	m, err := New([]CommandTemplate{{Intent: "Deploy", Workflow: "deploy_workflow"}}, f.templates, nil)
	require.NoError(t, err)

	inst, err := m.Materialize(&interpreter.Command{Intent: "deploy", Parameters: map[string]string{"service": "api"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"service": "api"}, inst.Parameters)
}

func TestEveryIntentExampleMaterializes(t *testing.T) {
	f := loadFixture(t)
	for _, def := range f.library.Intents() {
		if f.mapper.IsDirect(def.Name) {
			continue
		}
		for _, ex := range def.Examples {
			t.Run(ex.Text, func(t *testing.T) {
				inst, err := f.mapper.Materialize(f.interpret(t, ex.Text))
				require.NoError(t, err)
				for _, s := range def.Slots {
					_, ok := inst.Parameters[s.Name]
					assert.True(t, ok, "slot %s missing", s.Name)
				}
			})
		}
	}
}
