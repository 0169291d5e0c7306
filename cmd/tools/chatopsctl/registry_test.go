package main

import (
	"testing"

	"infra-chatops/internal/workflow"
	"infra-chatops/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncWorkflows_ShippedCatalog(t *testing.T) {
	reg, err := registry.LoadRegistry("../../../configs/step-registry.json")
	require.NoError(t, err)
	templates, err := workflow.LoadDir("../../../configs/workflows")
	require.NoError(t, err)

	syncWorkflows(reg, templates)
	assert.Empty(t, syncWorkflows(reg, templates), "second sync must be a no-op")

	notification, ok := reg.Lookup("notification")
	require.True(t, ok)
	assert.ElementsMatch(t, templates.Names(), notification.Workflows)
}

func TestSyncWorkflows_ReportsChanges(t *testing.T) {
	templates, err := workflow.LoadDir("../../../configs/workflows")
	require.NoError(t, err)

	reg := &registry.StepRegistry{StepTypes: []registry.StepType{
		{ID: "jenkins", Workflows: []string{"stale_workflow"}},
		{ID: "unused"},
	}}
	changed := syncWorkflows(reg, templates)
	assert.Equal(t, []string{"jenkins"}, changed)
	assert.Contains(t, reg.StepTypes[0].Workflows, "deploy_workflow")
	assert.NotContains(t, reg.StepTypes[0].Workflows, "stale_workflow")
	assert.Empty(t, reg.StepTypes[1].Workflows)
}

func TestSetField(t *testing.T) {
	reg := &registry.StepRegistry{StepTypes: []registry.StepType{{ID: "jenkins", Timeout: "10m"}}}

	require.NoError(t, setField(reg, "jenkins", "status", "verified"))
	require.NoError(t, setField(reg, "jenkins", "retries", "5"))
	assert.Equal(t, "verified", reg.StepTypes[0].ImplementationStatus)
	assert.Equal(t, 5, reg.StepTypes[0].Retries)

	assert.Error(t, setField(reg, "jenkins", "timeout", "soon"))
	assert.Error(t, setField(reg, "jenkins", "retries", "-1"))
	assert.Error(t, setField(reg, "jenkins", "colour", "blue"))
	assert.Error(t, setField(reg, "missing", "status", "x"))
}
