// Package bootstrap assembles the catalogs, step handlers, engine and command
// service from configuration. The server and chatopsctl share it.
package bootstrap

import (
	"fmt"
	"time"

	"infra-chatops/internal/catalog"
	"infra-chatops/internal/common/config"
	apperrors "infra-chatops/internal/common/errors"
	httpclient "infra-chatops/internal/common/http"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/runner"
	"infra-chatops/internal/engine"
	"infra-chatops/internal/interpreter"
	"infra-chatops/internal/mapper"
	jenkinsjob "infra-chatops/internal/workers/cicd/jenkins-job"
	sendnotification "infra-chatops/internal/workers/communication/send-notification"
	ansibleplaybook "infra-chatops/internal/workers/infrastructure/ansible-playbook"
	terraformrun "infra-chatops/internal/workers/infrastructure/terraform-run"
	conditioneval "infra-chatops/internal/workers/runtime/condition-eval"
	scripteval "infra-chatops/internal/workers/runtime/script-eval"
	"infra-chatops/internal/workflow"
	"infra-chatops/pkg/registry"
)

// Catalogs is the static data loaded once at startup.
type Catalogs struct {
	Entities  *catalog.Catalog
	Library   *catalog.Library
	Templates *workflow.TemplateSet
	Commands  *mapper.Mapper
	Registry  *registry.StepRegistry
}

// LoadCatalogs loads and cross-checks every catalog file. Any inconsistency
// is a startup error.
func LoadCatalogs(cfg config.CatalogConfig) (*Catalogs, error) {
	entities, err := catalog.LoadCatalogFile(cfg.EntitiesFile)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.EntitiesFile, err)
	}
	library, err := catalog.LoadLibraryFile(cfg.IntentsFile, entities)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.IntentsFile, err)
	}
	templates, err := workflow.LoadDir(cfg.WorkflowsDir)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.WorkflowsDir, err)
	}
	commands, err := mapper.LoadFile(cfg.CommandTemplatesFile, templates, library)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.CommandTemplatesFile, err)
	}
	reg, err := registry.LoadRegistry(cfg.StepRegistryFile)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.StepRegistryFile, err)
	}
	return &Catalogs{
		Entities:  entities,
		Library:   library,
		Templates: templates,
		Commands:  commands,
		Registry:  reg,
	}, nil
}

func NewInterpreter(cfg *config.Config, cats *Catalogs) *interpreter.Interpreter {
	return interpreter.New(cats.Entities, cats.Library,
		interpreter.WithThreshold(cfg.Interpreter.ConfidenceThreshold),
		interpreter.WithFillerWords(cfg.Interpreter.FillerWords...),
	)
}

// Integrations are the collaborators the step handlers talk to. Tests and
// dry runs swap in a scripted runner and a recording sink.
type Integrations struct {
	Runner  runner.CommandRunner
	HTTP    jenkinsjob.Doer
	Sink    sendnotification.Sink
	Options []sendnotification.Option
}

// BuildHandlers creates a handler for every enabled step type.
func BuildHandlers(cfg *config.Config, in Integrations, log logger.Logger) (map[workflow.StepType]workflow.Handler, error) {
	if in.Runner == nil {
		in.Runner = runner.NewExecRunner()
	}
	if in.HTTP == nil {
		in.HTTP = httpclient.NewClient(30 * time.Second)
	}

	ig := cfg.Integrations
	handlers := make(map[workflow.StepType]workflow.Handler)
	enabled := func(t workflow.StepType) bool { return config.IsStepEnabled(cfg, string(t)) }
	timeout := func(t workflow.StepType, fallback time.Duration) time.Duration {
		if step, ok := cfg.Steps[string(t)]; ok && step.Timeout > 0 {
			return config.GetDuration(step.Timeout)
		}
		return fallback
	}

	if enabled(workflow.StepTerraform) {
		tc := terraformrun.LoadConfig()
		tc.Binary = ig.Terraform.Binary
		tc.WorkingDir = ig.Terraform.WorkingDir
		tc.Timeout = timeout(workflow.StepTerraform, tc.Timeout)
		handlers[workflow.StepTerraform] = terraformrun.NewHandler(tc, in.Runner, log)
	}

	if enabled(workflow.StepAnsible) {
		ac := ansibleplaybook.LoadConfig()
		ac.Binary = ig.Ansible.Binary
		ac.PlaybookDir = ig.Ansible.PlaybookDir
		ac.InventoryDir = ig.Ansible.InventoryDir
		ac.Timeout = timeout(workflow.StepAnsible, ac.Timeout)
		handlers[workflow.StepAnsible] = ansibleplaybook.NewHandler(ac, in.Runner, log)
	}

	if enabled(workflow.StepJenkins) {
		jc := jenkinsjob.LoadConfig()
		jc.URL = ig.Jenkins.URL
		jc.Username = ig.Jenkins.Username
		jc.APIToken = ig.Jenkins.APIToken
		jc.PollInterval = config.GetDuration(ig.Jenkins.PollInterval)
		jc.QueueTimeout = config.GetDuration(ig.Jenkins.QueueTimeout)
		jc.BuildTimeout = config.GetDuration(ig.Jenkins.BuildTimeout)
		jc.MaxRetries = config.GetStepConfig(cfg, string(workflow.StepJenkins)).MaxRetries
		jc.Timeout = timeout(workflow.StepJenkins, jc.Timeout)
		handlers[workflow.StepJenkins] = jenkinsjob.NewHandler(jc, in.HTTP, log)
	}

	if enabled(workflow.StepScript) {
		sc := scripteval.LoadConfig()
		sc.Timeout = timeout(workflow.StepScript, sc.Timeout)
		handlers[workflow.StepScript] = scripteval.NewHandler(sc, log)
	}

	if enabled(workflow.StepNotification) {
		nc := sendnotification.LoadConfig()
		nc.DefaultChannel = ig.Notifications.DefaultChannel
		nc.AWSRegion = ig.Notifications.AWSRegion
		nc.FromEmail = ig.Notifications.FromEmail
		nc.EmailEnabled = ig.Notifications.EmailEnabled
		nc.SMSEnabled = ig.Notifications.SMSEnabled
		nc.WebhookURL = ig.Notifications.WebhookURL
		nc.Timeout = timeout(workflow.StepNotification, nc.Timeout)
		h, err := sendnotification.NewHandler(nc, in.Sink, log, in.Options...)
		if err != nil {
			return nil, fmt.Errorf("notification handler: %w", err)
		}
		handlers[workflow.StepNotification] = h
	}

	// Conditions drive branching and cannot be switched off.
	handlers[workflow.StepCondition] = conditioneval.NewHandler(conditioneval.LoadConfig(), log)

	return handlers, nil
}

// NewEngine builds the engine with registry schemas and timeouts, then checks
// that every loaded workflow only uses step types that have a handler.
func NewEngine(cfg *config.Config, cats *Catalogs, handlers map[workflow.StepType]workflow.Handler, log logger.Logger, opts ...engine.Option) (*engine.Engine, error) {
	validator, err := engine.NewRegistryValidator(cats.Registry)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.Catalog.StepRegistryFile, err)
	}
	timeouts, err := engine.StepTimeouts(cats.Registry)
	if err != nil {
		return nil, apperrors.NewCatalogInvalidError(cfg.Catalog.StepRegistryFile, err)
	}
	for name, step := range cfg.Steps {
		if step.Timeout > 0 {
			timeouts[workflow.StepType(name)] = config.GetDuration(step.Timeout)
		}
	}

	e := engine.New(handlers, engine.Config{
		DefaultTimeout: config.GetDuration(cfg.Engine.DefaultStepTimeout),
		TimeoutGrace:   config.GetDuration(cfg.Engine.TimeoutGrace),
		StepTimeouts:   timeouts,
	}, log, append([]engine.Option{engine.WithValidator(validator)}, opts...)...)

	for _, name := range cats.Templates.Names() {
		tmpl, _ := cats.Templates.Get(name)
		if err := e.Supports(tmpl); err != nil {
			return nil, err
		}
	}
	return e, nil
}
