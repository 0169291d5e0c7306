package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"infra-chatops/internal/bootstrap"
	"infra-chatops/internal/common/runner"
	"infra-chatops/internal/service"
	"infra-chatops/internal/store"
	"infra-chatops/internal/workflow"
	sendnotification "infra-chatops/internal/workers/communication/send-notification"
)

var (
	dryRun     bool
	runTimeout time.Duration
	runUser    string
	dryReplies []string
	showReport bool
)

var runCmd = &cobra.Command{
	Use:   "run [text...]",
	Short: "Interpret chat text and execute the resulting workflow",
	Long: `Runs a command end to end. With --dry-run terraform and ansible are answered
from canned output, Jenkins is simulated and notifications are printed instead
of delivered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

// dryRunReplies answer the terraform calls the shipped workflows make.
var dryRunReplies = map[string]string{
	"output -json": `{"replicas": {"sensitive": false, "type": "number", "value": 3}}`,
	"plan":         "Plan: 1 to add, 0 to change, 0 to destroy.",
	"apply":        "Apply complete! Resources: 0 added, 1 changed, 0 destroyed.",
	"destroy":      "Destroy complete! Resources: 1 destroyed.",
	"state list":   "aws_instance.web\naws_security_group.web",
}

func scriptedRunner(overrides []string) (*runner.ScriptedRunner, error) {
	r := runner.NewScriptedRunner()
	for prefix, stdout := range dryRunReplies {
		r.On(runner.Reply{Stdout: stdout}, strings.Fields(prefix)...)
	}
	for _, o := range overrides {
		prefix, stdout, ok := strings.Cut(o, "=")
		if !ok {
			return nil, fmt.Errorf("--reply %q: want ARGS=STDOUT", o)
		}
		r.On(runner.Reply{Stdout: strings.ReplaceAll(stdout, `\n`, "\n")}, strings.Fields(prefix)...)
	}
	return r, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, cats, err := loadAll()
	if err != nil {
		return err
	}
	log := newLogger()
	out := cmd.OutOrStdout()

	sink := sendnotification.NewRecordingSink()
	integrations := bootstrap.Integrations{Sink: sink}
	var scripted *runner.ScriptedRunner
	if dryRun {
		scripted, err = scriptedRunner(dryReplies)
		if err != nil {
			return err
		}
		integrations.Runner = scripted
		integrations.HTTP = dryRunJenkins{}
		cfg.Integrations.Jenkins.URL = dryRunJenkinsURL
		cfg.Integrations.Jenkins.PollInterval = 10
		cfg.Integrations.Notifications.EmailEnabled = false
		cfg.Integrations.Notifications.SMSEnabled = false
		cfg.Integrations.Notifications.WebhookURL = ""
	}

	handlers, err := bootstrap.BuildHandlers(cfg, integrations, log)
	if err != nil {
		return err
	}
	eng, err := bootstrap.NewEngine(cfg, cats, handlers, log)
	if err != nil {
		return err
	}
	svc := service.New(bootstrap.NewInterpreter(cfg, cats), cats.Commands, eng, store.NewMemoryStore(), log)

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	id, err := svc.SubmitCommand(ctx, service.Request{Text: strings.Join(args, " "), UserID: runUser, ChannelID: "cli"})
	if err != nil {
		stdErr := service.AsStandardError(err, "")
		return fmt.Errorf("%s: %s", stdErr.Code, stdErr.Message)
	}
	report, err := svc.Wait(ctx, id)
	if err != nil {
		_ = svc.Cancel(context.Background(), id)
		return fmt.Errorf("waiting for %s: %w", id, err)
	}

	if scripted != nil {
		for _, c := range scripted.Calls() {
			fmt.Fprintf(out, "  $ %s\n", c.String())
		}
	}
	for _, msg := range sink.Messages(id) {
		fmt.Fprintf(out, "  [%s] %s\n", msg.Level, msg.Text)
	}
	fmt.Fprintf(out, "\n%s (%s)\n%s\n", report.Status, id, service.ResponseText(report))

	if showReport {
		if err := printJSON(report); err != nil {
			return err
		}
	}
	if report.Status != workflow.StateSucceeded {
		return fmt.Errorf("workflow %s finished %s", report.Workflow, report.Status)
	}
	return nil
}

const dryRunJenkinsURL = "http://jenkins.dry-run"

// dryRunJenkins answers the Jenkins remote API with a build that succeeds at once.
type dryRunJenkins struct{}

func (dryRunJenkins) DoWithContext(_ context.Context, req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	switch {
	case strings.HasPrefix(path, "/crumbIssuer"):
		return dryRunResponse(http.StatusNotFound, "", nil), nil
	case req.Method == http.MethodPost:
		return dryRunResponse(http.StatusCreated, "", http.Header{"Location": {dryRunJenkinsURL + "/queue/item/1/"}}), nil
	case strings.HasPrefix(path, "/queue/item/"):
		return dryRunResponse(http.StatusOK, `{"id": 1, "executable": {"number": 1, "url": "`+dryRunJenkinsURL+`/build/1/"}}`, nil), nil
	default:
		return dryRunResponse(http.StatusOK, `{"number": 1, "building": false, "result": "SUCCESS", "duration": 0, "url": "`+dryRunJenkinsURL+`/build/1/"}`, nil), nil
	}
}

func dryRunResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate terraform, ansible and jenkins")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "give up waiting after this long")
	runCmd.Flags().StringVar(&runUser, "user", "cli", "user id checked by the security gate")
	runCmd.Flags().StringArrayVar(&dryReplies, "reply", nil, "canned tool output for --dry-run as ARGS=STDOUT, e.g. 'output -json={...}'")
	runCmd.Flags().BoolVar(&showReport, "report", false, "print the full report as JSON")
	rootCmd.AddCommand(runCmd)
}
