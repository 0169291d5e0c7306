package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"infra-chatops/internal/catalog"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/engine"
	"infra-chatops/internal/interpreter"
	"infra-chatops/internal/mapper"
	"infra-chatops/internal/store"
	"infra-chatops/internal/workers/runtime/condition-eval"
	"infra-chatops/internal/workflow"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeBuild struct {
	release chan struct{}
	started chan string
}

func newFakeBuild() *fakeBuild {
	return &fakeBuild{release: make(chan struct{}), started: make(chan string, 4)}
}

// Run blocks until released or cancelled.
func (b *fakeBuild) Run(ctx context.Context, req *workflow.StepRequest) *workflow.StepResult {
	b.started <- req.InstanceID
	select {
	case <-b.release:
		return workflow.Ok(map[string]interface{}{"build_number": float64(42), "result": "SUCCESS"})
	case <-ctx.Done():
		return workflow.Fail(workflow.ErrorExternalFailure, "build interrupted: %v", ctx.Err())
	}
}

func instantBuild() workflow.HandlerFunc {
	return func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		return workflow.Ok(map[string]interface{}{"build_number": float64(42), "result": "SUCCESS"})
	}
}

func handlers(jenkins workflow.Handler) map[workflow.StepType]workflow.Handler {
	return map[workflow.StepType]workflow.Handler{
		workflow.StepJenkins: jenkins,
		workflow.StepAnsible: workflow.HandlerFunc(func(context.Context, *workflow.StepRequest) *workflow.StepResult {
			return workflow.Ok(map[string]interface{}{"ok": float64(3), "failed": float64(0)})
		}),
		workflow.StepNotification: workflow.HandlerFunc(func(_ context.Context, req *workflow.StepRequest) *workflow.StepResult {
			return workflow.Ok(map[string]interface{}{"message": req.Parameters["message"], "delivered": true})
		}),
		workflow.StepCondition: conditioneval.NewHandler(conditioneval.LoadConfig(), logger.NewNoOpLogger()),
	}
}

func newService(t *testing.T, jenkins workflow.Handler, reports store.ReportStore, opts ...Option) *Service {
	t.Helper()
	return newServiceWith(t, handlers(jenkins), reports, opts...)
}

func newServiceWith(t *testing.T, hs map[workflow.StepType]workflow.Handler, reports store.ReportStore, opts ...Option) *Service {
	t.Helper()
	cat, err := catalog.LoadCatalogFile("../../configs/catalog/entities.yaml")
	require.NoError(t, err)
	lib, err := catalog.LoadLibraryFile("../../configs/catalog/intents.yaml", cat)
	require.NoError(t, err)
	templates, err := workflow.LoadDir("../../configs/workflows")
	require.NoError(t, err)
	m, err := mapper.LoadFile("../../configs/catalog/commands.yaml", templates, lib)
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	e := engine.New(hs, engine.Config{DefaultTimeout: 2 * time.Second, TimeoutGrace: 50 * time.Millisecond}, log)
	s := New(interpreter.New(cat, lib), m, e, reports, log, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func waitFor(t *testing.T, s *Service, id string) *workflow.Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	report, err := s.Wait(ctx, id)
	require.NoError(t, err)
	require.True(t, report.Terminal(), "status %s", report.Status)
	return report
}

func deployRequest() Request {
	return Request{Text: "deploy api to production", UserID: "U1", ChannelID: "C1"}
}

type recordingArchiver struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (a *recordingArchiver) Archive(_ context.Context, r *workflow.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, r.InstanceID)
	return a.err
}

func (a *recordingArchiver) archived() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ids...)
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Save(context.Context, *workflow.Report) error {
	return errors.New("redis: connection refused")
}

type denyGate struct {
	user   string
	intent string
}

func (g denyGate) AuthorizeUser(userID string) error {
	if userID == g.user {
		return errors.New("user not allowed")
	}
	return nil
}

func (g denyGate) AuthorizeIntent(_, intent string) error {
	if intent == g.intent {
		return errors.New("intent restricted")
	}
	return nil
}

// ==========================
// SubmitCommand
// ==========================

func TestSubmitCommand_DeploySucceeds(t *testing.T) {
	archive := &recordingArchiver{}
	s := newService(t, instantBuild(), store.NewMemoryStore(), WithArchivers(archive))

	id, err := s.SubmitCommand(context.Background(), deployRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	report := waitFor(t, s, id)
	assert.Equal(t, workflow.StateSucceeded, report.Status)
	assert.Equal(t, "deploy_workflow", report.Workflow)
	assert.Equal(t, "deploy", report.Intent)
	assert.Equal(t, "✅ Deployed api latest to production", report.FinalMessage)
	assert.Equal(t, report.FinalMessage, ResponseText(report))
	assert.Equal(t, "deploy.yml", report.Parameters["playbook"])
	assert.Equal(t, []string{id}, archive.archived())
	assert.Zero(t, s.Active())

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, recent)
}

func TestSubmitCommand_Rejections(t *testing.T) {
	s := newService(t, instantBuild(), store.NewMemoryStore())

	tests := []struct {
		name   string
		text   string
		reason interpreter.RejectionReason
		guess  string
	}{
		{"no match", "make me a sandwich", interpreter.ReasonNoMatch, ""},
		{"empty", "  ", interpreter.ReasonNoMatch, ""},
		{"below threshold", "deploy mystery to moon", interpreter.ReasonBelowThreshold, "deploy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.SubmitCommand(context.Background(), Request{Text: tt.text, UserID: "U1"})
			assert.Empty(t, id)
			var rej *interpreter.Rejection
			require.True(t, errors.As(err, &rej), "got %v", err)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.guess, rej.BestGuess)
			assert.NotEmpty(t, rej.Message)
		})
	}

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "rejected commands never create instances")
}

func TestSubmitCommand_HelpIsAnsweredDirectly(t *testing.T) {
	s := newService(t, instantBuild(), store.NewMemoryStore())

	id, err := s.SubmitCommand(context.Background(), Request{Text: "help deploy", UserID: "U1"})
	require.NoError(t, err)

	report, err := s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateSucceeded, report.Status)
	assert.Equal(t, "help", report.Intent)
	assert.Empty(t, report.Ledger)
	assert.Contains(t, report.FinalMessage, "deploy {service}")

	id, err = s.SubmitCommand(context.Background(), Request{Text: "what can you do", UserID: "U1"})
	require.NoError(t, err)
	report, err = s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, ResponseText(report), "Available commands:")
}

func TestSubmitCommand_Gate(t *testing.T) {
	s := newService(t, instantBuild(), store.NewMemoryStore(), WithGate(denyGate{user: "U-blocked", intent: "destroy"}))

	_, err := s.SubmitCommand(context.Background(), Request{Text: "deploy api to production", UserID: "U-blocked"})
	assert.EqualError(t, err, "user not allowed")

	_, err = s.SubmitCommand(context.Background(), Request{Text: "destroy cluster in testing", UserID: "U1"})
	assert.EqualError(t, err, "intent restricted")

	recent, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

// ==========================
// Lifecycle
// ==========================

func TestGetReport_ProgressWhileRunning(t *testing.T) {
	build := newFakeBuild()
	s := newService(t, build, store.NewMemoryStore())

	id, err := s.SubmitCommand(context.Background(), deployRequest())
	require.NoError(t, err)
	assert.Equal(t, id, <-build.started)

	report, err := s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRunning, report.Status)
	assert.False(t, report.Terminal())
	assert.Contains(t, ResponseText(report), "is running")
	assert.Equal(t, 1, s.Active())

	close(build.release)
	assert.Equal(t, workflow.StateSucceeded, waitFor(t, s, id).Status)
}

func TestCancel(t *testing.T) {
	build := newFakeBuild()
	s := newService(t, build, store.NewMemoryStore())
	ctx := context.Background()

	id, err := s.SubmitCommand(ctx, deployRequest())
	require.NoError(t, err)
	<-build.started

	require.NoError(t, s.Cancel(ctx, id))
	close(build.release)

	report := waitFor(t, s, id)
	assert.Equal(t, workflow.StateFailed, report.Status)
	assert.Equal(t, workflow.ReasonCancelled, report.Reason)
	assert.Equal(t, workflow.ErrorCancelled, report.ErrorKind)
	require.NotEmpty(t, report.Ledger)
	assert.Equal(t, 1, report.Ledger[0].Index)
	assert.Contains(t, report.FinalMessage, "❌ Deployment of api to production failed")

	assert.ErrorIs(t, s.Cancel(ctx, id), ErrFinished)
	assert.ErrorIs(t, s.Cancel(ctx, "missing"), ErrNotFound)

	_, err = s.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWait_ContextDone(t *testing.T) {
	build := newFakeBuild()
	s := newService(t, build, store.NewMemoryStore())

	id, err := s.SubmitCommand(context.Background(), deployRequest())
	require.NoError(t, err)
	<-build.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Wait(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(build.release)
	waitFor(t, s, id)
}

func TestMaxConcurrent_QueuesInstances(t *testing.T) {
	build := newFakeBuild()
	s := newService(t, build, store.NewMemoryStore(), WithMaxConcurrent(1))
	ctx := context.Background()

	first, err := s.SubmitCommand(ctx, deployRequest())
	require.NoError(t, err)
	assert.Equal(t, first, <-build.started)

	second, err := s.SubmitCommand(ctx, deployRequest())
	require.NoError(t, err)

	queued, err := s.GetReport(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePending, queued.Status)
	assert.Contains(t, ResponseText(queued), "is queued")

	close(build.release)
	assert.Equal(t, second, <-build.started)
	assert.Equal(t, workflow.StateSucceeded, waitFor(t, s, first).Status)
	assert.Equal(t, workflow.StateSucceeded, waitFor(t, s, second).Status)
}

func TestFinalReport_KeptWhenStoreFails(t *testing.T) {
	archive := &recordingArchiver{err: errors.New("index unavailable")}
	s := newService(t, instantBuild(), failingStore{store.NewMemoryStore()}, WithArchivers(archive))

	id, err := s.SubmitCommand(context.Background(), deployRequest())
	require.NoError(t, err)

	report := waitFor(t, s, id)
	assert.Equal(t, workflow.StateSucceeded, report.Status)
	assert.Equal(t, []string{id}, archive.archived())
	assert.Equal(t, 1, s.Active(), "unsaved report stays in memory")

	again, err := s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Same(t, report, again)
}

func TestShutdown(t *testing.T) {
	build := newFakeBuild()
	s := newService(t, build, store.NewMemoryStore())

	id, err := s.SubmitCommand(context.Background(), deployRequest())
	require.NoError(t, err)
	<-build.started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Zero(t, s.Active())

	report, err := s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateFailed, report.Status)

	_, err = s.SubmitCommand(context.Background(), deployRequest())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

// ==========================
// End to end with Redis
// ==========================

func TestEndToEnd_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newService(t, instantBuild(), store.NewRedisStore(client, "chatops", time.Hour))
	ctx := context.Background()

	id, err := s.SubmitCommand(ctx, Request{Text: "deploy auth version 2.4.1 to prod", UserID: "U1"})
	require.NoError(t, err)

	report := waitFor(t, s, id)
	assert.Equal(t, workflow.StateSucceeded, report.Status)
	assert.Equal(t, "2.4.1", report.Parameters["version"])
	assert.True(t, mr.Exists("chatops:report:"+id))

	stored, err := store.NewRedisStore(client, "chatops", time.Hour).Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, report.FinalMessage, stored.FinalMessage)
	assert.Len(t, stored.Ledger, len(report.Ledger))

	recent, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, recent)
}

// ==========================
// ResponseText
// ==========================

func TestSubmitCommand_FailedStatusNamesStep(t *testing.T) {
	hs := handlers(instantBuild())
	hs[workflow.StepTerraform] = workflow.HandlerFunc(func(context.Context, *workflow.StepRequest) *workflow.StepResult {
		return workflow.Fail(workflow.ErrorTimeout, "terraform state list did not finish")
	})
	s := newServiceWith(t, hs, store.NewMemoryStore())

	id, err := s.SubmitCommand(context.Background(), Request{Text: "status of production", UserID: "U1"})
	require.NoError(t, err)

	report := waitFor(t, s, id)
	require.Equal(t, workflow.StateFailed, report.Status)
	assert.Equal(t, "List resources", report.FailedStep)
	assert.Equal(t, workflow.ErrorTimeout, report.ErrorKind)

	text := ResponseText(report)
	assert.Contains(t, text, "production")
	assert.Contains(t, text, "'List resources'")
	assert.Contains(t, text, string(workflow.ErrorTimeout))
}

func TestResponseText_Failures(t *testing.T) {
	tests := []struct {
		name   string
		report *workflow.Report
		want   string
	}{
		{
			name: "message already names the step",
			report: &workflow.Report{
				Status:       workflow.StateFailed,
				FailedStep:   "Roll out",
				ErrorKind:    workflow.ErrorExternalFailure,
				FinalMessage: "❌ failed at 'Roll out'",
			},
			want: "❌ failed at 'Roll out'",
		},
		{
			name: "step appended",
			report: &workflow.Report{
				Status:       workflow.StateFailed,
				FailedStep:   "Roll out",
				ErrorKind:    workflow.ErrorExternalFailure,
				FinalMessage: "❌ deployment failed",
			},
			want: "❌ deployment failed\nFailed step: 'Roll out' (ExternalFailure)",
		},
		{
			name: "cancelled before any step",
			report: &workflow.Report{
				Status:       workflow.StateFailed,
				ErrorKind:    workflow.ErrorCancelled,
				FinalMessage: "❌ cancelled",
			},
			want: "❌ cancelled",
		},
		{
			name: "partial failure keeps message",
			report: &workflow.Report{
				Status:       workflow.StatePartiallyFailed,
				FailedStep:   "Announce",
				FinalMessage: "✅ done",
			},
			want: "✅ done",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResponseText(tt.report))
		})
	}
}
