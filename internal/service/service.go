// Package service is the single entry point adapters use: it interprets chat
// text, maps it to a workflow instance, runs the instance in the background
// and keeps its report.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/common/metrics"
	"infra-chatops/internal/interpreter"
	"infra-chatops/internal/mapper"
	"infra-chatops/internal/store"
	"infra-chatops/internal/workflow"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("workflow instance not found")
	ErrFinished     = errors.New("workflow instance already finished")
	ErrShuttingDown = errors.New("service is shutting down")
)

const defaultArchiveTimeout = 10 * time.Second

// Request is one chat message addressed to the bot.
type Request struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// Executor runs an instance to completion; *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, inst *workflow.Instance) *workflow.Report
}

// Gate authorizes a request before and after interpretation.
type Gate interface {
	AuthorizeUser(userID string) error
	AuthorizeIntent(userID, intent string) error
}

type Service struct {
	interpreter *interpreter.Interpreter
	mapper      *mapper.Mapper
	engine      Executor
	reports     store.ReportStore
	archivers   []store.Archiver
	gate        Gate
	logger      logger.Logger

	archiveTimeout time.Duration
	slots          chan struct{}

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	active map[string]*execution
}

// execution tracks an instance until its final report is stored.
type execution struct {
	inst   *workflow.Instance
	done   chan struct{}
	report *workflow.Report
}

type Option func(*Service)

func WithArchivers(a ...store.Archiver) Option {
	return func(s *Service) { s.archivers = append(s.archivers, a...) }
}

func WithGate(g Gate) Option { return func(s *Service) { s.gate = g } }

// WithMaxConcurrent bounds the number of instances executing at once. Further
// instances wait in Pending for a free slot.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

func WithArchiveTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.archiveTimeout = d
		}
	}
}

func New(in *interpreter.Interpreter, m *mapper.Mapper, e Executor, reports store.ReportStore, log logger.Logger, opts ...Option) *Service {
	ctx, stop := context.WithCancel(context.Background())
	s := &Service{
		interpreter:    in,
		mapper:         m,
		engine:         e,
		reports:        reports,
		logger:         log.WithFields(map[string]interface{}{"component": "service"}),
		archiveTimeout: defaultArchiveTimeout,
		slots:          make(chan struct{}, 16),
		ctx:            ctx,
		stop:           stop,
		active:         make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reports == nil {
		s.reports = store.NewMemoryStore()
	}
	return s
}

// SubmitCommand interprets req.Text and starts the matching workflow. The
// error is a *interpreter.Rejection, a gate error or a mapper error; in those
// cases no instance exists. Direct intents (help) get an instance id whose
// report is already terminal.
func (s *Service) SubmitCommand(ctx context.Context, req Request) (string, error) {
	log := s.logger.WithFields(map[string]interface{}{"userId": req.UserID, "channelId": req.ChannelID})

	if s.gate != nil {
		if err := s.gate.AuthorizeUser(req.UserID); err != nil {
			metrics.CommandsTotal.WithLabelValues("", "denied").Inc()
			log.Warn("user not authorized", map[string]interface{}{"error": err.Error()})
			return "", err
		}
	}

	cmd, err := s.interpreter.Interpret(req.Text)
	if err != nil {
		intent := ""
		var rej *interpreter.Rejection
		if errors.As(err, &rej) {
			intent = rej.BestGuess
		}
		metrics.CommandsTotal.WithLabelValues(intent, "rejected").Inc()
		log.Info("command rejected", map[string]interface{}{"text": req.Text, "error": err.Error()})
		return "", err
	}
	log = log.WithFields(map[string]interface{}{"intent": cmd.Intent})

	if s.gate != nil {
		if err := s.gate.AuthorizeIntent(req.UserID, cmd.Intent); err != nil {
			metrics.CommandsTotal.WithLabelValues(cmd.Intent, "denied").Inc()
			log.Warn("command not authorized", map[string]interface{}{"error": err.Error()})
			return "", err
		}
	}

	if s.mapper.IsDirect(cmd.Intent) {
		return s.answer(ctx, cmd)
	}

	inst, err := s.mapper.Materialize(cmd)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(cmd.Intent, "unmapped").Inc()
		log.Error("command could not be mapped", map[string]interface{}{"error": err.Error()})
		return "", err
	}

	exec := &execution{inst: inst, done: make(chan struct{})}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	s.active[inst.ID] = exec
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.reports.Save(ctx, workflow.Progress(inst)); err != nil {
		log.Warn("saving pending report failed", map[string]interface{}{"instanceId": inst.ID, "error": err.Error()})
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Intent, "started").Inc()
	log.Info("workflow submitted", map[string]interface{}{
		"instanceId": inst.ID,
		"workflow":   inst.Template.Name,
		"confidence": cmd.Confidence,
	})

	go s.run(exec)
	return inst.ID, nil
}

// answer stores a terminal report for an intent answered without a workflow.
func (s *Service) answer(ctx context.Context, cmd *interpreter.Command) (string, error) {
	now := time.Now().UTC()
	text := s.interpreter.Library().HelpText(cmd.Parameters["topic"])
	report := &workflow.Report{
		InstanceID:   uuid.New().String(),
		Intent:       cmd.Intent,
		Status:       workflow.StateSucceeded,
		Parameters:   cmd.Parameters,
		Ledger:       []workflow.StepResult{},
		FinalMessage: text,
		Summary:      text,
		StartedAt:    now,
		FinishedAt:   now,
	}
	if err := s.reports.Save(ctx, report); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Intent, "answered").Inc()
	return report.InstanceID, nil
}

func (s *Service) run(exec *execution) {
	defer s.wg.Done()
	defer close(exec.done)

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-s.ctx.Done():
	}

	report := s.engine.Execute(s.ctx, exec.inst)

	s.mu.Lock()
	exec.report = report
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.archiveTimeout)
	defer cancel()

	log := s.logger.WithFields(map[string]interface{}{"instanceId": report.InstanceID})
	saved := true
	if err := s.reports.Save(ctx, report); err != nil {
		saved = false
		log.Error("saving final report failed, keeping it in memory", map[string]interface{}{"error": err.Error()})
	}
	for _, a := range s.archivers {
		if err := a.Archive(ctx, report); err != nil {
			log.Warn("archiving report failed", map[string]interface{}{"archiver": fmt.Sprintf("%T", a), "error": err.Error()})
		}
	}

	if saved {
		s.mu.Lock()
		delete(s.active, report.InstanceID)
		s.mu.Unlock()
	}
}

// GetReport returns the latest report of an instance: a progress report while
// it runs, the final report afterwards.
func (s *Service) GetReport(ctx context.Context, id string) (*workflow.Report, error) {
	s.mu.Lock()
	exec, ok := s.active[id]
	var final *workflow.Report
	if ok {
		final = exec.report
	}
	s.mu.Unlock()

	if ok {
		if final != nil {
			return final, nil
		}
		return workflow.Progress(exec.inst), nil
	}

	report, err := s.reports.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return report, err
}

// Wait blocks until the instance is terminal or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (*workflow.Report, error) {
	s.mu.Lock()
	exec, ok := s.active[id]
	s.mu.Unlock()

	if ok {
		select {
		case <-exec.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.GetReport(ctx, id)
}

// Cancel asks a running instance to stop before its next step.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	exec, ok := s.active[id]
	s.mu.Unlock()

	if ok {
		if !exec.inst.Cancel() {
			return fmt.Errorf("%w: %s", ErrFinished, id)
		}
		s.logger.Info("workflow cancellation requested", map[string]interface{}{"instanceId": id})
		return nil
	}

	if _, err := s.GetReport(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrFinished, id)
}

// Recent lists the ids of the most recently started instances.
func (s *Service) Recent(ctx context.Context, limit int) ([]string, error) {
	return s.reports.Recent(ctx, limit)
}

// Active reports how many instances have not stored their final report yet.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown stops accepting commands, cancels running instances between steps
// and waits for their reports to be stored.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResponseText is the operator-facing text for a report.
func ResponseText(r *workflow.Report) string {
	if r.Terminal() {
		text := r.FinalMessage
		if text == "" {
			text = r.Summary
		}
		if r.Status == workflow.StateFailed && r.FailedStep != "" && !strings.Contains(text, r.FailedStep) {
			text += fmt.Sprintf("\nFailed step: '%s' (%s)", r.FailedStep, r.ErrorKind)
		}
		return text
	}
	if r.Status == workflow.StatePending {
		return fmt.Sprintf("⏳ Workflow '%s' is queued", r.Workflow)
	}
	return fmt.Sprintf("⏳ Workflow '%s' is running (%d steps recorded)", r.Workflow, len(r.Ledger))
}
