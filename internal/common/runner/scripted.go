package runner

import (
	"context"
	"strings"
	"sync"
)

// Reply is the canned answer of a ScriptedRunner rule.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type rule struct {
	prefix string
	reply  Reply
}

// ScriptedRunner answers commands from canned replies instead of starting
// processes. Rules match on the leading arguments; the longest match wins and
// unmatched commands succeed with empty output. It backs dry runs and tests.
type ScriptedRunner struct {
	mu    sync.Mutex
	rules []rule
	calls []Command
}

func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{}
}

// On registers reply for commands whose arguments start with args.
func (s *ScriptedRunner) On(reply Reply, args ...string) *ScriptedRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{prefix: strings.Join(args, " "), reply: reply})
	return s
}

func (s *ScriptedRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return &Result{}, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	joined := strings.Join(cmd.Args, " ")
	var match *rule
	for i := range s.rules {
		r := &s.rules[i]
		if strings.HasPrefix(joined, r.prefix) && (match == nil || len(r.prefix) > len(match.prefix)) {
			match = r
		}
	}
	s.mu.Unlock()

	res := &Result{}
	if match != nil {
		res.Stdout = match.reply.Stdout
		res.Stderr = match.reply.Stderr
		res.ExitCode = match.reply.ExitCode
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// Calls returns the commands run so far.
func (s *ScriptedRunner) Calls() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.calls...)
}

// Subcommands returns the first argument of every call, e.g. [init output].
func (s *ScriptedRunner) Subcommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		if len(c.Args) > 0 {
			out = append(out, c.Args[0])
		}
	}
	return out
}
