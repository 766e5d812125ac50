// Package verify runs the configured verification commands after the fix
// engine edits the working tree and before anything is committed.
package verify

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Outcome records a single command execution.
type Outcome struct {
	Command  string
	Passed   bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Report aggregates the outcomes of a verification run. FirstFailed names
// the first command that did not pass, empty when the run passed.
type Report struct {
	Passed      bool
	Outcomes    []Outcome
	FirstFailed string
}

// Runner executes verification commands strictly sequentially through the
// shell, each under its own timeout.
type Runner struct {
	timeout       time.Duration
	stopOnFailure bool
	log           zerolog.Logger
}

// NewRunner builds a Runner. A non-positive timeout disables the
// per-command deadline.
func NewRunner(timeout time.Duration, stopOnFailure bool, log zerolog.Logger) *Runner {
	return &Runner{
		timeout:       timeout,
		stopOnFailure: stopOnFailure,
		log:           log.With().Str("component", "verify").Logger(),
	}
}

// Run executes the commands in order in dir. An empty command list passes.
// When stop-on-failure is set the first failing command ends the run and
// later commands produce no outcome.
func (r *Runner) Run(ctx context.Context, commands []string, dir string) *Report {
	report := &Report{Passed: true}

	for _, command := range commands {
		outcome := r.runOne(ctx, command, dir)
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Passed {
			r.log.Debug().Str("command", command).
				Dur("duration", outcome.Duration).Msg("verification command passed")
			continue
		}

		r.log.Warn().Str("command", command).
			Int("exit_code", outcome.ExitCode).
			Bool("timed_out", outcome.TimedOut).
			Msg("verification command failed")

		if report.Passed {
			report.Passed = false
			report.FirstFailed = command
		}
		if r.stopOnFailure {
			break
		}
	}

	return report
}

func (r *Runner) runOne(ctx context.Context, command, dir string) Outcome {
	cmdCtx := ctx
	cancel := func() {}
	if r.timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		outcome.TimedOut = true
		outcome.ExitCode = -1
		return outcome
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		} else {
			outcome.ExitCode = -1
		}
		return outcome
	}

	outcome.Passed = true
	return outcome
}
