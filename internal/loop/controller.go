package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/session"
	"github.com/reviewloop/pkg/models"
)

// phase is the controller's position in its state machine.
type phase int

const (
	phaseExecuting phase = iota
	phaseWaitingForReviewers
	phaseSleeping
	phaseTerminated
)

// CycleRunner runs one fix cycle. Satisfied by Executor.
type CycleRunner interface {
	RunCycle(ctx context.Context, state *session.State) *models.CycleResult
}

// Controller repeats fix cycles until a terminal condition: budget
// exhausted, guardrail stop, failure, stagnation, or a complete cycle with
// every reviewer finished.
type Controller struct {
	runner CycleRunner
	source Source
	gate   ReviewerGate
	git    Git
	store  session.Store
	cfg    *config.Config
	log    zerolog.Logger

	// sleep is injectable so tests run without wall-clock delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController wires a Controller from its collaborators.
func NewController(runner CycleRunner, source Source, gate ReviewerGate, git Git, store session.Store, cfg *config.Config, log zerolog.Logger) *Controller {
	return &Controller{
		runner: runner,
		source: source,
		gate:   gate,
		git:    git,
		store:  store,
		cfg:    cfg,
		log:    log.With().Str("component", "controller").Logger(),
		sleep:  sleepCtx,
	}
}

// Run executes the loop until termination and returns the terminal result.
// Pre-flight failures and context cancellation return an error instead.
func (c *Controller) Run(ctx context.Context) (*models.CycleResult, error) {
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}

	state, err := c.store.Open(c.source.TargetID())
	if err != nil {
		return nil, fmt.Errorf("opening session state: %w", err)
	}
	c.log.Info().Str("target", state.TargetID).Int("cycle", state.Cycle).
		Msg("loop started")

	wait := newBackoff(c.cfg.Poll.Interval, c.cfg.Poll.Multiplier, c.cfg.Poll.MaxInterval)
	emptyStreak := 0
	waited := false

	var result *models.CycleResult
	current := phaseExecuting
	for current != phaseTerminated {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch current {
		case phaseExecuting:
			if state.Cycle >= c.cfg.Limits.MaxCycles {
				result = &models.CycleResult{
					Status: models.CycleStopped,
					Reason: fmt.Sprintf("cycle budget of %d exhausted", c.cfg.Limits.MaxCycles),
				}
				current = phaseTerminated
				break
			}

			res := c.runner.RunCycle(ctx, state)
			switch res.Status {
			case models.CyclePushed:
				if res.FixedCount == 0 {
					emptyStreak++
					if emptyStreak >= 2 {
						result = &models.CycleResult{Status: models.CycleStopped, Reason: "no progress"}
						current = phaseTerminated
						break
					}
				} else {
					emptyStreak = 0
					wait.Reset()
				}
				c.requestReviews(ctx)
				current = phaseSleeping
			case models.CycleComplete:
				if !c.cfg.Poll.WaitForReviewers || len(c.cfg.Reviewers) == 0 {
					result = res
					current = phaseTerminated
					break
				}
				waited = false
				current = phaseWaitingForReviewers
			default:
				result = res
				current = phaseTerminated
			}

		case phaseWaitingForReviewers:
			done, err := c.reviewersFinished(ctx)
			if err != nil {
				return nil, err
			}
			if done {
				if !waited {
					// Reviewers were already finished when the cycle came
					// up empty: there is nothing left to wait for.
					result = &models.CycleResult{Status: models.CycleComplete}
					current = phaseTerminated
					break
				}
				// Reviewers finished while we waited; run another cycle to
				// pick up whatever they posted.
				current = phaseExecuting
				break
			}
			waited = true
			if err := c.sleep(ctx, wait.Advance()); err != nil {
				return nil, err
			}

		case phaseSleeping:
			if err := c.sleep(ctx, wait.Advance()); err != nil {
				return nil, err
			}
			current = phaseExecuting
		}
	}

	c.log.Info().Str("status", string(result.Status)).Str("reason", result.Reason).
		Int("cycles", state.Cycle).Msg("loop terminated")
	return result, nil
}

// preflight validates the working tree before any cycle is counted.
func (c *Controller) preflight(ctx context.Context) error {
	clean, err := c.git.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("working tree has uncommitted changes")
	}

	upToDate, err := c.git.IsUpToDate(ctx)
	if err != nil {
		return err
	}
	if !upToDate {
		if !c.cfg.Git.AutoRebase {
			return fmt.Errorf("local head is behind the remote and auto_rebase is disabled")
		}
		if err := c.git.Rebase(ctx); err != nil {
			return fmt.Errorf("rebasing onto remote: %w", err)
		}
	}
	return nil
}

// reviewersFinished checks every configured reviewer against the current
// head. Unknown status counts as finished so an absent check never blocks.
func (c *Controller) reviewersFinished(ctx context.Context) (bool, error) {
	head, err := c.git.HeadRevision(ctx)
	if err != nil {
		return false, err
	}
	for _, reviewer := range c.cfg.Reviewers {
		state, err := c.gate.CheckStatus(ctx, head, reviewer)
		if err != nil {
			return false, fmt.Errorf("checking reviewer %s: %w", reviewer.Name, err)
		}
		if state == models.ReviewerPending || state == models.ReviewerInProgress {
			c.log.Debug().Str("reviewer", reviewer.Name).Str("state", string(state)).
				Msg("reviewer not finished")
			return false, nil
		}
	}
	return true, nil
}

// requestReviews posts each reviewer's trigger phrase after a push.
// Failures are logged and skipped.
func (c *Controller) requestReviews(ctx context.Context) {
	for _, reviewer := range c.cfg.Reviewers {
		if err := c.gate.RequestReview(ctx, reviewer); err != nil {
			c.log.Warn().Err(err).Str("reviewer", reviewer.Name).
				Msg("review trigger failed")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
