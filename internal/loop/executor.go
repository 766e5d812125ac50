// Package loop drives fix cycles against a merge request: the Executor runs
// one cycle end to end, the Controller repeats it with backoff, progress
// detection, and a cycle budget.
package loop

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/fixer"
	"github.com/reviewloop/internal/guardrail"
	"github.com/reviewloop/internal/session"
	"github.com/reviewloop/internal/tasks"
	"github.com/reviewloop/internal/verify"
	"github.com/reviewloop/pkg/models"
)

// Source provides the review comments for one target and a way to post back.
type Source interface {
	TargetID() string
	FetchComments(ctx context.Context) ([]models.RawComment, error)
	PostComment(ctx context.Context, text string) error
	ReplyTo(ctx context.Context, commentID, text string) error
}

// ReviewerGate reports external reviewer progress against a revision.
type ReviewerGate interface {
	CheckStatus(ctx context.Context, revision string, reviewer config.Reviewer) (models.ReviewerState, error)
	RequestReview(ctx context.Context, reviewer config.Reviewer) error
}

// Git is the revision-control collaborator.
type Git interface {
	IsClean(ctx context.Context) (bool, error)
	IsUpToDate(ctx context.Context) (bool, error)
	Rebase(ctx context.Context) error
	HeadRevision(ctx context.Context) (string, error)
	StageCommitPush(ctx context.Context, message string) (string, error)
}

// Verifier runs the verification commands.
type Verifier interface {
	Run(ctx context.Context, commands []string, dir string) *verify.Report
}

// Executor runs one fix cycle. Every invocation consumes exactly one slot
// of the cycle budget, whatever its terminal status.
type Executor struct {
	source   Source
	engine   fixer.Engine
	git      Git
	verifier Verifier
	store    session.Store
	cfg      *config.Config
	log      zerolog.Logger
}

// NewExecutor wires an Executor from its collaborators.
func NewExecutor(source Source, engine fixer.Engine, git Git, verifier Verifier, store session.Store, cfg *config.Config, log zerolog.Logger) *Executor {
	return &Executor{
		source:   source,
		engine:   engine,
		git:      git,
		verifier: verifier,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "executor").Logger(),
	}
}

// RunCycle executes the per-cycle state machine. The cycle counter is
// incremented first so stopped and failed outcomes still count against the
// budget.
func (e *Executor) RunCycle(ctx context.Context, state *session.State) *models.CycleResult {
	cycle, err := e.store.IncrementCycle(state)
	if err != nil {
		return failed(fmt.Sprintf("persisting cycle counter: %v", err))
	}
	log := e.log.With().Int("cycle", cycle).Logger()

	comments, err := e.source.FetchComments(ctx)
	if err != nil {
		return failed(fmt.Sprintf("fetching comments: %v", err))
	}

	batch := tasks.Normalize(comments, state)
	if len(batch) == 0 {
		log.Info().Int("raw", len(comments)).Msg("no actionable comments")
		return &models.CycleResult{Status: models.CycleComplete}
	}
	log.Info().Int("raw", len(comments)).Int("tasks", len(batch)).Msg("normalized comments")

	if check := guardrail.Check(batch, e.cfg.Limits); !check.Passed {
		log.Warn().Str("reason", check.Reason).Msg("guardrail rejected cycle")
		return &models.CycleResult{Status: models.CycleStopped, Reason: check.Reason}
	}

	fixResult, err := e.engine.Apply(ctx, batch, e.cfg.Git.WorkDir)
	if err != nil {
		return failed(fmt.Sprintf("fix engine: %v", err))
	}
	if !fixResult.Success {
		return failed(fmt.Sprintf("fix engine: %s", fixResult.Err))
	}
	if len(fixResult.ChangedFiles) == 0 {
		// The engine judged the feedback already addressed. Acknowledge
		// and record the tasks so they never resurface.
		e.acknowledge(ctx, batch, log)
		if err := e.store.MarkHandled(state, batch, models.RevisionAlreadyFixed); err != nil {
			return failed(fmt.Sprintf("persisting handled items: %v", err))
		}
		log.Info().Int("tasks", len(batch)).Msg("feedback already addressed")
		return &models.CycleResult{Status: models.CycleComplete, Revision: models.RevisionAlreadyFixed}
	}

	report := e.verifier.Run(ctx, e.cfg.Verify.Commands, e.cfg.Git.WorkDir)
	if !report.Passed {
		log.Warn().Str("command", report.FirstFailed).Msg("verification failed, nothing committed")
		return failed(fmt.Sprintf("verification failed: %s", report.FirstFailed))
	}

	revision, err := e.git.StageCommitPush(ctx, e.cfg.Git.CommitMessage(cycle))
	if err != nil {
		return failed(fmt.Sprintf("committing fixes: %v", err))
	}

	if err := e.store.MarkHandled(state, batch, revision); err != nil {
		return failed(fmt.Sprintf("persisting handled items: %v", err))
	}

	log.Info().Int("fixed", len(batch)).Str("revision", revision).Msg("cycle pushed")
	return &models.CycleResult{
		Status:     models.CyclePushed,
		Revision:   revision,
		FixedCount: len(batch),
	}
}

// acknowledge replies to each comment best-effort. Individual failures are
// logged and skipped.
func (e *Executor) acknowledge(ctx context.Context, batch []models.FixTask, log zerolog.Logger) {
	for _, task := range batch {
		err := e.source.ReplyTo(ctx, task.ID,
			"This appears to be already addressed in the current revision.")
		if err != nil {
			log.Warn().Err(err).Str("comment", task.ID).Msg("acknowledgment reply failed")
		}
	}
}

func failed(reason string) *models.CycleResult {
	return &models.CycleResult{Status: models.CycleFailed, Reason: reason}
}
