package gitlab

import (
	"context"
	"fmt"
	"path"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/pkg/models"
)

// CheckStatus reports how far a configured reviewer has progressed against
// a revision, derived from the commit statuses whose check name matches the
// reviewer's patterns. No matching status yields ReviewerUnknown.
func (c *Client) CheckStatus(ctx context.Context, revision string, reviewer config.Reviewer) (models.ReviewerState, error) {
	var matched []*gitlab.CommitStatus
	opts := &gitlab.GetCommitStatusesOptions{
		ListOptions: gitlab.ListOptions{PerPage: perPage},
		All:         gitlab.Ptr(true),
	}
	for {
		if err := c.wait(ctx); err != nil {
			return models.ReviewerUnknown, err
		}
		statuses, resp, err := c.gl.Commits.GetCommitStatuses(c.project, revision, opts, gitlab.WithContext(ctx))
		if err != nil {
			return models.ReviewerUnknown, fmt.Errorf("fetching commit statuses for %s: %w", revision, err)
		}
		for _, status := range statuses {
			if matchesAny(status.Name, reviewer.CheckPatterns) {
				matched = append(matched, status)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	state := aggregateStates(matched)
	c.log.Debug().Str("reviewer", reviewer.Name).Str("revision", revision).
		Str("state", string(state)).Int("checks", len(matched)).
		Msg("reviewer status")
	return state, nil
}

// RequestReview posts the reviewer's trigger phrase on the merge request
// to ask for a fresh pass. Reviewers without a trigger phrase are skipped.
func (c *Client) RequestReview(ctx context.Context, reviewer config.Reviewer) error {
	if reviewer.TriggerPhrase == "" {
		return nil
	}
	return c.PostComment(ctx, reviewer.TriggerPhrase)
}

// matchesAny matches a check name against glob patterns, falling back to a
// case-insensitive substring check for patterns without metacharacters.
func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
		if !strings.ContainsAny(pattern, "*?[") &&
			strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// aggregateStates folds individual check states into one reviewer state.
// A running check dominates pending, which dominates finished states.
func aggregateStates(statuses []*gitlab.CommitStatus) models.ReviewerState {
	if len(statuses) == 0 {
		return models.ReviewerUnknown
	}
	state := models.ReviewerCompleted
	for _, status := range statuses {
		switch status.Status {
		case "running":
			return models.ReviewerInProgress
		case "pending", "created", "waiting_for_resource":
			state = models.ReviewerPending
		}
	}
	return state
}
