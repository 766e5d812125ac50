// Package guardrail bounds the blast radius of a single fix cycle by
// rejecting task batches that touch too many files or lines.
package guardrail

import (
	"fmt"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/tasks"
	"github.com/reviewloop/pkg/models"
)

// Result is the outcome of a guardrail check. Reason is set only when the
// check fails and names the first threshold that was exceeded.
type Result struct {
	Passed bool
	Reason string
}

// Check validates a task batch against the configured per-cycle limits.
// The file-count threshold is checked before the line-count threshold, so a
// batch violating both reports the file limit. A threshold of zero or less
// disables that limit.
func Check(batch []models.FixTask, limits config.Limits) Result {
	_, grouped := tasks.GroupByFile(batch)
	if limits.MaxFilesPerCycle > 0 && len(grouped) > limits.MaxFilesPerCycle {
		return Result{
			Reason: fmt.Sprintf("cycle touches %d files, limit is %d",
				len(grouped), limits.MaxFilesPerCycle),
		}
	}

	affected := tasks.CountAffectedLines(batch)
	if limits.MaxLinesPerCycle > 0 && affected > limits.MaxLinesPerCycle {
		return Result{
			Reason: fmt.Sprintf("cycle touches %d lines, limit is %d",
				affected, limits.MaxLinesPerCycle),
		}
	}

	return Result{Passed: true}
}
