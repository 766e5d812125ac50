package tasks

import (
	"strings"

	"github.com/reviewloop/internal/session"
	"github.com/reviewloop/pkg/models"
)

// actionKeywords mark a pathless comment body as actionable. Matching is a
// case-insensitive substring check.
var actionKeywords = []string{
	"fix", "change", "update", "remove", "add", "rename", "refactor",
	"error", "bug", "issue", "warning", "missing", "incorrect",
	"should", "must", "need",
}

// acknowledgmentPhrases open approval or thanks comments that never produce
// a fix task. Matched as a prefix of the trimmed, lowercased body.
var acknowledgmentPhrases = []string{
	"lgtm", "looks good", "thanks", "thank you", "nice", "great",
	"approved", "+1", "👍", "ship it", "sounds good", "makes sense",
	"got it", "ack ", "acked",
}

// interrogativeWords open a question. A body that leads with one and ends
// with a question mark is a question, not an instruction.
var interrogativeWords = []string{
	"what", "why", "how", "when", "where", "who", "which",
	"is", "are", "can", "could", "would", "should", "do", "does", "did",
}

// Normalize filters and maps raw comments into actionable fix tasks.
// It is deterministic given the session state, preserves input order, and
// never returns a task whose idempotency key is already in the handled set.
func Normalize(comments []models.RawComment, state *session.State) []models.FixTask {
	var out []models.FixTask
	for _, c := range comments {
		if c.Resolved || c.Replied {
			continue
		}
		if state != nil && state.IsHandled(c.ID, c.RevisionID) {
			continue
		}
		// A comment anchored to a file but carrying neither a line nor a
		// diff position is outdated: the code it referred to has moved.
		if c.FilePath != "" && c.Line == nil && c.Position == nil {
			continue
		}
		if !isActionable(c) {
			continue
		}

		start, end := deriveLineRange(c)
		side := c.Side
		if side == "" {
			side = models.SideNew
		}
		out = append(out, models.FixTask{
			ID:          c.ID,
			FilePath:    c.FilePath,
			StartLine:   start,
			EndLine:     end,
			Side:        side,
			Body:        c.Body,
			DiffContext: c.DiffContext,
			RevisionID:  c.RevisionID,
			CreatedAt:   c.CreatedAt,
		})
	}
	return out
}

// isActionable applies the content heuristics: acknowledgments and questions
// are excluded, file-scoped comments are kept, and pathless comments must
// contain at least one action keyword.
func isActionable(c models.RawComment) bool {
	body := strings.ToLower(strings.TrimSpace(c.Body))
	if body == "" {
		return false
	}

	for _, phrase := range acknowledgmentPhrases {
		if strings.HasPrefix(body, phrase) {
			return false
		}
	}
	if isQuestion(body) {
		return false
	}

	if c.FilePath != "" {
		return true
	}
	for _, keyword := range actionKeywords {
		if strings.Contains(body, keyword) {
			return true
		}
	}
	return false
}

// isQuestion reports whether the body reads as a question: it leads with a
// question mark, or opens with an interrogative word and ends with one.
func isQuestion(body string) bool {
	if strings.HasPrefix(body, "?") {
		return true
	}
	if !strings.HasSuffix(body, "?") {
		return false
	}
	first := body
	if idx := strings.IndexAny(body, " \t\n"); idx > 0 {
		first = body[:idx]
	}
	first = strings.Trim(first, ",.:;!")
	for _, w := range interrogativeWords {
		if first == w {
			return true
		}
	}
	return false
}

// deriveLineRange resolves a single-line range for the comment. The explicit
// comment line wins; a hunk header in the diff context is used to confirm the
// line sits inside the hunk's new-file span. Comments with no line anchor at
// all default to line 1.
func deriveLineRange(c models.RawComment) (int, int) {
	line := 1
	if c.Line != nil && *c.Line > 0 {
		line = *c.Line
	}

	if hunk, ok := ParseHunkHeader(c.DiffContext); ok {
		if c.Line != nil && hunk.ContainsNewLine(*c.Line) {
			return *c.Line, *c.Line
		}
	}
	return line, line
}

// GroupByFile buckets tasks by file path, returning the paths in first-seen
// order alongside the bucket map.
func GroupByFile(tasks []models.FixTask) ([]string, map[string][]models.FixTask) {
	grouped := make(map[string][]models.FixTask)
	var order []string
	for _, task := range tasks {
		if _, ok := grouped[task.FilePath]; !ok {
			order = append(order, task.FilePath)
		}
		grouped[task.FilePath] = append(grouped[task.FilePath], task)
	}
	return order, grouped
}

// CountAffectedLines sums the line spans of all tasks.
func CountAffectedLines(tasks []models.FixTask) int {
	total := 0
	for _, task := range tasks {
		total += task.LineCount()
	}
	return total
}
