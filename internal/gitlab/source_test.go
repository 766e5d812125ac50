package gitlab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/reviewloop/pkg/models"
)

var testBots = map[string]bool{"livereview-bot": true}

func botNote(id int, body string) *gitlab.Note {
	note := &gitlab.Note{ID: id, Body: body}
	note.Author.Username = "livereview-bot"
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	note.CreatedAt = &created
	return note
}

func humanNote(id int, body string) *gitlab.Note {
	note := &gitlab.Note{ID: id, Body: body}
	note.Author.Username = "alice"
	return note
}

func TestConvertDiscussions_BotFilter(t *testing.T) {
	discussions := []*gitlab.Discussion{
		{ID: "d1", Notes: []*gitlab.Note{botNote(1, "Please fix this")}},
		{ID: "d2", Notes: []*gitlab.Note{humanNote(2, "Please fix this too")}},
	}

	got := convertDiscussions(discussions, "head-sha", testBots)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "d1", got[0].DiscussionID)
	assert.Equal(t, "livereview-bot", got[0].Author)
	assert.Equal(t, "head-sha", got[0].RevisionID)
}

func TestConvertDiscussions_SystemNotesSkipped(t *testing.T) {
	note := botNote(1, "added 1 commit")
	note.System = true
	discussions := []*gitlab.Discussion{{ID: "d1", Notes: []*gitlab.Note{note}}}

	assert.Empty(t, convertDiscussions(discussions, "head-sha", testBots))
}

func TestConvertDiscussions_PositionMapping(t *testing.T) {
	t.Run("new line", func(t *testing.T) {
		note := botNote(1, "Remove this")
		note.Position = &gitlab.NotePosition{
			NewPath: "pkg/a.go",
			NewLine: 42,
			HeadSHA: "pos-sha",
		}
		got := convertDiscussions([]*gitlab.Discussion{{ID: "d1", Notes: []*gitlab.Note{note}}}, "head-sha", testBots)
		require.Len(t, got, 1)
		assert.Equal(t, "pkg/a.go", got[0].FilePath)
		require.NotNil(t, got[0].Line)
		assert.Equal(t, 42, *got[0].Line)
		assert.Equal(t, models.SideNew, got[0].Side)
		assert.Equal(t, "pos-sha", got[0].RevisionID)
	})

	t.Run("old line only", func(t *testing.T) {
		note := botNote(1, "Remove this")
		note.Position = &gitlab.NotePosition{
			OldPath: "pkg/a.go",
			OldLine: 7,
		}
		got := convertDiscussions([]*gitlab.Discussion{{ID: "d1", Notes: []*gitlab.Note{note}}}, "head-sha", testBots)
		require.Len(t, got, 1)
		assert.Equal(t, "pkg/a.go", got[0].FilePath)
		assert.Nil(t, got[0].Line)
		require.NotNil(t, got[0].Position)
		assert.Equal(t, 7, *got[0].Position)
		assert.Equal(t, models.SideOld, got[0].Side)
	})

	t.Run("outdated has neither line", func(t *testing.T) {
		note := botNote(1, "Remove this")
		note.Position = &gitlab.NotePosition{NewPath: "pkg/a.go"}
		got := convertDiscussions([]*gitlab.Discussion{{ID: "d1", Notes: []*gitlab.Note{note}}}, "head-sha", testBots)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].Line)
		assert.Nil(t, got[0].Position)
	})
}

func TestConvertDiscussions_RepliedDetection(t *testing.T) {
	bot := botNote(1, "Please fix this")
	reply := humanNote(2, "done in the next commit")
	discussions := []*gitlab.Discussion{{ID: "d1", Notes: []*gitlab.Note{bot, reply}}}

	got := convertDiscussions(discussions, "head-sha", testBots)
	require.Len(t, got, 1)
	assert.True(t, got[0].Replied)
}

func TestConvertDiscussions_SameAuthorFollowupIsNotReply(t *testing.T) {
	discussions := []*gitlab.Discussion{{
		ID:    "d1",
		Notes: []*gitlab.Note{botNote(1, "Please fix this"), botNote(2, "Also this")},
	}}

	got := convertDiscussions(discussions, "head-sha", testBots)
	require.Len(t, got, 2)
	assert.False(t, got[0].Replied)
	assert.False(t, got[1].Replied)
}

func TestConvertDiscussions_ResolvedCarriedOver(t *testing.T) {
	note := botNote(1, "Please fix this")
	note.Resolved = true
	got := convertDiscussions([]*gitlab.Discussion{{ID: "d1", Notes: []*gitlab.Note{note}}}, "head-sha", testBots)
	require.Len(t, got, 1)
	assert.True(t, got[0].Resolved)
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("security/scan", []string{"security/*"}))
	assert.True(t, matchesAny("CodeReview Bot", []string{"codereview"}))
	assert.False(t, matchesAny("lint", []string{"security/*", "review"}))
	assert.False(t, matchesAny("anything", nil))
}

func TestAggregateStates(t *testing.T) {
	st := func(s string) *gitlab.CommitStatus { return &gitlab.CommitStatus{Status: s} }

	assert.Equal(t, models.ReviewerUnknown, aggregateStates(nil))
	assert.Equal(t, models.ReviewerCompleted, aggregateStates([]*gitlab.CommitStatus{st("success"), st("failed")}))
	assert.Equal(t, models.ReviewerPending, aggregateStates([]*gitlab.CommitStatus{st("success"), st("pending")}))
	assert.Equal(t, models.ReviewerInProgress, aggregateStates([]*gitlab.CommitStatus{st("pending"), st("running")}))
}
