package fixer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/pkg/models"
)

type fakeTree struct {
	files []string
	err   error
}

func (f *fakeTree) ChangedFiles(ctx context.Context) ([]string, error) {
	return f.files, f.err
}

func sampleBatch() []models.FixTask {
	return []models.FixTask{
		{ID: "1", FilePath: "pkg/a.go", StartLine: 10, EndLine: 10, Body: "Remove the debug print"},
		{ID: "2", FilePath: "pkg/a.go", StartLine: 20, EndLine: 24, Body: "Handle the error"},
		{ID: "3", Body: "Please update the changelog", StartLine: 1, EndLine: 1},
	}
}

func TestNew_SelectsStrategy(t *testing.T) {
	tree := &fakeTree{}

	e, err := New(config.Fix{Engine: "direct", Command: "cat"}, tree, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &DirectEngine{}, e)

	e, err = New(config.Fix{Engine: "template", Template: "agent {promptfile}"}, tree, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &TemplateEngine{}, e)
}

func TestNew_Rejections(t *testing.T) {
	tree := &fakeTree{}

	_, err := New(config.Fix{Engine: "direct"}, tree, zerolog.Nop())
	assert.ErrorContains(t, err, "fix.command")

	_, err = New(config.Fix{Engine: "template"}, tree, zerolog.Nop())
	assert.ErrorContains(t, err, "fix.template")

	_, err = New(config.Fix{Engine: "psychic"}, tree, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported fix engine")
}

func TestDirectEngine_FeedsPromptOnStdin(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "prompt.txt")
	tree := &fakeTree{files: []string{"pkg/a.go"}}

	e, err := New(config.Fix{
		Engine:  "direct",
		Command: "cat > " + out,
		Timeout: time.Minute,
	}, tree, zerolog.Nop())
	require.NoError(t, err)

	result, err := e.Apply(context.Background(), sampleBatch(), dir)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"pkg/a.go"}, result.ChangedFiles)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(written), "## pkg/a.go")
	assert.Contains(t, string(written), "Line 10: Remove the debug print")
	assert.Contains(t, string(written), "Lines 20-24: Handle the error")
	assert.Contains(t, string(written), "## General")
}

func TestDirectEngine_CommandFailure(t *testing.T) {
	tree := &fakeTree{}
	e, err := New(config.Fix{Engine: "direct", Command: "echo boom >&2; exit 3"}, tree, zerolog.Nop())
	require.NoError(t, err)

	result, err := e.Apply(context.Background(), sampleBatch(), t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "boom")
}

func TestTemplateEngine_PromptFilePlaceholder(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "copy.txt")
	tree := &fakeTree{files: []string{"pkg/a.go"}}

	e, err := New(config.Fix{
		Engine:   "template",
		Template: "cp {promptfile} " + out,
	}, tree, zerolog.Nop())
	require.NoError(t, err)

	result, err := e.Apply(context.Background(), sampleBatch(), dir)
	require.NoError(t, err)
	assert.True(t, result.Success)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(written), "## pkg/a.go")
}

func TestTemplateEngine_PromptPlaceholder(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "inline.txt")
	tree := &fakeTree{}

	e, err := New(config.Fix{
		Engine:   "template",
		Template: "printf '%s' {prompt} > " + out,
	}, tree, zerolog.Nop())
	require.NoError(t, err)

	_, err = e.Apply(context.Background(), sampleBatch(), dir)
	require.NoError(t, err)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(written), "Remove the debug print")
}

func TestBuildPrompt_DiffContextIncluded(t *testing.T) {
	batch := []models.FixTask{{
		ID: "1", FilePath: "a.go", StartLine: 3, EndLine: 3,
		Body:        "fix this",
		DiffContext: "@@ -1,3 +1,3 @@\n-old\n+new",
	}}
	prompt := BuildPrompt(batch)
	assert.Contains(t, prompt, "```diff")
	assert.Contains(t, prompt, "+new")
}
