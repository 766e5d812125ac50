package verify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(timeout time.Duration, stopOnFailure bool) *Runner {
	return NewRunner(timeout, stopOnFailure, zerolog.Nop())
}

func TestRun_AllPass(t *testing.T) {
	r := newTestRunner(time.Minute, true)
	report := r.Run(context.Background(), []string{"echo one", "echo two"}, t.TempDir())

	assert.True(t, report.Passed)
	assert.Empty(t, report.FirstFailed)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "one\n", report.Outcomes[0].Stdout)
	assert.Equal(t, "two\n", report.Outcomes[1].Stdout)
}

func TestRun_EmptyListPasses(t *testing.T) {
	r := newTestRunner(time.Minute, true)
	report := r.Run(context.Background(), nil, t.TempDir())

	assert.True(t, report.Passed)
	assert.Empty(t, report.Outcomes)
}

func TestRun_StopOnFailure(t *testing.T) {
	r := newTestRunner(time.Minute, true)
	report := r.Run(context.Background(), []string{"exit 1", "echo ok"}, t.TempDir())

	assert.False(t, report.Passed)
	assert.Equal(t, "exit 1", report.FirstFailed)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, 1, report.Outcomes[0].ExitCode)
}

func TestRun_ContinueOnFailure(t *testing.T) {
	r := newTestRunner(time.Minute, false)
	report := r.Run(context.Background(), []string{"exit 1", "echo ok"}, t.TempDir())

	assert.False(t, report.Passed)
	assert.Equal(t, "exit 1", report.FirstFailed)
	require.Len(t, report.Outcomes, 2)
	assert.False(t, report.Outcomes[0].Passed)
	assert.True(t, report.Outcomes[1].Passed)
}

func TestRun_FirstFailedIsEarliest(t *testing.T) {
	r := newTestRunner(time.Minute, false)
	report := r.Run(context.Background(), []string{"exit 2", "exit 3"}, t.TempDir())

	assert.Equal(t, "exit 2", report.FirstFailed)
	assert.Equal(t, 2, report.Outcomes[0].ExitCode)
	assert.Equal(t, 3, report.Outcomes[1].ExitCode)
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(100*time.Millisecond, true)
	report := r.Run(context.Background(), []string{"sleep 5"}, t.TempDir())

	assert.False(t, report.Passed)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].TimedOut)
	assert.False(t, report.Outcomes[0].Passed)
}

func TestRun_StderrCaptured(t *testing.T) {
	r := newTestRunner(time.Minute, true)
	report := r.Run(context.Background(), []string{"echo oops >&2; exit 1"}, t.TempDir())

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "oops\n", report.Outcomes[0].Stderr)
}
