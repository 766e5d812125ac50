// Package gitops wraps the git CLI for the repository the fix engine edits.
// Every operation shells out to git with the working directory pinned, so
// the loop never depends on the process CWD.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Git runs git commands against a single working tree.
type Git struct {
	dir    string
	remote string
	log    zerolog.Logger
}

// New builds a Git collaborator for the working tree at dir. Remote defaults
// to origin when empty.
func New(dir, remote string, log zerolog.Logger) *Git {
	if remote == "" {
		remote = "origin"
	}
	return &Git{
		dir:    dir,
		remote: remote,
		log:    log.With().Str("component", "gitops").Logger(),
	}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (g *Git) IsClean(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// IsUpToDate reports whether HEAD matches the upstream branch head. It
// fetches the remote first so the comparison is against the true remote
// state, not a stale ref.
func (g *Git) IsUpToDate(ctx context.Context) (bool, error) {
	if _, err := g.run(ctx, "fetch", g.remote); err != nil {
		return false, err
	}
	local, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return false, err
	}
	remote, err := g.run(ctx, "rev-parse", "@{upstream}")
	if err != nil {
		return false, err
	}
	return local == remote, nil
}

// Rebase replays local commits on top of the upstream branch.
func (g *Git) Rebase(ctx context.Context) error {
	out, err := g.run(ctx, "rebase", "@{upstream}")
	if err != nil {
		// A conflicted rebase leaves the tree mid-rebase; abort so the
		// loop sees a clean tree and can report the failure.
		if _, abortErr := g.run(ctx, "rebase", "--abort"); abortErr != nil {
			g.log.Warn().Err(abortErr).Msg("rebase abort failed")
		}
		return err
	}
	g.log.Debug().Str("output", out).Msg("rebased onto upstream")
	return nil
}

// HeadRevision returns the full SHA of HEAD.
func (g *Git) HeadRevision(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// ChangedFiles lists paths with uncommitted modifications, including
// untracked files.
func (g *Git) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		// Porcelain lines are "XY path"; renames are "XY old -> new".
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		files = append(files, path)
	}
	return files, nil
}

// StageCommitPush stages everything, commits with the given message, pushes
// to the remote, and returns the new HEAD revision.
func (g *Git) StageCommitPush(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	revision, err := g.HeadRevision(ctx)
	if err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "push", g.remote, "HEAD"); err != nil {
		return "", err
	}
	g.log.Info().Str("revision", revision).Msg("pushed fix commit")
	return revision, nil
}
