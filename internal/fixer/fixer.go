// Package fixer invokes the configured fix-application engine against a
// batch of fix tasks and reports which files it changed.
package fixer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reviewloop/internal/config"
	"github.com/reviewloop/internal/tasks"
	"github.com/reviewloop/pkg/models"
)

// Result is the outcome of one engine invocation.
type Result struct {
	Success      bool
	ChangedFiles []string
	Err          string
}

// Engine applies a batch of fix tasks to the working tree at dir.
type Engine interface {
	Apply(ctx context.Context, batch []models.FixTask, dir string) (*Result, error)
}

// TreeInspector reports uncommitted changes in a working tree. Satisfied by
// the gitops collaborator.
type TreeInspector interface {
	ChangedFiles(ctx context.Context) ([]string, error)
}

// New selects the engine strategy once at construction. Unknown kinds are
// rejected here rather than on every call.
func New(cfg config.Fix, tree TreeInspector, log zerolog.Logger) (Engine, error) {
	log = log.With().Str("component", "fixer").Logger()
	switch cfg.Engine {
	case "direct":
		if cfg.Command == "" {
			return nil, fmt.Errorf("direct engine requires fix.command")
		}
		return &DirectEngine{command: cfg.Command, timeout: cfg.Timeout, tree: tree, log: log}, nil
	case "template":
		if cfg.Template == "" {
			return nil, fmt.Errorf("template engine requires fix.template")
		}
		return &TemplateEngine{template: cfg.Template, timeout: cfg.Timeout, tree: tree, log: log}, nil
	default:
		return nil, fmt.Errorf("unsupported fix engine %q", cfg.Engine)
	}
}

// DirectEngine runs an agent binary and feeds the rendered prompt on stdin.
type DirectEngine struct {
	command string
	timeout time.Duration
	tree    TreeInspector
	log     zerolog.Logger
}

func (e *DirectEngine) Apply(ctx context.Context, batch []models.FixTask, dir string) (*Result, error) {
	prompt := BuildPrompt(batch)

	runCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", e.command)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Info().Int("tasks", len(batch)).Msg("running fix engine")
	if err := cmd.Run(); err != nil {
		return &Result{Err: engineError(err, stderr.String())}, nil
	}
	return e.collect(ctx)
}

func (e *DirectEngine) collect(ctx context.Context) (*Result, error) {
	changed, err := e.tree.ChangedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspecting working tree: %w", err)
	}
	return &Result{Success: true, ChangedFiles: changed}, nil
}

// TemplateEngine renders a command template and runs it through the shell.
// The template honors two placeholders: {prompt} is replaced with the
// shell-quoted prompt text, {promptfile} with the path of a temp file
// holding the prompt.
type TemplateEngine struct {
	template string
	timeout  time.Duration
	tree     TreeInspector
	log      zerolog.Logger
}

func (e *TemplateEngine) Apply(ctx context.Context, batch []models.FixTask, dir string) (*Result, error) {
	prompt := BuildPrompt(batch)

	command := e.template
	if strings.Contains(command, "{promptfile}") {
		f, err := os.CreateTemp("", "reviewloop-prompt-*.md")
		if err != nil {
			return nil, fmt.Errorf("writing prompt file: %w", err)
		}
		defer os.Remove(f.Name())
		if _, err := f.WriteString(prompt); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing prompt file: %w", err)
		}
		f.Close()
		command = strings.ReplaceAll(command, "{promptfile}", f.Name())
	}
	command = strings.ReplaceAll(command, "{prompt}", shellQuote(prompt))

	runCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Info().Int("tasks", len(batch)).Msg("running fix engine")
	if err := cmd.Run(); err != nil {
		return &Result{Err: engineError(err, stderr.String())}, nil
	}

	changed, err := e.tree.ChangedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspecting working tree: %w", err)
	}
	return &Result{Success: true, ChangedFiles: changed}, nil
}

func engineError(err error, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v: %s", err, stderr)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// BuildPrompt renders the task batch into the instruction text handed to
// the engine, grouped per file in first-seen order.
func BuildPrompt(batch []models.FixTask) string {
	var b strings.Builder
	b.WriteString("Apply the following review feedback to the codebase.\n")
	b.WriteString("Make the smallest change that addresses each item.\n\n")

	order, grouped := tasks.GroupByFile(batch)
	for _, path := range order {
		if path == "" {
			b.WriteString("## General\n\n")
		} else {
			fmt.Fprintf(&b, "## %s\n\n", filepath.ToSlash(path))
		}
		for _, task := range grouped[path] {
			if path != "" {
				if task.StartLine == task.EndLine {
					fmt.Fprintf(&b, "- Line %d: %s\n", task.StartLine, strings.TrimSpace(task.Body))
				} else {
					fmt.Fprintf(&b, "- Lines %d-%d: %s\n", task.StartLine, task.EndLine, strings.TrimSpace(task.Body))
				}
			} else {
				fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(task.Body))
			}
			if task.DiffContext != "" {
				fmt.Fprintf(&b, "\n  ```diff\n%s\n  ```\n", indent(task.DiffContext, "  "))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
