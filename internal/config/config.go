package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration.
type Config struct {
	GitLab    GitLab     `koanf:"gitlab"`
	Bots      Bots       `koanf:"bots"`
	Reviewers []Reviewer `koanf:"reviewers"`
	Limits    Limits     `koanf:"limits"`
	Poll      Poll       `koanf:"poll"`
	Fix       Fix        `koanf:"fix"`
	Verify    Verify     `koanf:"verify"`
	Git       Git        `koanf:"git"`
	Session   Session    `koanf:"session"`
}

// GitLab holds the connection details for the hosting platform.
type GitLab struct {
	URL     string `koanf:"url"`
	Token   string `koanf:"token"`
	Project string `koanf:"project"`
	MR      int    `koanf:"mr"`
}

// Bots lists the review-bot author identities whose comments are acted on.
type Bots struct {
	Authors []string `koanf:"authors"`
}

// Reviewer describes an external reviewer whose completion status can gate
// loop termination in wait mode.
type Reviewer struct {
	Name          string   `koanf:"name"`
	CheckPatterns []string `koanf:"check_patterns"`
	TriggerPhrase string   `koanf:"trigger_phrase"`
}

// Limits holds the guardrail thresholds.
type Limits struct {
	MaxCycles        int `koanf:"max_cycles"`
	MaxFilesPerCycle int `koanf:"max_files_per_cycle"`
	MaxLinesPerCycle int `koanf:"max_lines_per_cycle"`
}

// Poll controls inter-cycle sleeping and reviewer-completion polling.
type Poll struct {
	Interval         time.Duration `koanf:"interval"`
	Multiplier       float64       `koanf:"multiplier"`
	MaxInterval      time.Duration `koanf:"max_interval"`
	WaitForReviewers bool          `koanf:"wait_for_reviewers"`
}

// Fix configures the fix-application engine.
type Fix struct {
	Engine   string        `koanf:"engine"` // "direct" or "template"
	Command  string        `koanf:"command"`
	Template string        `koanf:"template"`
	Timeout  time.Duration `koanf:"timeout"`
}

// Verify configures the verification command runner.
type Verify struct {
	Commands      []string      `koanf:"commands"`
	Timeout       time.Duration `koanf:"timeout"`
	StopOnFailure bool          `koanf:"stop_on_failure"`
}

// Git configures the revision-control collaborator.
type Git struct {
	AutoRebase     bool   `koanf:"auto_rebase"`
	Remote         string `koanf:"remote"`
	CommitTemplate string `koanf:"commit_template"`
	WorkDir        string `koanf:"work_dir"`
}

// Session configures the state store backend.
type Session struct {
	Backend string `koanf:"backend"` // "file" or "postgres"
	Dir     string `koanf:"dir"`
	DSN     string `koanf:"dsn"`
}

// LoadConfig loads the configuration from a file, layering defaults,
// the TOML file, and REVIEWLOOP_ environment variables.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"limits.max_cycles":          10,
		"limits.max_files_per_cycle": 10,
		"limits.max_lines_per_cycle": 500,
		"poll.interval":              "30s",
		"poll.multiplier":            2.0,
		"poll.max_interval":          "10m",
		"poll.wait_for_reviewers":    true,
		"fix.engine":                 "direct",
		"fix.timeout":                "15m",
		"verify.timeout":             "5m",
		"verify.stop_on_failure":     true,
		"git.auto_rebase":            true,
		"git.remote":                 "origin",
		"git.commit_template":        "fix: apply review feedback (cycle {cycle})",
		"session.backend":            "file",
		"session.dir":                ".reviewloop",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./reviewloop.toml", "$HOME/.reviewloop.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REVIEWLOOP_. Only the
	// first underscore separates the section from the key, so
	// REVIEWLOOP_LIMITS_MAX_CYCLES maps to limits.max_cycles.
	k.Load(env.Provider("REVIEWLOOP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "REVIEWLOOP_")), "_", ".", 1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# ReviewLoop Configuration

[gitlab]
url = "https://gitlab.example.com"
token = "your-gitlab-token"
project = "group/project"
mr = 123

[bots]
authors = ["livereview-bot"]

[[reviewers]]
name = "livereview"
check_patterns = ["livereview/*"]
trigger_phrase = "@livereview review"

[limits]
max_cycles = 10
max_files_per_cycle = 10
max_lines_per_cycle = 500

[poll]
interval = "30s"
multiplier = 2.0
max_interval = "10m"
wait_for_reviewers = true

[fix]
engine = "direct"
command = "aider --yes"
timeout = "15m"

[verify]
commands = ["go build ./...", "go test ./..."]
timeout = "5m"
stop_on_failure = true

[git]
auto_rebase = true
remote = "origin"
commit_template = "fix: apply review feedback (cycle {cycle})"

[session]
backend = "file"
dir = ".reviewloop"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration.
func Validate(config *Config) error {
	if config.GitLab.URL == "" {
		return fmt.Errorf("gitlab url is required")
	}
	if config.GitLab.Token == "" {
		return fmt.Errorf("gitlab token is required")
	}
	if config.GitLab.Project == "" {
		return fmt.Errorf("gitlab project is required")
	}
	if config.GitLab.MR <= 0 {
		return fmt.Errorf("gitlab mr must be a positive merge request iid")
	}

	switch config.Fix.Engine {
	case "direct":
		if config.Fix.Command == "" {
			return fmt.Errorf("fix command is required for the direct engine")
		}
	case "template":
		if config.Fix.Template == "" {
			return fmt.Errorf("fix template is required for the template engine")
		}
	default:
		return fmt.Errorf("unsupported fix engine: %s", config.Fix.Engine)
	}

	switch config.Session.Backend {
	case "file":
		if config.Session.Dir == "" {
			return fmt.Errorf("session dir is required for the file backend")
		}
	case "postgres":
		// DSN may come from DATABASE_URL at open time.
	default:
		return fmt.Errorf("unsupported session backend: %s", config.Session.Backend)
	}

	if config.Limits.MaxCycles <= 0 {
		return fmt.Errorf("limits max_cycles must be positive")
	}
	if config.Poll.Multiplier < 1.0 {
		return fmt.Errorf("poll multiplier must be >= 1.0")
	}
	if config.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if config.Poll.MaxInterval < config.Poll.Interval {
		return fmt.Errorf("poll max_interval must be >= poll interval")
	}

	return nil
}

// CommitMessage renders the commit-message template for a cycle number.
func (g Git) CommitMessage(cycle int) string {
	return strings.ReplaceAll(g.CommitTemplate, "{cycle}", fmt.Sprintf("%d", cycle))
}
