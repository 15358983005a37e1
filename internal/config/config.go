package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/clipguard/internal/analyzer"
	"github.com/ivlev/clipguard/internal/planner"
)

// ErrInvalidConfig is returned for settings that cannot start a scan.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrorPolicy decides what a backend failure does to the batch.
type ErrorPolicy string

const (
	PolicyAbort ErrorPolicy = "abort"
	PolicySkip  ErrorPolicy = "skip"
)

type Config struct {
	SrcDir      string
	DstDir      string
	ProfilePath string
	Profile     *Profile
	Prompt      string

	Strength planner.Strength
	Cut      int
	Keep     bool
	Why      bool
	Verbose  bool

	Backend string
	BaseURL string
	Model   string
	Timeout time.Duration
	OnError ErrorPolicy

	MaxSide     int
	SkipBlank   string // blank-region detector variant; empty scans every region
	DPI         int
	PDF         bool
	PlanOnly    bool
	ShowStats   bool
	MetricsPath string
	DBPath      string
	LogJSON     bool

	BuildVersion string
}

// Defaults mirrors the command line defaults.
func Defaults() Config {
	return Config{
		ProfilePath: "nsfw.conf",
		Strength:    planner.StrengthGrid,
		Cut:         50,
		Backend:     "ollama",
		Timeout:     5 * time.Minute,
		OnError:     PolicyAbort,
		DPI:         150,
	}
}

// Choices is the size of the valid choice range.
func (c *Config) Choices() int {
	return c.Profile.Choices()
}

// LedgerPath is the CSV result file inside the destination.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DstDir, fmt.Sprintf("result-%d-%d.csv", c.Strength, c.Cut))
}

// WhyPath is the rationale log inside the destination.
func (c *Config) WhyPath() string {
	return filepath.Join(c.DstDir, "why.txt")
}

// PlanPath is where -plan-only writes its YAML.
func (c *Config) PlanPath() string {
	return filepath.Join(c.DstDir, fmt.Sprintf("plan-%d-%d.yaml", c.Strength, c.Cut))
}

// ClipDir holds retained clips.
func (c *Config) ClipDir() string {
	return filepath.Join(c.DstDir, "clips")
}

// Role of the prompt message; "user" unless the profile says otherwise.
func (c *Config) Role() string {
	if r := strings.TrimSpace(c.Profile.MsgTemplate.Role); r != "" {
		return r
	}
	return "user"
}

// Builder collects raw settings; Build validates them into a Config that
// is never modified afterwards.
type Builder struct {
	draft    Config
	strength int
	policy   string
}

func NewBuilder() *Builder {
	d := Defaults()
	return &Builder{draft: d, strength: int(d.Strength), policy: string(d.OnError)}
}

func (b *Builder) Dirs(src, dst string) *Builder {
	b.draft.SrcDir, b.draft.DstDir = src, dst
	return b
}

func (b *Builder) Profile(path string, p *Profile) *Builder {
	b.draft.ProfilePath, b.draft.Profile = path, p
	return b
}

func (b *Builder) Strength(n int) *Builder {
	b.strength = n
	return b
}

func (b *Builder) Cut(n int) *Builder {
	b.draft.Cut = n
	return b
}

func (b *Builder) Flags(keep, why, verbose bool) *Builder {
	b.draft.Keep, b.draft.Why, b.draft.Verbose = keep, why, verbose
	return b
}

func (b *Builder) Backend(name, url, model string, timeout time.Duration) *Builder {
	b.draft.Backend, b.draft.BaseURL, b.draft.Model = name, url, model
	if timeout > 0 {
		b.draft.Timeout = timeout
	}
	return b
}

func (b *Builder) OnError(policy string) *Builder {
	b.policy = policy
	return b
}

// Apply sets the remaining optional fields.
func (b *Builder) Apply(fn func(*Config)) *Builder {
	fn(&b.draft)
	return b
}

func (b *Builder) Build() (*Config, error) {
	c := b.draft

	if strings.TrimSpace(c.SrcDir) == "" {
		return nil, fmt.Errorf("%w: source directory is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.DstDir) == "" {
		return nil, fmt.Errorf("%w: destination directory is required", ErrInvalidConfig)
	}

	s, err := planner.ParseStrength(b.strength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.Strength = s

	if c.Cut < 0 {
		return nil, fmt.Errorf("%w: cut must be >= 0, got %d", ErrInvalidConfig, c.Cut)
	}
	if c.MaxSide < 0 {
		return nil, fmt.Errorf("%w: max-side must be >= 0, got %d", ErrInvalidConfig, c.MaxSide)
	}

	if c.SkipBlank != "" {
		if _, err := analyzer.NewDetector(c.SkipBlank); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	switch ErrorPolicy(b.policy) {
	case PolicyAbort, PolicySkip:
		c.OnError = ErrorPolicy(b.policy)
	default:
		return nil, fmt.Errorf("%w: unknown error policy %q (abort|skip)", ErrInvalidConfig, b.policy)
	}

	if c.Profile == nil {
		return nil, fmt.Errorf("%w: no profile loaded", ErrInvalidConfig)
	}
	if len(c.Profile.Rules) == 0 {
		return nil, fmt.Errorf("%w: profile has no rules", ErrInvalidConfig)
	}
	if c.Profile.Instruct == "" || c.Profile.ChoicePhrase == "" {
		return nil, fmt.Errorf("%w: profile needs instruct and choice_phrase", ErrInvalidConfig)
	}

	c.Prompt, err = c.Profile.RenderPrompt(c.Keep)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Model == "" {
		c.Model = c.Profile.Pretrained
	}

	return &c, nil
}
