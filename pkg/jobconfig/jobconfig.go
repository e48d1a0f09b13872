// Package jobconfig turns raw, possibly partial control-panel input into a
// validated, immutable Configuration for a single analysis run.
//
// Every feature flag is addressed by a (group, option) Key and has a fixed
// default; see Specs for the full table. Mode gating (which flags are passed
// to the tool) is not applied here: a Configuration always carries every
// flag, and the runner decides what reaches the command line.
package jobconfig

import (
	"fmt"
	"sort"
	"strings"
)

// Mode selects which feature set applies to a run.
type Mode string

const (
	// ModeBasic runs a minimal predefined set of tasks.
	ModeBasic Mode = "basic"
	// ModeAdvanced runs all enabled features from the configuration.
	ModeAdvanced Mode = "advanced"
	// ModeAuto lets the tool decide based on repository analysis.
	ModeAuto Mode = "auto"
)

// Modes returns the supported modes.
func Modes() []Mode {
	return []Mode{ModeBasic, ModeAdvanced, ModeAuto}
}

// ParseMode parses a mode name case-insensitively. An empty string yields
// ModeBasic, the form default.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBasic:
		return ModeBasic, nil
	case ModeAdvanced:
		return ModeAdvanced, nil
	case ModeAuto:
		return ModeAuto, nil
	default:
		return "", NewValidationError("mode", fmt.Sprintf("unsupported mode %q (supported: basic, advanced, auto)", s))
	}
}

// AttachmentKind is the way an attachment was supplied.
type AttachmentKind string

const (
	// AttachmentURL is a pasted URL.
	AttachmentURL AttachmentKind = "url"
	// AttachmentFile is an uploaded file persisted to the session temp dir.
	AttachmentFile AttachmentKind = "file"
)

// AttachmentRef points at a resolved attachment: a URL, or the path of a
// temporary file holding uploaded bytes.
type AttachmentRef struct {
	Kind     AttachmentKind `json:"kind" yaml:"kind" validate:"oneof=url file"`
	Location string         `json:"location" yaml:"location" validate:"required"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
}

// GitSettings are honored in every mode.
type GitSettings struct {
	Branch        string `json:"branch" yaml:"branch" flag:"git.branch"`
	NoPullRequest bool   `json:"noPullRequest" yaml:"noPullRequest" flag:"git.no-pull-request"`
	NoFork        bool   `json:"noFork" yaml:"noFork" flag:"git.no-fork"`
}

// GeneralSettings select the repository improvements to run (advanced mode).
type GeneralSettings struct {
	Readme           bool     `json:"readme" yaml:"readme" flag:"general.readme"`
	Organize         bool     `json:"organize" yaml:"organize" flag:"general.organize"`
	Docstring        bool     `json:"docstring" yaml:"docstring" flag:"general.docstring"`
	RefineReadme     bool     `json:"refineReadme" yaml:"refineReadme" flag:"general.refine-readme"`
	TranslateDirs    bool     `json:"translateDirs" yaml:"translateDirs" flag:"general.translate-dirs"`
	Requirements     bool     `json:"requirements" yaml:"requirements" flag:"general.requirements"`
	Report           bool     `json:"report" yaml:"report" flag:"general.report"`
	About            bool     `json:"about" yaml:"about" flag:"general.about"`
	CommunityDocs    bool     `json:"communityDocs" yaml:"communityDocs" flag:"general.community-docs"`
	ConvertNotebooks []string `json:"convertNotebooks" yaml:"convertNotebooks" flag:"general.convert-notebooks"`
	TranslateReadme  []string `json:"translateReadme" yaml:"translateReadme" flag:"general.translate-readme"`
	EnsureLicense    string   `json:"ensureLicense" yaml:"ensureLicense" flag:"general.ensure-license" validate:"omitempty,oneof=bsd-3 mit ap2"`
}

// WorkflowSettings control GitHub Actions generation (advanced mode).
type WorkflowSettings struct {
	GenerateWorkflows bool     `json:"generateWorkflows" yaml:"generateWorkflows" flag:"workflows.generate-workflows"`
	PythonVersions    []string `json:"pythonVersions" yaml:"pythonVersions" flag:"workflows.python-versions" validate:"dive,oneof=3.8 3.9 3.10 3.11 3.12"`
	Branches          []string `json:"branches" yaml:"branches" flag:"workflows.branches"`
	OutputDir         string   `json:"outputDir" yaml:"outputDir" flag:"workflows.workflows-output-dir" validate:"required"`
	IncludeTests      bool     `json:"includeTests" yaml:"includeTests" flag:"workflows.include-tests"`
	IncludePyPI       bool     `json:"includePypi" yaml:"includePypi" flag:"workflows.include-pypi"`
	IncludeCodecov    bool     `json:"includeCodecov" yaml:"includeCodecov" flag:"workflows.include-codecov"`
	IncludeBlack      bool     `json:"includeBlack" yaml:"includeBlack" flag:"workflows.include-black"`
	IncludePEP8       bool     `json:"includePep8" yaml:"includePep8" flag:"workflows.include-pep8"`
	CodecovToken      bool     `json:"codecovToken" yaml:"codecovToken" flag:"workflows.codecov-token"`
	IncludeAutopep8   bool     `json:"includeAutopep8" yaml:"includeAutopep8" flag:"workflows.include-autopep8"`
	IncludeFixPEP8    bool     `json:"includeFixPep8" yaml:"includeFixPep8" flag:"workflows.include-fix-pep8"`
	PEP8Tool          string   `json:"pep8Tool" yaml:"pep8Tool" flag:"workflows.pep8-tool" validate:"oneof=flake8 pylint"`
	UsePoetry         bool     `json:"usePoetry" yaml:"usePoetry" flag:"workflows.use-poetry"`
}

// LLMSettings configure the language model used by the tool (advanced mode).
type LLMSettings struct {
	API         string   `json:"api" yaml:"api" flag:"llm.api" validate:"oneof=itmo llama openai ollama"`
	BaseURL     string   `json:"baseUrl" yaml:"baseUrl" flag:"llm.base-url" validate:"required,url"`
	Model       string   `json:"model" yaml:"model" flag:"llm.model" validate:"required"`
	MaxTokens   int      `json:"maxTokens" yaml:"maxTokens" flag:"llm.max-tokens" validate:"min=1"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" flag:"llm.temperature" validate:"omitempty,min=0,max=1"`
	TopP        *float64 `json:"topP,omitempty" yaml:"topP,omitempty" flag:"llm.top-p" validate:"omitempty,min=0,max=1"`
}

// Configuration is the frozen input of one run. Build it with Build; use
// Clone before handing it to another goroutine if the caller keeps a copy.
type Configuration struct {
	RepositoryURL string           `json:"repositoryUrl" yaml:"repositoryUrl" flag:"repositoryUrl" validate:"required,repourl"`
	Mode          Mode             `json:"mode" yaml:"mode" flag:"mode" validate:"oneof=basic advanced auto"`
	Git           GitSettings      `json:"git" yaml:"git"`
	General       GeneralSettings  `json:"general" yaml:"general"`
	Workflows     WorkflowSettings `json:"workflows" yaml:"workflows"`
	LLM           LLMSettings      `json:"llm" yaml:"llm"`
	Attachment    *AttachmentRef   `json:"attachment,omitempty" yaml:"attachment,omitempty" flag:"attachment"`

	// APIKey is handed to the tool through its environment and never
	// serialized.
	APIKey string `json:"-" yaml:"-"`
}

// RawInputs is what a presentation layer collects from the user. Flag
// values are keyed "group.option" and may be native values (as decoded from
// JSON) or strings (as typed on a command line).
type RawInputs struct {
	RepositoryURL string
	Mode          string
	Flags         map[string]any
	Attachment    *AttachmentRef
	APIKey        string
}

// Defaults returns a Configuration holding the default of every flag and no
// repository.
func Defaults() Configuration {
	cfg := Configuration{Mode: ModeBasic}
	for _, spec := range flagSpecs {
		// Defaults are well-typed by construction.
		if err := spec.set(&cfg, spec.Default); err != nil {
			panic(fmt.Sprintf("jobconfig: bad default for %s: %v", spec.Key, err))
		}
	}
	return cfg
}

// Build validates raw and returns the resulting Configuration. Flags that
// were not supplied keep their defaults. Failures are *ValidationError.
func Build(raw RawInputs) (Configuration, error) {
	cfg := Defaults()

	cfg.RepositoryURL = strings.TrimSpace(raw.RepositoryURL)
	if cfg.RepositoryURL == "" {
		return Configuration{}, NewValidationError("repositoryUrl", "is required")
	}

	mode, err := ParseMode(raw.Mode)
	if err != nil {
		return Configuration{}, err
	}
	cfg.Mode = mode

	// Apply flags in a stable order so the first reported error is deterministic.
	names := make([]string, 0, len(raw.Flags))
	for name := range raw.Flags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key, err := ParseKey(name)
		if err != nil {
			return Configuration{}, err
		}
		spec, ok := LookupSpec(key)
		if !ok {
			return Configuration{}, NewValidationError(name, "unknown configuration key")
		}
		if err := spec.set(&cfg, raw.Flags[name]); err != nil {
			return Configuration{}, NewValidationError(name, err.Error())
		}
	}

	if raw.Attachment != nil {
		ref := *raw.Attachment
		cfg.Attachment = &ref
	}
	cfg.APIKey = raw.APIKey

	if err := validateStruct(cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Value returns the current value of the flag identified by key.
func (c Configuration) Value(key Key) (any, bool) {
	spec, ok := LookupSpec(key)
	if !ok {
		return nil, false
	}
	return spec.get(&c), true
}

// Values returns every known flag with its value. No key is ever missing.
func (c Configuration) Values() map[Key]any {
	out := make(map[Key]any, len(flagSpecs))
	for _, spec := range flagSpecs {
		out[spec.Key] = spec.get(&c)
	}
	return out
}

// Clone returns a deep copy, detaching slices and pointers from c.
func (c Configuration) Clone() Configuration {
	cp := c
	cp.General.ConvertNotebooks = cloneStrings(c.General.ConvertNotebooks)
	cp.General.TranslateReadme = cloneStrings(c.General.TranslateReadme)
	cp.Workflows.PythonVersions = cloneStrings(c.Workflows.PythonVersions)
	cp.Workflows.Branches = cloneStrings(c.Workflows.Branches)
	cp.LLM.Temperature = cloneFloat(c.LLM.Temperature)
	cp.LLM.TopP = cloneFloat(c.LLM.TopP)
	if c.Attachment != nil {
		ref := *c.Attachment
		cp.Attachment = &ref
	}
	return cp
}

// AdvancedEnabled reports whether advanced-only flags apply to this run.
func (c Configuration) AdvancedEnabled() bool {
	return c.Mode == ModeAdvanced
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
