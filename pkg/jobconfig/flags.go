package jobconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Group names a settings block of the control panel.
type Group string

const (
	GroupGit       Group = "git"
	GroupGeneral   Group = "general"
	GroupWorkflows Group = "workflows"
	GroupLLM       Group = "llm"
)

// Key identifies a feature flag as (group, option).
type Key struct {
	Group  Group
	Option string
}

func (k Key) String() string {
	return string(k.Group) + "." + k.Option
}

// ParseKey parses "group.option".
func ParseKey(s string) (Key, error) {
	group, option, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || group == "" || option == "" {
		return Key{}, NewValidationError(s, "configuration key must have the form group.option")
	}
	return Key{Group: Group(strings.ToLower(group)), Option: strings.ToLower(option)}, nil
}

// Kind is the value domain of a flag.
type Kind int

const (
	KindBool Kind = iota
	KindString
	KindEnum
	KindList
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindList:
		return "list"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// FlagSpec declares one feature flag: its domain, default and the argument
// name understood by the analysis tool.
type FlagSpec struct {
	Key         Key
	Kind        Kind
	Default     any
	Allowed     []string // enum values, or allowed list elements
	Separator   string   // list separator for string input; empty means whitespace
	Arg         string
	Description string

	get func(*Configuration) any
	set func(*Configuration, any) error
}

// Specs returns the flag table in declaration order.
func Specs() []FlagSpec {
	return slices.Clone(flagSpecs)
}

// Keys returns every known flag key in declaration order.
func Keys() []Key {
	keys := make([]Key, len(flagSpecs))
	for i, spec := range flagSpecs {
		keys[i] = spec.Key
	}
	return keys
}

// LookupSpec returns the spec for key.
func LookupSpec(key Key) (FlagSpec, bool) {
	for _, spec := range flagSpecs {
		if spec.Key == key {
			return spec, true
		}
	}
	return FlagSpec{}, false
}

var flagSpecs = []FlagSpec{
	stringFlag(GroupGit, "branch", "--branch", "", false,
		func(c *Configuration) *string { return &c.Git.Branch },
		"Branch name of the repository (default: repository default branch)"),
	boolFlag(GroupGit, "no-pull-request", "--no-pull-request", false,
		func(c *Configuration) *bool { return &c.Git.NoPullRequest },
		"Do not open a pull request against the target repository"),
	boolFlag(GroupGit, "no-fork", "--no-fork", false,
		func(c *Configuration) *bool { return &c.Git.NoFork },
		"Do not fork the target repository"),

	boolFlag(GroupGeneral, "readme", "--readme", false,
		func(c *Configuration) *bool { return &c.General.Readme },
		"Generate a README.md from repository content and metadata"),
	boolFlag(GroupGeneral, "organize", "--organize", false,
		func(c *Configuration) *bool { return &c.General.Organize },
		"Add standard tests and examples directories if missing"),
	boolFlag(GroupGeneral, "docstring", "--docstring", false,
		func(c *Configuration) *bool { return &c.General.Docstring },
		"Generate docstrings for all Python files"),
	boolFlag(GroupGeneral, "refine-readme", "--refine-readme", false,
		func(c *Configuration) *bool { return &c.General.RefineReadme },
		"Advanced README refinement (needs a capable model)"),
	boolFlag(GroupGeneral, "translate-dirs", "--translate-dirs", false,
		func(c *Configuration) *bool { return &c.General.TranslateDirs },
		"Translate directory names into English"),
	boolFlag(GroupGeneral, "requirements", "--requirements", false,
		func(c *Configuration) *bool { return &c.General.Requirements },
		"Generate a requirements.txt"),
	boolFlag(GroupGeneral, "report", "--report", false,
		func(c *Configuration) *bool { return &c.General.Report },
		"Generate a PDF report with project insights"),
	boolFlag(GroupGeneral, "about", "--about", false,
		func(c *Configuration) *bool { return &c.General.About },
		"Generate the GitHub About section with tags"),
	boolFlag(GroupGeneral, "community-docs", "--community-docs", false,
		func(c *Configuration) *bool { return &c.General.CommunityDocs },
		"Generate Code of Conduct and Contributing guidelines"),
	listFlag(GroupGeneral, "convert-notebooks", "--convert-notebooks", nil, ",", nil,
		func(c *Configuration) *[]string { return &c.General.ConvertNotebooks },
		"Notebook paths to convert to .py (comma separated)"),
	listFlag(GroupGeneral, "translate-readme", "--translate-readme", nil, "", nil,
		func(c *Configuration) *[]string { return &c.General.TranslateReadme },
		"Languages to translate the README into (e.g. Russian Chinese)"),
	enumFlag(GroupGeneral, "ensure-license", "--ensure-license", "", []string{"bsd-3", "mit", "ap2"}, true,
		func(c *Configuration) *string { return &c.General.EnsureLicense },
		"LICENSE file to compile"),

	boolFlag(GroupWorkflows, "generate-workflows", "--generate-workflows", false,
		func(c *Configuration) *bool { return &c.Workflows.GenerateWorkflows },
		"Generate GitHub Actions workflows"),
	listFlag(GroupWorkflows, "python-versions", "--python-versions", []string{"3.8", "3.9", "3.10"}, "",
		[]string{"3.8", "3.9", "3.10", "3.11", "3.12"},
		func(c *Configuration) *[]string { return &c.Workflows.PythonVersions },
		"Python versions to test against"),
	listFlag(GroupWorkflows, "branches", "--branches", nil, "", nil,
		func(c *Configuration) *[]string { return &c.Workflows.Branches },
		"Branches that trigger workflows"),
	stringFlag(GroupWorkflows, "workflows-output-dir", "--workflows-output-dir", ".github/workflows", true,
		func(c *Configuration) *string { return &c.Workflows.OutputDir },
		"Directory for generated workflow files"),
	boolFlag(GroupWorkflows, "include-tests", "--include-tests", true,
		func(c *Configuration) *bool { return &c.Workflows.IncludeTests },
		"Include the unit tests workflow"),
	boolFlag(GroupWorkflows, "include-pypi", "--include-pypi", false,
		func(c *Configuration) *bool { return &c.Workflows.IncludePyPI },
		"Include the PyPI publish workflow"),
	boolFlag(GroupWorkflows, "include-codecov", "--include-codecov", true,
		func(c *Configuration) *bool { return &c.Workflows.IncludeCodecov },
		"Include a Codecov step in the tests workflow"),
	boolFlag(GroupWorkflows, "include-black", "--include-black", true,
		func(c *Configuration) *bool { return &c.Workflows.IncludeBlack },
		"Include the Black formatter workflow"),
	boolFlag(GroupWorkflows, "include-pep8", "--include-pep8", true,
		func(c *Configuration) *bool { return &c.Workflows.IncludePEP8 },
		"Include the PEP 8 compliance workflow"),
	boolFlag(GroupWorkflows, "codecov-token", "--codecov-token", false,
		func(c *Configuration) *bool { return &c.Workflows.CodecovToken },
		"Use a Codecov token for coverage upload"),
	boolFlag(GroupWorkflows, "include-autopep8", "--include-autopep8", false,
		func(c *Configuration) *bool { return &c.Workflows.IncludeAutopep8 },
		"Include the autopep8 formatter workflow"),
	boolFlag(GroupWorkflows, "include-fix-pep8", "--include-fix-pep8", false,
		func(c *Configuration) *bool { return &c.Workflows.IncludeFixPEP8 },
		"Include the /fix-pep8 command workflow"),
	enumFlag(GroupWorkflows, "pep8-tool", "--pep8-tool", "flake8", []string{"flake8", "pylint"}, false,
		func(c *Configuration) *string { return &c.Workflows.PEP8Tool },
		"Tool used for PEP 8 checking"),
	boolFlag(GroupWorkflows, "use-poetry", "--use-poetry", false,
		func(c *Configuration) *bool { return &c.Workflows.UsePoetry },
		"Use Poetry for packaging"),

	enumFlag(GroupLLM, "api", "--api", "itmo", []string{"itmo", "llama", "openai", "ollama"}, false,
		func(c *Configuration) *string { return &c.LLM.API },
		"LLM API provider"),
	stringFlag(GroupLLM, "base-url", "--base-url", "https://api.openai.com/v1", true,
		func(c *Configuration) *string { return &c.LLM.BaseURL },
		"Base URL of an OpenAI-compatible provider"),
	stringFlag(GroupLLM, "model", "--model", "gpt-3.5-turbo", true,
		func(c *Configuration) *string { return &c.LLM.Model },
		"Model name"),
	intFlag(GroupLLM, "max-tokens", "--max-tokens", 4096, 1,
		func(c *Configuration) *int { return &c.LLM.MaxTokens },
		"Maximum number of tokens per response"),
	floatFlag(GroupLLM, "temperature", "--temperature", 0, 1,
		func(c *Configuration) **float64 { return &c.LLM.Temperature },
		"Sampling temperature (0 deterministic, 1 creative)"),
	floatFlag(GroupLLM, "top-p", "--top-p", 0, 1,
		func(c *Configuration) **float64 { return &c.LLM.TopP },
		"Nucleus sampling probability"),
}

func boolFlag(g Group, option, arg string, def bool, field func(*Configuration) *bool, desc string) FlagSpec {
	return FlagSpec{
		Key: Key{Group: g, Option: option}, Kind: KindBool, Default: def, Arg: arg, Description: desc,
		get: func(c *Configuration) any { return *field(c) },
		set: func(c *Configuration, v any) error {
			b, err := toBool(v)
			if err != nil {
				return err
			}
			*field(c) = b
			return nil
		},
	}
}

func stringFlag(g Group, option, arg, def string, required bool, field func(*Configuration) *string, desc string) FlagSpec {
	return FlagSpec{
		Key: Key{Group: g, Option: option}, Kind: KindString, Default: def, Arg: arg, Description: desc,
		get: func(c *Configuration) any { return *field(c) },
		set: func(c *Configuration, v any) error {
			s, err := toString(v)
			if err != nil {
				return err
			}
			s = strings.TrimSpace(s)
			if required && s == "" {
				return fmt.Errorf("must not be empty")
			}
			*field(c) = s
			return nil
		},
	}
}

func enumFlag(g Group, option, arg, def string, allowed []string, optional bool, field func(*Configuration) *string, desc string) FlagSpec {
	return FlagSpec{
		Key: Key{Group: g, Option: option}, Kind: KindEnum, Default: def, Allowed: allowed, Arg: arg, Description: desc,
		get: func(c *Configuration) any { return *field(c) },
		set: func(c *Configuration, v any) error {
			if v == nil && optional {
				*field(c) = ""
				return nil
			}
			s, err := toString(v)
			if err != nil {
				return err
			}
			s = strings.ToLower(strings.TrimSpace(s))
			if optional && (s == "" || s == "none") {
				*field(c) = ""
				return nil
			}
			if !slices.Contains(allowed, s) {
				return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
			}
			*field(c) = s
			return nil
		},
	}
}

func listFlag(g Group, option, arg string, def []string, sep string, allowed []string, field func(*Configuration) *[]string, desc string) FlagSpec {
	return FlagSpec{
		Key: Key{Group: g, Option: option}, Kind: KindList, Default: def, Allowed: allowed, Separator: sep, Arg: arg, Description: desc,
		get: func(c *Configuration) any { return cloneStrings(*field(c)) },
		set: func(c *Configuration, v any) error {
			list, err := toList(v, sep)
			if err != nil {
				return err
			}
			if len(allowed) > 0 {
				for _, item := range list {
					if !slices.Contains(allowed, item) {
						return fmt.Errorf("value %q not allowed (allowed: %s)", item, strings.Join(allowed, ", "))
					}
				}
			}
			*field(c) = list
			return nil
		},
	}
}

func intFlag(g Group, option, arg string, def, minimum int, field func(*Configuration) *int, desc string) FlagSpec {
	return FlagSpec{
		Key: Key{Group: g, Option: option}, Kind: KindInt, Default: def, Arg: arg, Description: desc,
		get: func(c *Configuration) any { return *field(c) },
		set: func(c *Configuration, v any) error {
			n, err := toInt(v)
			if err != nil {
				return err
			}
			if n < minimum {
				return fmt.Errorf("must be >= %d", minimum)
			}
			*field(c) = n
			return nil
		},
	}
}

// floatFlag declares an optional probability-like value; nil means unset.
func floatFlag(g Group, option, arg string, lo, hi float64, field func(*Configuration) **float64, desc string) FlagSpec {
	return FlagSpec{
		Key: Key{Group: g, Option: option}, Kind: KindFloat, Default: nil, Arg: arg, Description: desc,
		get: func(c *Configuration) any {
			if p := *field(c); p != nil {
				return *p
			}
			return nil
		},
		set: func(c *Configuration, v any) error {
			f, err := toFloat(v)
			if err != nil {
				return err
			}
			if f != nil && (*f < lo || *f > hi) {
				return fmt.Errorf("must be between %g and %g", lo, hi)
			}
			*field(c) = f
			return nil
		},
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("must be a boolean, got %q", t)
		}
		return b, nil
	default:
		return false, fmt.Errorf("must be a boolean, got %T", v)
	}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("must be a string, got %T", v)
	}
}

func toList(v any, sep string) ([]string, error) {
	var parts []string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		parts = t
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list items must be strings, got %T", item)
			}
			parts = append(parts, s)
		}
	case string:
		if sep == "" {
			parts = strings.Fields(t)
		} else {
			parts = strings.Split(t, sep)
		}
	default:
		return nil, fmt.Errorf("must be a list, got %T", v)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("must be an integer, got %g", t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", t.String())
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("must be an integer, got %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
}

func toFloat(v any) (*float64, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number, got %q", t.String())
		}
		f = parsed
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "" || s == "none" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number, got %q", t)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("must be a number, got %T", v)
	}
	return &f, nil
}
