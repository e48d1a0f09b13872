package project

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// PoetryLockAnalyzer reads poetry.lock.
type PoetryLockAnalyzer struct{}

func NewPoetryLockAnalyzer() *PoetryLockAnalyzer { return &PoetryLockAnalyzer{} }

func (a *PoetryLockAnalyzer) Name() string { return "poetry.lock" }
func (a *PoetryLockAnalyzer) File() string { return "poetry.lock" }

// poetryLockFile represents the parts of poetry.lock that matter here
type poetryLockFile struct {
	Package  []lockPackage  `toml:"package"`
	Metadata poetryMetadata `toml:"metadata"`
}

type lockPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type poetryMetadata struct {
	LockVersion    string `toml:"lock-version"`
	PythonVersions string `toml:"python-versions"`
	ContentHash    string `toml:"content-hash"`
}

func (a *PoetryLockAnalyzer) Analyze(content string, p *Profile) error {
	var lock poetryLockFile
	if _, err := toml.Decode(content, &lock); err != nil {
		return fmt.Errorf("failed to parse poetry.lock: %w", err)
	}
	p.claim(ToolPoetry)
	if lock.Metadata.PythonVersions != "*" {
		p.setRequiresPython(lock.Metadata.PythonVersions)
	}
	return nil
}

// UvLockAnalyzer reads uv.lock.
type UvLockAnalyzer struct{}

func NewUvLockAnalyzer() *UvLockAnalyzer { return &UvLockAnalyzer{} }

func (a *UvLockAnalyzer) Name() string { return "uv.lock" }
func (a *UvLockAnalyzer) File() string { return "uv.lock" }

type uvLockFile struct {
	Version        int           `toml:"version"`
	RequiresPython string        `toml:"requires-python"`
	Package        []lockPackage `toml:"package"`
}

func (a *UvLockAnalyzer) Analyze(content string, p *Profile) error {
	var lock uvLockFile
	if _, err := toml.Decode(content, &lock); err != nil {
		return fmt.Errorf("failed to parse uv.lock: %w", err)
	}
	p.claim(ToolUv)
	p.setRequiresPython(lock.RequiresPython)
	return nil
}

// PipfileAnalyzer reads Pipfile, which is TOML despite the missing extension.
type PipfileAnalyzer struct{}

func NewPipfileAnalyzer() *PipfileAnalyzer { return &PipfileAnalyzer{} }

func (a *PipfileAnalyzer) Name() string { return "pipfile" }
func (a *PipfileAnalyzer) File() string { return "Pipfile" }

type pipfile struct {
	Requires struct {
		PythonVersion     string `toml:"python_version"`
		PythonFullVersion string `toml:"python_full_version"`
	} `toml:"requires"`
	Packages map[string]any `toml:"packages"`
}

func (a *PipfileAnalyzer) Analyze(content string, p *Profile) error {
	var pf pipfile
	if _, err := toml.Decode(content, &pf); err != nil {
		return fmt.Errorf("failed to parse Pipfile: %w", err)
	}
	p.claim(ToolPipenv)
	switch {
	case pf.Requires.PythonVersion != "":
		p.setRequiresPython("==" + pf.Requires.PythonVersion)
	case pf.Requires.PythonFullVersion != "":
		p.setRequiresPython("==" + pf.Requires.PythonFullVersion)
	}
	return nil
}

// PyprojectAnalyzer reads pyproject.toml. Poetry projects are recognised by a
// [tool.poetry] table or a poetry build backend; uv projects by [tool.uv].
type PyprojectAnalyzer struct{}

func NewPyprojectAnalyzer() *PyprojectAnalyzer { return &PyprojectAnalyzer{} }

func (a *PyprojectAnalyzer) Name() string { return "pyproject" }
func (a *PyprojectAnalyzer) File() string { return "pyproject.toml" }

type pyprojectFile struct {
	Project struct {
		Name           string `toml:"name"`
		RequiresPython string `toml:"requires-python"`
	} `toml:"project"`
	BuildSystem struct {
		BuildBackend string `toml:"build-backend"`
	} `toml:"build-system"`
	Tool struct {
		Poetry *struct {
			Name         string         `toml:"name"`
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
		Uv map[string]any `toml:"uv"`
	} `toml:"tool"`
}

func (a *PyprojectAnalyzer) Analyze(content string, p *Profile) error {
	var pp pyprojectFile
	md, err := toml.Decode(content, &pp)
	if err != nil {
		return fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}

	switch {
	case pp.Tool.Poetry != nil, strings.HasPrefix(pp.BuildSystem.BuildBackend, "poetry"):
		p.claim(ToolPoetry)
	case md.IsDefined("tool", "uv"):
		p.claim(ToolUv)
	}

	p.setName(pp.Project.Name)
	p.setRequiresPython(pp.Project.RequiresPython)
	if pp.Tool.Poetry != nil {
		p.setName(pp.Tool.Poetry.Name)
		// python = "^3.10" lives among the poetry dependencies
		if py, ok := pp.Tool.Poetry.Dependencies["python"].(string); ok {
			p.setRequiresPython(py)
		}
	}
	return nil
}

// RequirementsAnalyzer only records that requirements.txt exists; it carries
// no interpreter constraint.
type RequirementsAnalyzer struct{}

func NewRequirementsAnalyzer() *RequirementsAnalyzer { return &RequirementsAnalyzer{} }

func (a *RequirementsAnalyzer) Name() string { return "requirements" }
func (a *RequirementsAnalyzer) File() string { return "requirements.txt" }

func (a *RequirementsAnalyzer) Analyze(content string, p *Profile) error {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p.claim(ToolPip)
		break
	}
	return sc.Err()
}
