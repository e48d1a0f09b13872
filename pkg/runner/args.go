package runner

import (
	"strconv"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
)

// BuildArgs returns the analysis tool arguments for cfg. Git settings are
// passed in every mode; general, workflow and LLM settings only in advanced
// mode. Workflow options are only passed when workflow generation is on, and
// the provider URL and model only for providers other than itmo.
func BuildArgs(cfg jobconfig.Configuration, outputDir string) []string {
	args := []string{
		"--repository", cfg.RepositoryURL,
		"--mode", string(cfg.Mode),
		"--output", outputDir,
		"--web-mode",
		"--delete-dir",
	}

	args = appendGroup(args, cfg, jobconfig.GroupGit, nil)

	if cfg.AdvancedEnabled() {
		args = appendGroup(args, cfg, jobconfig.GroupGeneral, nil)
		if cfg.Workflows.GenerateWorkflows {
			args = appendGroup(args, cfg, jobconfig.GroupWorkflows, nil)
		}
		args = appendGroup(args, cfg, jobconfig.GroupLLM, func(spec jobconfig.FlagSpec) bool {
			switch spec.Key.Option {
			case "base-url", "model":
				return cfg.LLM.API != "itmo"
			}
			return true
		})
	}

	if cfg.Attachment != nil && cfg.Attachment.Location != "" {
		args = append(args, "--attachment", cfg.Attachment.Location)
	}
	return args
}

func appendGroup(args []string, cfg jobconfig.Configuration, group jobconfig.Group, include func(jobconfig.FlagSpec) bool) []string {
	for _, spec := range jobconfig.Specs() {
		if spec.Key.Group != group {
			continue
		}
		if include != nil && !include(spec) {
			continue
		}
		v, _ := cfg.Value(spec.Key)
		args = appendValue(args, spec, v)
	}
	return args
}

func appendValue(args []string, spec jobconfig.FlagSpec, v any) []string {
	switch val := v.(type) {
	case bool:
		if val {
			args = append(args, spec.Arg)
		}
	case string:
		if val != "" {
			args = append(args, spec.Arg, val)
		}
	case []string:
		if len(val) > 0 {
			args = append(args, spec.Arg)
			args = append(args, val...)
		}
	case int:
		args = append(args, spec.Arg, strconv.Itoa(val))
	case float64:
		args = append(args, spec.Arg, strconv.FormatFloat(val, 'g', -1, 64))
	}
	// nil: optional value not set
	return args
}
