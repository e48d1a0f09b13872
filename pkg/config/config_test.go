package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromFile(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name       string
		file       string
		content    string
		wantErr    string
		validateFn func(*testing.T, *Config)
	}{
		{
			name: "toml with every section",
			file: "config.toml",
			content: `
[paths]
tmp = "` + filepath.ToSlash(tmp) + `"
log = "panel.log"

[tool]
binary = "/opt/osa/bin/osa_tool"
args = ["--no-color"]
timeout = "45m"
report-patterns = ["*.pdf", "*.md"]
summary-file = "about.md"

[server]
listen = ":9090"
`,
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.Paths.Tmp != filepath.ToSlash(tmp) {
					t.Errorf("Expected tmp %q, got %q", tmp, cfg.Paths.Tmp)
				}
				if cfg.Paths.Log != "panel.log" {
					t.Errorf("Expected log 'panel.log', got '%s'", cfg.Paths.Log)
				}
				if cfg.Tool.Binary != "/opt/osa/bin/osa_tool" {
					t.Errorf("Unexpected binary '%s'", cfg.Tool.Binary)
				}
				if len(cfg.Tool.Args) != 1 || cfg.Tool.Args[0] != "--no-color" {
					t.Errorf("Unexpected args %v", cfg.Tool.Args)
				}
				if cfg.Tool.TimeoutDuration() != 45*time.Minute {
					t.Errorf("Expected 45m timeout, got %s", cfg.Tool.TimeoutDuration())
				}
				if len(cfg.Tool.ReportPatterns) != 2 {
					t.Errorf("Expected 2 report patterns, got %v", cfg.Tool.ReportPatterns)
				}
				if cfg.Tool.SummaryFile != "about.md" {
					t.Errorf("Unexpected summary file '%s'", cfg.Tool.SummaryFile)
				}
				if cfg.Server.Listen != ":9090" {
					t.Errorf("Unexpected listen '%s'", cfg.Server.Listen)
				}
				if cfg.Server.MaxSessions != DefaultMaxSessions {
					t.Errorf("Expected default max sessions, got %d", cfg.Server.MaxSessions)
				}
			},
		},
		{
			name: "yaml applies defaults",
			file: "config.yaml",
			content: `
tool:
  args: ["-v"]
server:
  max-sessions: 3
`,
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.Tool.Binary != DefaultBinary {
					t.Errorf("Expected default binary, got '%s'", cfg.Tool.Binary)
				}
				if cfg.Tool.SummaryFile != DefaultSummaryFile {
					t.Errorf("Expected default summary file, got '%s'", cfg.Tool.SummaryFile)
				}
				if len(cfg.Tool.ReportPatterns) != 1 || cfg.Tool.ReportPatterns[0] != "*.pdf" {
					t.Errorf("Expected default report pattern, got %v", cfg.Tool.ReportPatterns)
				}
				if cfg.Tool.TimeoutDuration() != 0 {
					t.Errorf("Expected no timeout, got %s", cfg.Tool.TimeoutDuration())
				}
				if cfg.Server.Listen != DefaultListen {
					t.Errorf("Expected default listen, got '%s'", cfg.Server.Listen)
				}
				if cfg.Server.MaxSessions != 3 {
					t.Errorf("Expected 3 max sessions, got %d", cfg.Server.MaxSessions)
				}
				if cfg.TmpDir() != os.TempDir() {
					t.Errorf("Expected system temp dir, got '%s'", cfg.TmpDir())
				}
			},
		},
		{
			name:    "invalid timeout",
			file:    "bad-timeout.toml",
			content: "[tool]\ntimeout = \"soon\"\n",
			wantErr: "invalid timeout",
		},
		{
			name:    "negative timeout",
			file:    "neg-timeout.yml",
			content: "tool:\n  timeout: -5s\n",
			wantErr: "must not be negative",
		},
		{
			name:    "missing tmp directory",
			file:    "missing-tmp.toml",
			content: "[paths]\ntmp = \"" + filepath.ToSlash(filepath.Join(tmp, "nope")) + "\"\n",
			wantErr: "tmp directory",
		},
		{
			name:    "bad report pattern",
			file:    "pattern.toml",
			content: "[tool]\nreport-patterns = [\"[\"]\n",
			wantErr: "report pattern",
		},
		{
			name:    "summary file with directory",
			file:    "summary.toml",
			content: "[tool]\nsummary-file = \"" + "sub" + string(filepath.Separator) + "about.md\"\n",
			wantErr: "summary-file",
		},
		{
			name:    "invalid toml",
			file:    "broken.toml",
			content: "[tool\nbinary = ",
			wantErr: "failed to parse config file",
		},
		{
			name:    "invalid yaml",
			file:    "broken.yaml",
			content: "tool: [unclosed",
			wantErr: "failed to parse config file",
		},
		{
			name:    "unsupported extension",
			file:    "config.json",
			content: "{}",
			wantErr: "unsupported config file type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromFile failed: %v", err)
			}
			if tt.validateFn != nil {
				tt.validateFn(t, cfg)
			}
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected read error, got %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Tool.Binary != DefaultBinary || cfg.Server.Listen != DefaultListen {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
}

func TestSetTimeout(t *testing.T) {
	cfg := Default()
	cfg.Tool.SetTimeout(90 * time.Second)
	if cfg.Tool.Timeout != "1m30s" || cfg.Tool.TimeoutDuration() != 90*time.Second {
		t.Errorf("Unexpected timeout %q / %s", cfg.Tool.Timeout, cfg.Tool.TimeoutDuration())
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults failed: %v", err)
	}
	if cfg.Tool.TimeoutDuration() != 90*time.Second {
		t.Errorf("Timeout lost after re-applying defaults: %s", cfg.Tool.TimeoutDuration())
	}

	cfg.Tool.SetTimeout(0)
	if cfg.Tool.Timeout != "" || cfg.Tool.TimeoutDuration() != 0 {
		t.Errorf("Expected cleared timeout, got %q", cfg.Tool.Timeout)
	}
}
