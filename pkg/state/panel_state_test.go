package state

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
)

// isolateConfigDir points the user config directory at a temp dir.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	return dir
}

func TestDefaultPanelStatePath(t *testing.T) {
	dir := isolateConfigDir(t)
	want := filepath.Join(dir, "osapanel", "panel_state.yaml")
	if got := DefaultPanelStatePath(); got != want {
		t.Errorf("DefaultPanelStatePath() = %q, want %q", got, want)
	}
}

func TestLoadPanelState_MissingFileYieldsDefaults(t *testing.T) {
	isolateConfigDir(t)
	st, err := LoadPanelState("")
	if err != nil {
		t.Fatalf("LoadPanelState failed: %v", err)
	}
	if st.Mode != "basic" || st.StateVersion != CurrentStateVersion {
		t.Errorf("unexpected defaults: %+v", st)
	}
}

func TestLoadPanelState_RejectsOutsidePath(t *testing.T) {
	isolateConfigDir(t)
	if _, err := LoadPanelState("/nonexistent/path/to/state.yaml"); err == nil {
		t.Fatal("expected error for path outside config dir")
	}
	if err := SavePanelState(NewDefaultPanelState(), "/nonexistent/state.yaml"); err == nil {
		t.Fatal("expected error saving outside config dir")
	}
}

func TestSaveAndLoadPanelState(t *testing.T) {
	isolateConfigDir(t)

	cfg, err := jobconfig.Build(jobconfig.RawInputs{
		RepositoryURL: "https://github.com/aimclub/OSA",
		Mode:          "advanced",
		Flags: map[string]any{
			"general.readme":            true,
			"workflows.python-versions": "3.10 3.11",
			"llm.max-tokens":            1024,
			"llm.temperature":           0.2,
		},
		Attachment: &jobconfig.AttachmentRef{Kind: jobconfig.AttachmentURL, Location: "https://example.com/p.pdf"},
		APIKey:     "sk-never-saved",
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	st := NewDefaultPanelState()
	st.Remember(cfg)
	if err := SavePanelState(st, ""); err != nil {
		t.Fatalf("SavePanelState failed: %v", err)
	}

	data, err := os.ReadFile(DefaultPanelStatePath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-never-saved") {
		t.Error("API key must not be persisted")
	}
	info, err := os.Stat(DefaultPanelStatePath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := LoadPanelState("")
	if err != nil {
		t.Fatalf("LoadPanelState failed: %v", err)
	}
	if loaded.Mode != "advanced" {
		t.Errorf("expected advanced mode, got %q", loaded.Mode)
	}
	if loaded.LastAttachmentURL != "https://example.com/p.pdf" {
		t.Errorf("unexpected attachment %q", loaded.LastAttachmentURL)
	}
	if _, ok := loaded.Flags["general.organize"]; ok {
		t.Error("default-valued flags should not be stored")
	}

	// Remembered values must rebuild into the same configuration.
	rebuilt, err := jobconfig.Build(loaded.Inputs("", nil))
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if rebuilt.RepositoryURL != cfg.RepositoryURL {
		t.Errorf("expected recent repository, got %q", rebuilt.RepositoryURL)
	}
	if !rebuilt.General.Readme || rebuilt.LLM.MaxTokens != 1024 {
		t.Errorf("flags not restored: %+v", rebuilt.General)
	}
	if got := rebuilt.Workflows.PythonVersions; len(got) != 2 || got[0] != "3.10" || got[1] != "3.11" {
		t.Errorf("python versions not restored: %v", got)
	}
	if rebuilt.LLM.Temperature == nil || *rebuilt.LLM.Temperature != 0.2 {
		t.Errorf("temperature not restored")
	}
}

func TestInputsOverrides(t *testing.T) {
	st := NewDefaultPanelState()
	st.Flags["general.readme"] = true
	st.Flags["llm.model"] = "old"

	raw := st.Inputs("https://github.com/o/r", map[string]any{"llm.model": "new"})
	if raw.RepositoryURL != "https://github.com/o/r" {
		t.Errorf("explicit url should win, got %q", raw.RepositoryURL)
	}
	if raw.Flags["llm.model"] != "new" || raw.Flags["general.readme"] != true {
		t.Errorf("unexpected flags %v", raw.Flags)
	}
	if st.Flags["llm.model"] != "old" {
		t.Error("Inputs must not mutate remembered flags")
	}
}

func TestNormalizePanelState(t *testing.T) {
	st := &PanelState{Mode: "bogus"}
	normalizePanelState(st)
	if st.StateVersion != CurrentStateVersion || st.Mode != "basic" {
		t.Errorf("unexpected normalization: %+v", st)
	}
	if st.Flags == nil || st.RecentRepositories == nil || st.Meta == nil {
		t.Error("maps and slices should be initialized")
	}
}

func TestAppendRecentRepository(t *testing.T) {
	st := NewDefaultPanelState()
	st.AppendRecentRepository("a", 3)
	st.AppendRecentRepository("b", 3)
	st.AppendRecentRepository("a", 3)
	st.AppendRecentRepository("", 3)
	st.AppendRecentRepository("c", 3)
	st.AppendRecentRepository("d", 3)

	want := []string{"d", "c", "a"}
	if len(st.RecentRepositories) != len(want) {
		t.Fatalf("got %v, want %v", st.RecentRepositories, want)
	}
	for i := range want {
		if st.RecentRepositories[i] != want[i] {
			t.Errorf("got %v, want %v", st.RecentRepositories, want)
			break
		}
	}
}

func TestPanelState_WriteTo(t *testing.T) {
	st := NewDefaultPanelState()
	var buf bytes.Buffer
	n, err := st.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n == 0 || !strings.Contains(buf.String(), "mode: basic") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
