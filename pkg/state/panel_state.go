package state

// PanelState remembers the last used form values so a new session can start
// where the previous one left off. It is stored as YAML under the user
// config directory and written atomically. Secrets are never part of it.
//
// The state object is not synchronized; callers guard concurrent access.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
)

// CurrentStateVersion is bumped on breaking layout changes.
const CurrentStateVersion = 1

// DefaultRecentLimit bounds the recent repository list.
const DefaultRecentLimit = 10

// PanelState is the persisted panel state.
type PanelState struct {
	StateVersion       int               `yaml:"stateVersion"`
	SavedAt            time.Time         `yaml:"savedAt"`
	Mode               string            `yaml:"mode"`
	Flags              map[string]any    `yaml:"flags"`
	RecentRepositories []string          `yaml:"recentRepositories"`
	LastAttachmentURL  string            `yaml:"lastAttachmentUrl,omitempty"`
	Meta               map[string]string `yaml:"meta,omitempty"`
}

// NewDefaultPanelState returns a state holding the flag defaults.
func NewDefaultPanelState() *PanelState {
	return &PanelState{
		StateVersion:       CurrentStateVersion,
		SavedAt:            time.Now().UTC(),
		Mode:               string(jobconfig.ModeBasic),
		Flags:              map[string]any{},
		RecentRepositories: []string{},
		Meta:               map[string]string{},
	}
}

// LoadPanelState loads state from path (DefaultPanelStatePath if empty).
// A missing file yields the defaults. Paths outside the user config
// directory are rejected.
func LoadPanelState(path string) (*PanelState, error) {
	if path == "" {
		path = DefaultPanelStatePath()
	}
	if !insideConfigDir(path) {
		return nil, fmt.Errorf("state: path outside config dir: %s", path)
	}
	// #nosec G304 validated path confined to user config directory above
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultPanelState(), nil
		}
		return nil, fmt.Errorf("state: read failed: %w", err)
	}
	var st PanelState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state: parse failed: %w", err)
	}
	normalizePanelState(&st)
	return &st, nil
}

// SavePanelState persists st atomically to path (DefaultPanelStatePath if
// empty).
func SavePanelState(st *PanelState, path string) error {
	if st == nil {
		return errors.New("state: nil PanelState")
	}
	if path == "" {
		path = DefaultPanelStatePath()
	}
	if !insideConfigDir(path) {
		return fmt.Errorf("state: path outside config dir: %s", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("state: mkdir failed: %w", err)
	}
	st.SavedAt = time.Now().UTC()

	out, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: marshal failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".panel_state.tmp-*")
	if err != nil {
		return fmt.Errorf("state: temp create failed: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(out); err != nil {
		return fmt.Errorf("state: temp write failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("state: chmod failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("state: sync failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("state: atomic rename failed: %w", err)
	}
	return nil
}

// DefaultPanelStatePath returns the OS-specific default state file.
func DefaultPanelStatePath() string {
	return filepath.Join(userConfigDir(), "osapanel", "panel_state.yaml")
}

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config")
	}
	return "."
}

func insideConfigDir(path string) bool {
	return strings.HasPrefix(filepath.Clean(path), filepath.Clean(userConfigDir())+string(os.PathSeparator))
}

func normalizePanelState(st *PanelState) {
	if st.StateVersion <= 0 {
		st.StateVersion = CurrentStateVersion
	}
	if _, err := jobconfig.ParseMode(st.Mode); err != nil || st.Mode == "" {
		st.Mode = string(jobconfig.ModeBasic)
	}
	if st.Flags == nil {
		st.Flags = map[string]any{}
	}
	if st.RecentRepositories == nil {
		st.RecentRepositories = []string{}
	}
	if st.Meta == nil {
		st.Meta = map[string]string{}
	}
}

// AppendRecentRepository adds url to the MRU list (de-duped, size-limited).
func (s *PanelState) AppendRecentRepository(url string, maxItems int) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	filtered := make([]string, 0, len(s.RecentRepositories)+1)
	for _, existing := range s.RecentRepositories {
		if existing != url {
			filtered = append(filtered, existing)
		}
	}
	s.RecentRepositories = append([]string{url}, filtered...)
	if maxItems > 0 && len(s.RecentRepositories) > maxItems {
		s.RecentRepositories = s.RecentRepositories[:maxItems]
	}
}

// Remember records the inputs of a run: its mode, every flag value that
// differs from the default, the repository and a URL attachment.
func (s *PanelState) Remember(cfg jobconfig.Configuration) {
	s.Mode = string(cfg.Mode)
	defaults := jobconfig.Defaults().Values()
	flags := make(map[string]any)
	for key, v := range cfg.Values() {
		if fmt.Sprint(v) == fmt.Sprint(defaults[key]) {
			continue
		}
		flags[key.String()] = v
	}
	s.Flags = flags
	s.AppendRecentRepository(cfg.RepositoryURL, DefaultRecentLimit)
	if cfg.Attachment != nil && cfg.Attachment.Kind == jobconfig.AttachmentURL {
		s.LastAttachmentURL = cfg.Attachment.Location
	}
}

// Inputs returns raw inputs pre-filled from the remembered values. Entries
// in overrides replace remembered flags.
func (s *PanelState) Inputs(repositoryURL string, overrides map[string]any) jobconfig.RawInputs {
	flags := make(map[string]any, len(s.Flags)+len(overrides))
	for k, v := range s.Flags {
		flags[k] = v
	}
	for k, v := range overrides {
		flags[k] = v
	}
	if repositoryURL == "" && len(s.RecentRepositories) > 0 {
		repositoryURL = s.RecentRepositories[0]
	}
	return jobconfig.RawInputs{
		RepositoryURL: repositoryURL,
		Mode:          s.Mode,
		Flags:         flags,
	}
}

// WriteTo writes the YAML representation to w.
func (s *PanelState) WriteTo(w io.Writer) (int64, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}
