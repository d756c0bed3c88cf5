// Package cli loads story files and the optional zmach.toml settings
// file, and merges both with command line flags into the machine
// configuration the commands run with.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"go.zmach.net/zmach/vm"
	"go.zmach.net/zmach/zcode"
)

// Story is a loaded story file.
type Story struct {
	Path  string
	Image []byte
}

var storyExtensions = []string{".z3", ".zip", ".dat"}

// LoadStory reads and sanity-checks a story file. Infocom shipped
// version 3 games under several extensions, so the check is advisory
// only when the content looks right.
func LoadStory(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}
	if len(data) < zcode.HeaderSize {
		return nil, fmt.Errorf("%s: %d bytes is smaller than a story header", path, len(data))
	}
	if data[zcode.HdrVersion] != zcode.Version {
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(storyExtensions, ext) {
			return nil, fmt.Errorf("%s: not a story file (version byte %d, unknown extension %q)",
				path, data[zcode.HdrVersion], ext)
		}
		return nil, fmt.Errorf("%s: story version %d, this interpreter runs version %d only",
			path, data[zcode.HdrVersion], zcode.Version)
	}
	return &Story{Path: path, Image: data}, nil
}

// Settings is the merged run configuration. Zero values defer to the
// machine's own defaults.
type Settings struct {
	Machine    MachineSettings `toml:"machine"`
	Transcript string          `toml:"transcript"` // path, empty disables
	SaveDir    string          `toml:"save_dir"`
	BatchLimit int             `toml:"batch_limit"` // instructions per RunBatch slice
}

// MachineSettings mirrors vm.Config with settings-file names.
type MachineSettings struct {
	StackSize int   `toml:"stack_size"`
	CallDepth int   `toml:"call_depth"`
	Seed      int64 `toml:"seed"`
}

// VMConfig converts the machine section for vm.New.
func (s Settings) VMConfig() vm.Config {
	return vm.Config{
		StackSize: s.Machine.StackSize,
		CallDepth: s.Machine.CallDepth,
		Seed:      s.Machine.Seed,
	}
}

const (
	settingsFile       = "zmach.toml"
	DefaultBatchLimit  = 20000
	defaultSaveDirName = "saves"
)

// findSettings walks from startDir to the filesystem root looking for
// a zmach.toml.
func findSettings(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, settingsFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadSettings returns the settings from the nearest zmach.toml above
// startDir, or the defaults when none exists.
func LoadSettings(startDir string) (Settings, error) {
	s := Settings{
		SaveDir:    defaultSaveDirName,
		BatchLimit: DefaultBatchLimit,
	}
	path, ok, err := findSettings(startDir)
	if err != nil || !ok {
		return s, err
	}
	meta, err := toml.DecodeFile(path, &s)
	if err != nil {
		return s, fmt.Errorf("%s: parse settings: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return s, fmt.Errorf("%s: unknown setting %q", path, undecoded[0].String())
	}
	if s.BatchLimit <= 0 {
		s.BatchLimit = DefaultBatchLimit
	}
	return s, nil
}

// SavePath places a save file name under the configured save dir,
// creating the directory on first use.
func (s Settings) SavePath(name string) (string, error) {
	dir := s.SaveDir
	if dir == "" {
		dir = defaultSaveDirName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}
	if name == "" {
		name = "game"
	}
	if filepath.Ext(name) == "" {
		name += ".sav"
	}
	return filepath.Join(dir, filepath.Base(name)), nil
}
