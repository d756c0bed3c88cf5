package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.zmach.net/zmach/zbuild"
)

func writeStory(t *testing.T, dir, name string, mutate func([]byte)) string {
	t.Helper()
	b := zbuild.New()
	if err := b.SetMain(zbuild.Short0OP(0xA)); err != nil {
		t.Fatal(err)
	}
	img, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if mutate != nil {
		mutate(img)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadStory(t *testing.T) {
	dir := t.TempDir()
	path := writeStory(t, dir, "mini.z3", nil)
	story, err := LoadStory(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if story.Path != path || len(story.Image) == 0 {
		t.Errorf("story = %q, %d bytes", story.Path, len(story.Image))
	}
}

func TestLoadStoryTooSmall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stub.z3")
	if err := os.WriteFile(path, []byte("tiny"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStory(path); err == nil {
		t.Error("4-byte file accepted as a story")
	}
}

func TestLoadStoryWrongVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeStory(t, dir, "later.z3", func(img []byte) {
		img[0] = 5
	})
	_, err := LoadStory(path)
	if err == nil || !strings.Contains(err.Error(), "version 5") {
		t.Errorf("error = %v, want a version complaint", err)
	}
}

func TestLoadStoryUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeStory(t, dir, "notes.txt", func(img []byte) {
		img[0] = 'h' // looks like text
	})
	_, err := LoadStory(path)
	if err == nil || !strings.Contains(err.Error(), "not a story file") {
		t.Errorf("error = %v, want a file-type complaint", err)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.BatchLimit != DefaultBatchLimit || s.SaveDir != "saves" {
		t.Errorf("defaults = %+v", s)
	}
	if s.Machine.Seed != 0 || s.Machine.StackSize != 0 {
		t.Errorf("machine section not zero: %+v", s.Machine)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	conf := `
transcript = "game.log"
save_dir = "mysaves"
batch_limit = 500

[machine]
stack_size = 2048
call_depth = 64
seed = 42
`
	if err := os.WriteFile(filepath.Join(dir, "zmach.toml"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Transcript != "game.log" || s.SaveDir != "mysaves" || s.BatchLimit != 500 {
		t.Errorf("settings = %+v", s)
	}
	cfg := s.VMConfig()
	if cfg.StackSize != 2048 || cfg.CallDepth != 64 || cfg.Seed != 42 {
		t.Errorf("vm config = %+v", cfg)
	}
}

func TestLoadSettingsWalksUp(t *testing.T) {
	dir := t.TempDir()
	conf := "batch_limit = 7\n"
	if err := os.WriteFile(filepath.Join(dir, "zmach.toml"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(nested)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.BatchLimit != 7 {
		t.Errorf("batch limit = %d, settings file above not found", s.BatchLimit)
	}
}

func TestLoadSettingsRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	conf := "batch_limt = 500\n" // typo must not pass silently
	if err := os.WriteFile(filepath.Join(dir, "zmach.toml"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadSettings(dir)
	if err == nil || !strings.Contains(err.Error(), "unknown setting") {
		t.Errorf("error = %v, want unknown setting", err)
	}
}

func TestSavePath(t *testing.T) {
	dir := t.TempDir()
	s := Settings{SaveDir: filepath.Join(dir, "saves")}
	path, err := s.SavePath("lamp")
	if err != nil {
		t.Fatalf("save path: %v", err)
	}
	if filepath.Base(path) != "lamp.sav" {
		t.Errorf("path = %q, want a .sav name", path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("save dir not created: %v", err)
	}

	// Directory components in the name are stripped.
	path, err = s.SavePath("../../escape.sav")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != s.SaveDir || filepath.Base(path) != "escape.sav" {
		t.Errorf("path %q leaves the save dir", path)
	}
}
