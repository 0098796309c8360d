package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackie.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Mode != ModeCamera {
		t.Errorf("Mode = %q, want camera", cfg.Mode)
	}
	if cfg.Video.FPS != 1.0 || cfg.Video.JPEGQuality != 50 || cfg.Video.MaxDimension != 1024 {
		t.Errorf("video defaults = %+v", cfg.Video)
	}
	if cfg.Vision.ConfidenceThreshold != 0.45 {
		t.Errorf("ConfidenceThreshold = %v, want 0.45", cfg.Vision.ConfidenceThreshold)
	}
	if cfg.Vision.AlertCooldown != 10*time.Second {
		t.Errorf("AlertCooldown = %v, want 10s", cfg.Vision.AlertCooldown)
	}
	if cfg.Queues.Inbound != 150 {
		t.Errorf("Queues.Inbound = %d, want 150", cfg.Queues.Inbound)
	}
	if cfg.Audio.SendRate != 16000 || cfg.Audio.ReceiveRate != 24000 || cfg.Audio.ChunkSize != 1024 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if len(cfg.Vision.WatchList) != 7 {
		t.Errorf("WatchList = %v", cfg.Vision.WatchList)
	}
	if cfg.PreviewEnabled() {
		t.Error("preview should be off by default")
	}
}

func TestLoadConfig_FileAndPlaceholders(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret-key")
	path := writeConfig(t, `
user_name: Ana
mode: screen
model:
  api_key: ${TEST_GEMINI_KEY}
  temperature: 0.7
video:
  fps: 2.5
  jpeg_quality: 80
vision:
  alert_cooldown: 30s
  watch_list: [knife, dog]
`)

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.UserName != "Ana" || cfg.Mode != ModeScreen {
		t.Errorf("UserName=%q Mode=%q", cfg.UserName, cfg.Mode)
	}
	if cfg.Model.APIKey != "secret-key" {
		t.Errorf("APIKey = %q, want resolved placeholder", cfg.Model.APIKey)
	}
	if cfg.Video.FPS != 2.5 || cfg.Video.JPEGQuality != 80 {
		t.Errorf("video = %+v", cfg.Video)
	}
	if cfg.Vision.AlertCooldown != 30*time.Second {
		t.Errorf("AlertCooldown = %v", cfg.Vision.AlertCooldown)
	}
	if strings.Join(cfg.Vision.WatchList, ",") != "knife,dog" {
		t.Errorf("WatchList = %v", cfg.Vision.WatchList)
	}
}

func TestLoadConfig_MissingPlaceholderFails(t *testing.T) {
	path := writeConfig(t, "model:\n  api_key: ${TRACKIE_TEST_UNSET_VARIABLE}\n")

	_, err := LoadConfig(path, nil)
	if err == nil {
		t.Fatal("expected error for unset variable")
	}
	if !strings.Contains(err.Error(), "TRACKIE_TEST_UNSET_VARIABLE") {
		t.Errorf("error %q should name the variable", err)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("TRACKIE_VIDEO_FPS", "3")
	path := writeConfig(t, "video:\n  fps: 2\n")

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Video.FPS != 3 {
		t.Errorf("FPS = %v, want 3", cfg.Video.FPS)
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	flags := pflag.NewFlagSet("trackie", pflag.ContinueOnError)
	flags.String("mode", ModeCamera, "")
	flags.Bool("preview", false, "")
	if err := flags.Parse([]string{"--mode=camera", "--preview"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadConfig("", flags)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.PreviewEnabled() {
		t.Error("expected preview enabled in camera mode")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero fps", func(c *Config) { c.Video.FPS = 0 }, "video.fps"},
		{"jpeg too low", func(c *Config) { c.Video.JPEGQuality = 5 }, "jpeg_quality"},
		{"jpeg too high", func(c *Config) { c.Video.JPEGQuality = 101 }, "jpeg_quality"},
		{"confidence too low", func(c *Config) { c.Vision.ConfidenceThreshold = 0.05 }, "confidence_threshold"},
		{"bad mode", func(c *Config) { c.Mode = "webcam" }, "mode"},
		{"zero inbound", func(c *Config) { c.Queues.Inbound = 0 }, "queues.inbound"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_PreviewRequiresCamera(t *testing.T) {
	cfg := &Config{Preview: true, Mode: ModeScreen}
	if cfg.PreviewEnabled() {
		t.Error("preview must stay off outside camera mode")
	}
}
