package config_test

import (
	"testing"

	"github.com/MrWong99/maxassist/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(d config.ConfigDiff) bool {
				return d.LogLevelChanged && d.NewLogLevel == config.LogDebug && !d.ListenChanged
			},
		},
		{
			name:   "listen tuning",
			mutate: func(c *config.Config) { c.Listen.ConfidenceThreshold = 0.6 },
			check:  func(d config.ConfigDiff) bool { return d.ListenChanged && !d.WakePhrasesChanged },
		},
		{
			name:   "wake phrases",
			mutate: func(c *config.Config) { c.Assistant.WakePhrases = []string{"computer"} },
			check:  func(d config.ConfigDiff) bool { return d.WakePhrasesChanged && !d.ListenChanged },
		},
		{
			name:   "generation",
			mutate: func(c *config.Config) { c.Generation.MaxChars = 80 },
			check:  func(d config.ConfigDiff) bool { return d.GenerationChanged && !d.LogLevelChanged },
		},
		{
			name: "generation enabled pointer",
			mutate: func(c *config.Config) {
				off := false
				c.Generation.Enabled = &off
			},
			check: func(d config.ConfigDiff) bool { return d.GenerationChanged },
		},
		{
			name:   "untracked field",
			mutate: func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check:  func(d config.ConfigDiff) bool { return !d.Any() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tt.mutate(new)
			if d := config.Diff(old, new); !tt.check(d) {
				t.Errorf("unexpected diff: %+v", d)
			}
		})
	}
}
