package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ListenChanged is true if any listen.* tuning value changed.
	ListenChanged bool

	// WakePhrasesChanged is true if the wake phrase set or its order changed.
	WakePhrasesChanged bool

	// GenerationChanged is true if any generation.* value changed.
	GenerationChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ListenChanged = old.Listen != new.Listen
	d.WakePhrasesChanged = !slices.Equal(old.Assistant.WakePhrases, new.Assistant.WakePhrases)
	d.GenerationChanged = !reflect.DeepEqual(old.Generation, new.Generation)

	return d
}

// Any reports whether any tracked field changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.ListenChanged || d.WakePhrasesChanged || d.GenerationChanged
}
