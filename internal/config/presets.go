package config

import (
	"sort"
	"time"
)

// Presets adjust DefaultConfig for a named scenario.
var Presets = map[string]func(*Config){
	"reactor-feedback": func(c *Config) {
		c.Control.Mode = ModeParallelSum
	},
	"cascade": func(c *Config) {
		c.Control.Mode = ModeCascade
	},
	"pid-cascade": func(c *Config) {
		c.Control.Mode = ModePIDCascade
	},
	"manual": func(c *Config) {
		c.Control.Mode = ModeManual
	},
	"slow-link": func(c *Config) {
		c.Telemetry.Period = Duration{250 * time.Millisecond}
		c.Telemetry.RetryInterval = Duration{5 * time.Second}
	},
}

// GetPreset returns a fresh config with the preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
