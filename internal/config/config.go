// Package config holds the tunable constants that govern lifecycle
// admission and skew handling, with YAML-overridable defaults.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config collects the tunables named in the on-disk configuration surface.
// Zero-value fields are never valid on their own; use Default and override.
type Config struct {
	// TrustLoggerTime selects how a lifecycle's end bound is derived when a
	// message is accepted and attached: trusted uses the logger receive time directly,
	// untrusted derives it from the lifecycle begin plus the message's
	// relative timestamp.
	TrustLoggerTime bool `yaml:"trustLoggerTime"`

	// UseMaxEarlierSanityCheck gates secondary acceptance that would move a
	// lifecycle's begin earlier by more than MaxEarlierBeginUsec.
	UseMaxEarlierSanityCheck bool `yaml:"useMaxEarlierSanityCheck"`

	// MaxEarlierBeginUsec is the maximum amount, in microseconds, that a
	// secondary acceptance is allowed to pull a lifecycle's begin earlier.
	MaxEarlierBeginUsec int64 `yaml:"maxEarlierBeginUsec"`

	// UseClockDriftDetection enables the SkewSolver pass after per-ECU
	// lifecycles are built and merged.
	UseClockDriftDetection bool `yaml:"useClockDriftDetection"`

	// HeaderVersionMin/Max bound the accepted DLT standard header version.
	HeaderVersionMin uint8 `yaml:"headerVersionMin"`
	HeaderVersionMax uint8 `yaml:"headerVersionMax"`
}

// Default returns the documented default tunables.
func Default() Config {
	return Config{
		TrustLoggerTime:          false,
		UseMaxEarlierSanityCheck: true,
		MaxEarlierBeginUsec:      120 * 1_000_000,
		UseClockDriftDetection:   true,
		HeaderVersionMin:         1,
		HeaderVersionMax:         1,
	}
}

// Load reads YAML overrides from path on top of Default. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
