// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tm038/storyline/internal/domain/story"
)

// Config represents the application configuration.
type Config struct {
	Player PlayerConfig `yaml:"player"`
	Items  []ItemConfig `yaml:"items" validate:"required,min=1,dive"`
}

// PlayerConfig represents playback control configuration.
type PlayerConfig struct {
	StartIndex    int  `yaml:"start_index" validate:"gte=0"`
	Repeat        bool `yaml:"repeat"`
	ResumeHoldMs  int  `yaml:"resume_hold_ms" default:"500" validate:"gte=0,lte=5000"`
	TickMs        int  `yaml:"tick_ms" default:"50" validate:"gte=1,lte=1000"`
	FastForwardMs int  `yaml:"fast_forward_ms" default:"300" validate:"gte=0,lte=5000"`
}

// ItemConfig represents a single story item.
type ItemConfig struct {
	ID         string         `yaml:"id"`
	Kind       string         `yaml:"kind" validate:"required,oneof=image video text"`
	DurationMs int            `yaml:"duration_ms" default:"3000" validate:"gte=100,lte=600000"`
	Payload    map[string]any `yaml:"payload"`
}

// Load loads configuration from a YAML file. Environment variables take
// precedence over file values for selected fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("STORYLINE_REPEAT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Player.Repeat = b
		}
	}
	if v := os.Getenv("STORYLINE_START_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Player.StartIndex = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// ResumeHold returns the resume hold window as a duration.
func (c *PlayerConfig) ResumeHold() time.Duration {
	return time.Duration(c.ResumeHoldMs) * time.Millisecond
}

// Tick returns the clock tick granularity as a duration.
func (c *PlayerConfig) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// FastForward returns the fast-forward window as a duration.
func (c *PlayerConfig) FastForward() time.Duration {
	return time.Duration(c.FastForwardMs) * time.Millisecond
}

// BuildItems converts the configured items into story items, decoding each
// payload for its kind. Items without an explicit ID get a positional one.
func (c *Config) BuildItems() ([]*story.Item, error) {
	items := make([]*story.Item, 0, len(c.Items))
	for i, ic := range c.Items {
		kind := story.Kind(ic.Kind)
		payload, err := story.DecodePayload(kind, ic.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		id := ic.ID
		if id == "" {
			id = "item-" + strconv.Itoa(i)
		}
		items = append(items, &story.Item{
			ID:       id,
			Kind:     kind,
			Duration: time.Duration(ic.DurationMs) * time.Millisecond,
			Payload:  payload,
		})
	}
	return items, nil
}
