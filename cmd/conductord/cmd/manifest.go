package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoCodeAlone/conductor"
	"github.com/GoCodeAlone/conductor/config"
	"github.com/GoCodeAlone/conductor/feeders"
)

// EnvPrefix prefixes the environment variables that override manifest settings.
const EnvPrefix = "CONDUCTOR"

// Static errors for the conductord commands
var (
	errUnknownManifestFormat = errors.New("unknown manifest format")
	errUnknownLogFormat      = errors.New("unknown log format")
	errSimulatedFailure      = errors.New("simulated initialization failure")
	errSimulatedUnhealthy    = errors.New("simulated health failure")
)

// Manifest is the conductord input file.
type Manifest struct {
	Controller conductor.Config `yaml:"conductor" toml:"conductor"`
	Components []ComponentSpec  `yaml:"components" toml:"components" validate:"dive"`
}

// ComponentSpec describes one simulated component.
type ComponentSpec struct {
	ID           string            `yaml:"id" toml:"id" validate:"required"`
	Dependencies []string          `yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	Priority     int               `yaml:"priority,omitempty" toml:"priority,omitempty"`
	Channels     map[string]string `yaml:"channels,omitempty" toml:"channels,omitempty"`

	// InitDelay simulates slow initialization.
	InitDelay time.Duration `yaml:"initDelay,omitempty" toml:"init_delay,omitempty"`
	// FailInit makes the initialize hook fail.
	FailInit bool `yaml:"failInit,omitempty" toml:"fail_init,omitempty"`
	// FailHealth makes every health probe fail.
	FailHealth bool `yaml:"failHealth,omitempty" toml:"fail_health,omitempty"`
	// Publish is a channel broadcast on once initialized.
	Publish string `yaml:"publish,omitempty" toml:"publish,omitempty"`
	// Share is a shared data key set to the component id once initialized.
	Share string `yaml:"share,omitempty" toml:"share,omitempty"`
}

// LoadManifest reads a YAML or TOML manifest, applies CONDUCTOR_* environment
// overrides, fills defaults and validates the result.
func LoadManifest(path string) (*Manifest, error) {
	var fileFeeder config.Feeder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		fileFeeder = feeders.NewYamlFeeder(path)
	case ".toml":
		fileFeeder = feeders.NewTomlFeeder(path)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownManifestFormat, path)
	}

	m := &Manifest{}
	if err := config.Load(m, fileFeeder, feeders.NewAffixedEnvFeeder(EnvPrefix, "")); err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", path, err)
	}
	return m, nil
}

// Descriptors builds the component descriptors of the manifest.
func (m *Manifest) Descriptors(logger conductor.Logger) []conductor.Descriptor {
	out := make([]conductor.Descriptor, 0, len(m.Components))
	for _, spec := range m.Components {
		out = append(out, spec.Descriptor(logger))
	}
	return out
}

// Descriptor builds a component whose hooks behave as configured.
func (s ComponentSpec) Descriptor(logger conductor.Logger) conductor.Descriptor {
	if logger == nil {
		logger = conductor.NopLogger()
	}

	return conductor.Descriptor{
		ID:           s.ID,
		Dependencies: s.Dependencies,
		Priority:     s.Priority,
		Channels:     s.Channels,
		Capabilities: conductor.Capabilities{
			Initialize: func(ctx context.Context, bus *conductor.Bus) error {
				if s.InitDelay > 0 {
					select {
					case <-time.After(s.InitDelay):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if s.FailInit {
					return fmt.Errorf("%w: %s", errSimulatedFailure, s.ID)
				}
				if s.Publish != "" {
					n := bus.Broadcast(ctx, s.Publish, map[string]any{"from": s.ID}, s.ID)
					logger.Debug("Simulated broadcast", "component", s.ID, "channel", s.Publish, "delivered", n)
				}
				if s.Share != "" {
					bus.SetShared(ctx, s.Share, s.ID, s.ID)
				}
				return nil
			},
			Shutdown: func(context.Context) error {
				logger.Debug("Simulated component stopped", "component", s.ID)
				return nil
			},
			HealthProbe: func(context.Context) error {
				if s.FailHealth {
					return fmt.Errorf("%w: %s", errSimulatedUnhealthy, s.ID)
				}
				return nil
			},
			HandleMessage: func(_ context.Context, msg conductor.Message) error {
				logger.Info("Message received",
					"component", s.ID, "channel", msg.Channel, "event", msg.Event, "sender", msg.Sender)
				return nil
			},
		},
	}
}
