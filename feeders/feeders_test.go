package feeders

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type limits struct {
	MaxRetries int     `yaml:"maxRetries" toml:"max_retries" env:"MAX_RETRIES"`
	Threshold  float64 `yaml:"threshold" toml:"threshold" env:"THRESHOLD"`
}

type settings struct {
	Name    string        `yaml:"name" toml:"name" env:"NAME"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	Debug   bool          `yaml:"debug" toml:"debug" env:"DEBUG"`
	Limits  limits        `yaml:"limits" toml:"limits"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlFeeder(t *testing.T) {
	path := writeFile(t, "config.yaml", `
name: edge
timeout: 15s
debug: true
limits:
  maxRetries: 5
  threshold: 0.75
`)
	var cfg settings
	require.NoError(t, NewYamlFeeder(path).Feed(&cfg))
	assert.Equal(t, "edge", cfg.Name)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, limits{MaxRetries: 5, Threshold: 0.75}, cfg.Limits)
}

func TestYamlFeederKey(t *testing.T) {
	path := writeFile(t, "manifest.yaml", `
controller:
  name: scoped
other:
  name: ignored
`)
	var cfg settings
	require.NoError(t, YamlFeeder{Path: path, Key: "controller"}.Feed(&cfg))
	assert.Equal(t, "scoped", cfg.Name)

	untouched := settings{Name: "kept"}
	require.NoError(t, YamlFeeder{Path: path, Key: "missing"}.Feed(&untouched))
	assert.Equal(t, "kept", untouched.Name)

	err := YamlFeeder{Path: path, Key: "missing", Required: true}.Feed(&untouched)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestYamlFeederErrors(t *testing.T) {
	var cfg settings
	assert.ErrorIs(t, NewYamlFeeder(filepath.Join(t.TempDir(), "nope.yaml")).Feed(&cfg), ErrFileRead)

	path := writeFile(t, "broken.yaml", "name: [unclosed")
	assert.Error(t, NewYamlFeeder(path).Feed(&cfg))
}

func TestTomlFeeder(t *testing.T) {
	path := writeFile(t, "config.toml", `
name = "edge"
timeout = "20s"
debug = true

[limits]
max_retries = 7
threshold = 0.9
`)
	var cfg settings
	require.NoError(t, NewTomlFeeder(path).Feed(&cfg))
	assert.Equal(t, "edge", cfg.Name)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 7, cfg.Limits.MaxRetries)
}

func TestTomlFeederKey(t *testing.T) {
	path := writeFile(t, "manifest.toml", `
[controller]
name = "scoped"

[controller.limits]
max_retries = 2
`)
	var cfg settings
	require.NoError(t, TomlFeeder{Path: path, Key: "controller"}.Feed(&cfg))
	assert.Equal(t, "scoped", cfg.Name)
	assert.Equal(t, 2, cfg.Limits.MaxRetries)

	err := TomlFeeder{Path: path, Key: "absent", Required: true}.Feed(&cfg)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, TomlFeeder{Path: path, Key: "absent"}.Feed(&cfg))

	assert.Error(t, NewTomlFeeder(filepath.Join(t.TempDir(), "nope.toml")).Feed(&cfg))
}

func TestAffixedEnvFeeder(t *testing.T) {
	t.Setenv("APP_NAME_PROD", "from-env")
	t.Setenv("APP_TIMEOUT_PROD", "90s")
	t.Setenv("APP_DEBUG_PROD", "true")
	t.Setenv("APP_MAX_RETRIES_PROD", "9")
	t.Setenv("APP_THRESHOLD_PROD", "0.25")
	t.Setenv("NAME", "unaffixed")

	cfg := settings{Name: "file"}
	require.NoError(t, NewAffixedEnvFeeder("app", "prod").Feed(&cfg))
	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, limits{MaxRetries: 9, Threshold: 0.25}, cfg.Limits)
}

func TestAffixedEnvFeederPrefixOnly(t *testing.T) {
	t.Setenv("CONDUCTOR_NAME", "prefixed")

	var cfg settings
	require.NoError(t, AffixedEnvFeeder{Prefix: "CONDUCTOR"}.Feed(&cfg))
	assert.Equal(t, "prefixed", cfg.Name)
	assert.Zero(t, cfg.Timeout, "unset variables leave fields alone")
}

func TestAffixedEnvFeederErrors(t *testing.T) {
	var cfg settings
	assert.ErrorIs(t, AffixedEnvFeeder{Prefix: "X"}.Feed(cfg), ErrEnvInvalidStructure)
	assert.ErrorIs(t, AffixedEnvFeeder{}.Feed(&cfg), ErrEnvEmptyPrefixAndSuffix)

	t.Setenv("BAD_TIMEOUT", "soon")
	assert.ErrorIs(t, AffixedEnvFeeder{Prefix: "BAD"}.Feed(&cfg), ErrEnvCannotConvert)

	t.Setenv("WORSE_MAX_RETRIES", "several")
	assert.ErrorIs(t, AffixedEnvFeeder{Prefix: "WORSE"}.Feed(&cfg), ErrEnvCannotConvert)
}
