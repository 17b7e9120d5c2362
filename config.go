package conductor

import (
	"time"

	"github.com/GoCodeAlone/conductor/config"
	"github.com/GoCodeAlone/conductor/health"
	"github.com/GoCodeAlone/conductor/policy"
)

// Config holds the controller tunables. Zero fields take the value of their
// `default` tag; see DefaultConfig.
type Config struct {
	ComponentInitTimeout     time.Duration `yaml:"componentInitTimeout" toml:"component_init_timeout" env:"COMPONENT_INIT_TIMEOUT" default:"10s" validate:"gt=0" desc:"Budget of one component's initialize hook"`
	ModuleLoadTimeout        time.Duration `yaml:"moduleLoadTimeout" toml:"module_load_timeout" env:"MODULE_LOAD_TIMEOUT" default:"60s" validate:"gt=0" desc:"Budget of the whole sequential initialization phase"`
	ReadyTimeout             time.Duration `yaml:"readyTimeout" toml:"ready_timeout" env:"READY_TIMEOUT" default:"5s" validate:"gt=0" desc:"How long to wait for every non-failed component to report initialized"`
	ReadyPollInterval        time.Duration `yaml:"readyPollInterval" toml:"ready_poll_interval" env:"READY_POLL_INTERVAL" default:"50ms" validate:"gt=0" desc:"Readiness poll interval"`
	ComponentShutdownTimeout time.Duration `yaml:"componentShutdownTimeout" toml:"component_shutdown_timeout" env:"COMPONENT_SHUTDOWN_TIMEOUT" default:"5s" validate:"gt=0" desc:"Budget of one component's shutdown hook"`
	ShutdownTimeout          time.Duration `yaml:"shutdownTimeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0" desc:"Budget of the whole shutdown phase"`
	HealthCheckInterval      time.Duration `yaml:"healthCheckInterval" toml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL" default:"30s" validate:"gt=0" desc:"Interval between health probe ticks"`
	CleanupInterval          time.Duration `yaml:"cleanupInterval" toml:"cleanup_interval" env:"CLEANUP_INTERVAL" default:"5m" validate:"gt=0" desc:"Interval between error record pruning and resource checks"`
	ProbeTimeout             time.Duration `yaml:"probeTimeout" toml:"probe_timeout" env:"PROBE_TIMEOUT" default:"5s" validate:"gt=0" desc:"Budget of a single health probe"`
	DisableAutoRestart       bool          `yaml:"disableAutoRestart" toml:"disable_auto_restart" env:"DISABLE_AUTO_RESTART" desc:"Do not schedule restarts after a failed start"`
	MaxRestartAttempts       int           `yaml:"maxRestartAttempts" toml:"max_restart_attempts" env:"MAX_RESTART_ATTEMPTS" default:"3" validate:"gte=1" desc:"Automatic restarts before giving up"`
	RestartDelay             time.Duration `yaml:"restartDelay" toml:"restart_delay" env:"RESTART_DELAY" default:"5s" validate:"gt=0" desc:"Fixed delay before an automatic restart"`
	RequireAllComponents     bool          `yaml:"requireAllComponents" toml:"require_all_components" env:"REQUIRE_ALL_COMPONENTS" desc:"Fail the start when any component fails to initialize"`
	HandleSignals            bool          `yaml:"handleSignals" toml:"handle_signals" env:"HANDLE_SIGNALS" desc:"Stop and exit on SIGINT and SIGTERM"`

	Policy policy.Config `yaml:"policy" toml:"policy"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	_ = config.ProcessDefaults(&cfg)
	return cfg
}

// Validate checks the config against its validation tags.
func (c *Config) Validate() error {
	return config.Struct(c)
}

func (c Config) healthConfig() health.Config {
	return health.Config{
		Interval:        c.HealthCheckInterval,
		CleanupInterval: c.CleanupInterval,
		ProbeTimeout:    c.ProbeTimeout,
	}
}
