// Package policy classifies runtime failures into recovery actions, keeps
// per-key retry bookkeeping, and owns the clamped degradation level together
// with a registry of fallback content.
package policy

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/GoCodeAlone/conductor/events"
)

// Static errors for the policy package
var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrResourceConstraint = errors.New("resource constraint")
)

// Config holds the policy tunables.
type Config struct {
	MaxRetries       int           `yaml:"maxRetries" toml:"max_retries" env:"MAX_RETRIES" default:"3" validate:"gte=0,lte=30" desc:"Retries granted per error key before the exhausted action applies"`
	BaseDelay        time.Duration `yaml:"baseDelay" toml:"base_delay" env:"BASE_DELAY" default:"1s" validate:"gt=0" desc:"Delay of the first retry; doubles on each further attempt"`
	MaxDelay         time.Duration `yaml:"maxDelay" toml:"max_delay" env:"MAX_DELAY" default:"10m" validate:"gt=0" desc:"Upper bound of a retry delay"`
	MemoryThreshold  float64       `yaml:"memoryThreshold" toml:"memory_threshold" env:"MEMORY_THRESHOLD" default:"0.85" validate:"gt=0,lte=1" desc:"Memory usage ratio above which degradation rises"`
	CPUThreshold     float64       `yaml:"cpuThreshold" toml:"cpu_threshold" env:"CPU_THRESHOLD" default:"0.9" validate:"gt=0,lte=1" desc:"CPU usage ratio above which degradation rises"`
	StorageThreshold float64       `yaml:"storageThreshold" toml:"storage_threshold" env:"STORAGE_THRESHOLD" default:"0.95" validate:"gt=0,lte=1" desc:"Storage usage ratio above which cleanup is requested"`
	Retention        time.Duration `yaml:"retention" toml:"retention" env:"RETENTION" default:"1h" validate:"gt=0" desc:"Error records not seen for this long are pruned"`
}

// Logger is the subset of the conductor Logger used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// ErrorRecord tracks the occurrences of one error key.
type ErrorRecord struct {
	Key           string
	Count         int
	FirstSeen     time.Time
	LastSeen      time.Time
	RetryAttempts int
	// DistinctKinds holds the Go types of the errors seen under this key.
	DistinctKinds map[string]struct{}
}

// Corrector attempts a best-effort repair of a value that failed validation.
// It returns the corrected value and true on success.
type Corrector func(value any, err error) (any, bool)

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEmitter sets where policy events go.
func WithEmitter(emitter events.Emitter) Option {
	return func(p *Policy) {
		p.emitter = emitter
	}
}

// WithSampler replaces the default runtime resource sampler.
func WithSampler(sampler ResourceSampler) Option {
	return func(p *Policy) {
		if sampler != nil {
			p.sampler = sampler
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// Policy is safe for concurrent use. All state sits behind one mutex and events
// are emitted after it is released.
type Policy struct {
	cfg     Config
	logger  Logger
	emitter events.Emitter
	sampler ResourceSampler
	now     func() time.Time

	mu         sync.RWMutex
	records    map[string]*ErrorRecord
	level      Level
	fallbacks  map[string]map[string]any
	correctors map[string]Corrector
}

// New creates a policy. Zero config fields fall back to the documented defaults.
func New(cfg Config, opts ...Option) *Policy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Minute
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = 0.85
	}
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = 0.9
	}
	if cfg.StorageThreshold <= 0 {
		cfg.StorageThreshold = 0.95
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}

	p := &Policy{
		cfg:        cfg,
		logger:     nopLogger{},
		sampler:    RuntimeSampler{},
		now:        time.Now,
		records:    make(map[string]*ErrorRecord),
		fallbacks:  make(map[string]map[string]any),
		correctors: make(map[string]Corrector),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

func (p *Policy) emit(payload events.Payload) {
	if p.emitter != nil {
		p.emitter.Emit("policy", payload)
	}
}

// Records returns a copy of every error record sorted by key.
func (p *Policy) Records() []ErrorRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(p.records))
	out := make([]ErrorRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, p.records[k].clone())
	}
	return out
}

// Record returns a copy of the record for key.
func (p *Policy) Record(key string) (ErrorRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[key]
	if !ok {
		return ErrorRecord{}, false
	}
	return rec.clone(), true
}

// Reset clears the record for key, restarting its retry budget.
func (p *Policy) Reset(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, key)
}

// Prune removes records whose LastSeen is older than retention and returns how
// many were removed. A retention <= 0 uses the configured retention.
func (p *Policy) Prune(retention time.Duration) int {
	if retention <= 0 {
		retention = p.cfg.Retention
	}
	cutoff := p.now().Add(-retention)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for key, rec := range p.records {
		if rec.LastSeen.Before(cutoff) {
			delete(p.records, key)
			removed++
		}
	}
	return removed
}

func (r *ErrorRecord) clone() ErrorRecord {
	c := *r
	c.DistinctKinds = maps.Clone(r.DistinctKinds)
	return c
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
