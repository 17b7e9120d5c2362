package policy

import (
	"time"

	"github.com/GoCodeAlone/conductor/events"
)

// Level is the degradation level. It never leaves [LevelNormal, LevelMinimal].
type Level int

const (
	LevelNormal Level = iota
	LevelReduced
	LevelMinimal
)

// MaxLevel is the highest degradation level.
const MaxLevel = LevelMinimal

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelReduced:
		return "reduced"
	case LevelMinimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// clampLevel keeps l within the valid range.
func clampLevel(l Level) Level {
	switch {
	case l < LevelNormal:
		return LevelNormal
	case l > MaxLevel:
		return MaxLevel
	default:
		return l
	}
}

// OperatingParameters describe how components should behave at a level.
type OperatingParameters struct {
	Level Level `json:"level"`
	// RefreshMultiplier stretches periodic refresh intervals.
	RefreshMultiplier float64 `json:"refreshMultiplier"`
	EffectsEnabled    bool    `json:"effectsEnabled"`
	AnimationsEnabled bool    `json:"animationsEnabled"`
	// MaxConcurrentLoads caps parallel content loads.
	MaxConcurrentLoads int           `json:"maxConcurrentLoads"`
	MinRefreshInterval time.Duration `json:"minRefreshInterval"`
}

var levelParameters = [...]OperatingParameters{
	LevelNormal: {
		Level:              LevelNormal,
		RefreshMultiplier:  1,
		EffectsEnabled:     true,
		AnimationsEnabled:  true,
		MaxConcurrentLoads: 8,
		MinRefreshInterval: 5 * time.Second,
	},
	LevelReduced: {
		Level:              LevelReduced,
		RefreshMultiplier:  2,
		EffectsEnabled:     false,
		AnimationsEnabled:  true,
		MaxConcurrentLoads: 4,
		MinRefreshInterval: 15 * time.Second,
	},
	LevelMinimal: {
		Level:              LevelMinimal,
		RefreshMultiplier:  4,
		EffectsEnabled:     false,
		AnimationsEnabled:  false,
		MaxConcurrentLoads: 1,
		MinRefreshInterval: time.Minute,
	},
}

// ParametersFor returns the operating parameters of a level. Out of range levels
// are clamped.
func ParametersFor(l Level) OperatingParameters {
	return levelParameters[clampLevel(l)]
}

// Level returns the current degradation level.
func (p *Policy) Level() Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// Parameters returns the operating parameters of the current level.
func (p *Policy) Parameters() OperatingParameters {
	return ParametersFor(p.Level())
}

// SetLevel moves to the given level, clamped, and reports whether it changed.
func (p *Policy) SetLevel(l Level) bool {
	p.mu.Lock()
	old, changed := p.setLevelLocked(clampLevel(l))
	p.mu.Unlock()

	p.notifyLevel(old, l, changed)
	return changed
}

// ResetDegradation returns to LevelNormal. A degradation-changed event is only
// emitted when the level actually changes.
func (p *Policy) ResetDegradation() bool {
	return p.SetLevel(LevelNormal)
}

// raise increments the level by one, clamped, and returns the level reached.
func (p *Policy) raise() Level {
	p.mu.Lock()
	next := clampLevel(p.level + 1)
	old, changed := p.setLevelLocked(next)
	p.mu.Unlock()

	p.notifyLevel(old, next, changed)
	return next
}

func (p *Policy) setLevelLocked(l Level) (old Level, changed bool) {
	old = p.level
	if old == l {
		return old, false
	}
	p.level = l
	return old, true
}

func (p *Policy) notifyLevel(old, l Level, changed bool) {
	if !changed {
		return
	}
	l = clampLevel(l)
	p.logger.Warn("Degradation level changed", "from", old.String(), "to", l.String())
	p.emit(events.DegradationChanged{Old: int(old), New: int(l)})
}
