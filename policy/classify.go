package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"syscall"
	"time"

	"github.com/GoCodeAlone/conductor/events"
	"github.com/go-playground/validator/v10"
)

// Action is the recovery action chosen for a failure.
type Action int

const (
	// ActionUnspecified is the zero value; as ErrorContext.OnExhausted it
	// selects UseFallback.
	ActionUnspecified Action = iota
	UseFallback
	RetryOperation
	SkipContent
	RestartComponent
	NotifyOperator
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case UseFallback:
		return "use_fallback"
	case RetryOperation:
		return "retry_operation"
	case SkipContent:
		return "skip_content"
	case RestartComponent:
		return "restart_component"
	case NotifyOperator:
		return "notify_operator"
	default:
		return "unspecified"
	}
}

// Category is the failure class derived from an error.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryValidation
	CategoryResource
	CategoryStorage
	CategoryTransient
	CategorySystem
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "not_found"
	case CategoryValidation:
		return "validation"
	case CategoryResource:
		return "resource"
	case CategoryStorage:
		return "storage"
	case CategoryTransient:
		return "transient"
	case CategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// Severity grades how urgently an operator should look at a failure.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Resource names the constrained resource in a ResourceError.
type Resource string

const (
	ResourceMemory  Resource = "memory"
	ResourceCPU     Resource = "cpu"
	ResourceStorage Resource = "storage"
)

// ResourceError reports resource pressure. Ratio is the observed usage ratio in
// [0, 1]; zero means unknown.
type ResourceError struct {
	Resource Resource
	Ratio    float64
	Err      error
}

func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrResourceConstraint, e.Resource)
	if e.Ratio > 0 {
		msg += fmt.Sprintf(" at %.0f%%", e.Ratio*100)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel and the cause.
func (e *ResourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResourceConstraint}
	}
	return []error{ErrResourceConstraint, e.Err}
}

// ValidationError reports a structural failure of a value of some kind.
type ValidationError struct {
	Kind string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", ErrValidation, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// ErrorContext describes where a failure happened.
type ErrorContext struct {
	// Key groups occurrences for retry bookkeeping; the category name is used
	// when empty.
	Key       string
	Component string
	// Kind is the content or schema kind, used for fallbacks and correctors.
	Kind string
	// Path identifies the specific content for fallback lookup.
	Path string
	// Value is the value that failed validation, handed to the corrector.
	Value any
	// MaxRetries overrides the configured retry budget when > 0.
	MaxRetries int
	// OnExhausted is the action once retries are used up (UseFallback when
	// unspecified).
	OnExhausted Action
}

// Decision is the outcome of Classify.
type Decision struct {
	Action   Action
	Category Category
	Severity Severity
	// Attempt is the retry attempt number for transient failures.
	Attempt int
	Delay   time.Duration
	// Fallback is the substitute content, corrected value or operating
	// parameters, depending on the category.
	Fallback         any
	Parameters       *OperatingParameters
	Corrected        bool
	CleanupRequested bool
}

// Categorize maps an error to its category without touching any state.
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var resErr *ResourceError
	if errors.As(err, &resErr) {
		if resErr.Resource == ResourceStorage {
			return CategoryStorage
		}
		return CategoryResource
	}
	if errors.Is(err, syscall.ENOSPC) {
		return CategoryStorage
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return CategoryNotFound
	}

	var valErrs validator.ValidationErrors
	var invalid *validator.InvalidValidationError
	if errors.Is(err, ErrValidation) || errors.As(err, &valErrs) || errors.As(err, &invalid) {
		return CategoryValidation
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return CategoryTransient
	}
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return CategoryTransient
	}

	return CategorySystem
}

// Classify records the failure and decides how to recover from it. It never
// panics and never returns an error; a nil err yields a zero Decision.
func (p *Policy) Classify(err error, ec ErrorContext) Decision {
	if err == nil {
		return Decision{}
	}

	category := Categorize(err)
	key := ec.Key
	if key == "" {
		key = category.String()
	}

	count, attempt := p.record(key, err, category == CategoryTransient)
	p.emit(events.ErrorRecorded{Key: key, Count: count})

	var d Decision
	switch category {
	case CategoryNotFound:
		d = Decision{Action: UseFallback, Severity: SeverityLow, Fallback: p.GetFallback(ec.Kind, ec.Path)}

	case CategoryValidation:
		d = p.classifyValidation(err, ec)

	case CategoryResource:
		d = p.classifyResource(err)

	case CategoryStorage:
		d = Decision{
			Action:           UseFallback,
			Severity:         SeverityMedium,
			Fallback:         p.GetFallback(ec.Kind, ec.Path),
			CleanupRequested: true,
		}

	case CategoryTransient:
		d = p.classifyTransient(attempt, ec)

	default:
		d = Decision{Action: NotifyOperator, Severity: SeverityHigh}
	}
	d.Category = category

	p.logger.Debug("Error classified",
		"key", key, "component", ec.Component, "category", category.String(),
		"action", d.Action.String(), "attempt", d.Attempt, "error", err)
	return d
}

func (p *Policy) record(key string, err error, retry bool) (count, attempt int) {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		rec = &ErrorRecord{Key: key, FirstSeen: now, DistinctKinds: make(map[string]struct{})}
		p.records[key] = rec
	}
	rec.Count++
	rec.LastSeen = now
	rec.DistinctKinds[fmt.Sprintf("%T", err)] = struct{}{}
	if retry {
		rec.RetryAttempts++
	}
	return rec.Count, rec.RetryAttempts
}

// RetryDelay returns baseDelay * 2^(attempt-1) for attempt >= 1, saturating at
// the largest representable duration instead of overflowing.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift >= 63 || base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

func (p *Policy) classifyTransient(attempt int, ec ErrorContext) Decision {
	maxRetries := p.cfg.MaxRetries
	if ec.MaxRetries > 0 {
		maxRetries = ec.MaxRetries
	}

	if attempt <= maxRetries {
		return Decision{
			Action:   RetryOperation,
			Severity: SeverityLow,
			Attempt:  attempt,
			Delay:    min(RetryDelay(p.cfg.BaseDelay, attempt), p.cfg.MaxDelay),
		}
	}

	action := ec.OnExhausted
	if action == ActionUnspecified {
		action = UseFallback
	}
	d := Decision{Action: action, Severity: SeverityMedium, Attempt: attempt}
	switch action {
	case UseFallback:
		d.Fallback = p.GetFallback(ec.Kind, ec.Path)
	case NotifyOperator:
		d.Severity = SeverityHigh
	}
	return d
}

func (p *Policy) classifyValidation(err error, ec ErrorContext) Decision {
	if corr := p.corrector(ec.Kind); corr != nil {
		if v, ok := safeCorrect(corr, ec.Value, err); ok {
			return Decision{Action: UseFallback, Severity: SeverityLow, Fallback: v, Corrected: true}
		}
		p.logger.Debug("Corrector could not repair value", "kind", ec.Kind, "error", err)
	}
	return Decision{Action: UseFallback, Severity: SeverityMedium, Fallback: BuiltinFallback(ec.Kind)}
}

func safeCorrect(corr Corrector, value any, err error) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()
	return corr(value, err)
}

func (p *Policy) classifyResource(err error) Decision {
	var resErr *ResourceError
	errors.As(err, &resErr)

	level := p.Level()
	if resErr.Ratio == 0 || resErr.Ratio > p.threshold(resErr.Resource) {
		level = p.raise()
	}
	params := ParametersFor(level)
	return Decision{Action: UseFallback, Severity: SeverityMedium, Fallback: params, Parameters: &params}
}

func (p *Policy) threshold(r Resource) float64 {
	if r == ResourceCPU {
		return p.cfg.CPUThreshold
	}
	return p.cfg.MemoryThreshold
}

// Retry records err under ec.Key as a retryable failure whatever its category
// and applies the retry budget. It is used by callers that always retry, such
// as the controller's restart loop.
func (p *Policy) Retry(err error, ec ErrorContext) Decision {
	key := ec.Key
	if key == "" {
		key = CategoryTransient.String()
	}

	count, attempt := p.record(key, err, true)
	p.emit(events.ErrorRecorded{Key: key, Count: count})

	d := p.classifyTransient(attempt, ec)
	d.Category = CategoryTransient
	p.logger.Debug("Retry decided", "key", key, "action", d.Action.String(), "attempt", attempt, "error", err)
	return d
}
