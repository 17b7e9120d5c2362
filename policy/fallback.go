package policy

import "maps"

// Built-in fallback kinds.
const (
	KindImage  = "image"
	KindText   = "text"
	KindConfig = "config"
	KindVideo  = "video"
)

// builtinFallbacks are used when nothing was registered for a kind.
var builtinFallbacks = map[string]any{
	KindImage:  "fallback/placeholder.png",
	KindText:   "Content temporarily unavailable",
	KindConfig: map[string]any{},
	KindVideo:  "fallback/placeholder.mp4",
}

// BuiltinFallback returns the hardcoded default for kind, or nil.
func BuiltinFallback(kind string) any {
	v, ok := builtinFallbacks[kind]
	if !ok {
		return nil
	}
	if m, isMap := v.(map[string]any); isMap {
		return maps.Clone(m)
	}
	return v
}

// SetFallback registers fallback content. An empty path sets the generic
// default of the kind.
func (p *Policy) SetFallback(kind, path string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byPath, ok := p.fallbacks[kind]
	if !ok {
		byPath = make(map[string]any)
		p.fallbacks[kind] = byPath
	}
	byPath[path] = value
}

// GetFallback resolves fallback content: the exact path first, then the
// generic default of the kind, then the built-in default. It returns nil when
// none applies.
func (p *Policy) GetFallback(kind, path string) any {
	p.mu.RLock()
	byPath := p.fallbacks[kind]
	if v, ok := byPath[path]; ok {
		p.mu.RUnlock()
		return v
	}
	if v, ok := byPath[""]; ok {
		p.mu.RUnlock()
		return v
	}
	p.mu.RUnlock()

	return BuiltinFallback(kind)
}

// RemoveFallback deletes a registered fallback. An empty path removes the
// generic default of the kind.
func (p *Policy) RemoveFallback(kind, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if byPath, ok := p.fallbacks[kind]; ok {
		delete(byPath, path)
	}
}

// RegisterCorrector installs a validation corrector for a kind.
func (p *Policy) RegisterCorrector(kind string, corrector Corrector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if corrector == nil {
		delete(p.correctors, kind)
		return
	}
	p.correctors[kind] = corrector
}

func (p *Policy) corrector(kind string) Corrector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.correctors[kind]
}
