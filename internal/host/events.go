package host

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// MaxScriptEventBytes is the largest accepted script event message, in
// UTF-8 bytes.
const MaxScriptEventBytes = 2048

// EncodedLen returns the UTF-8 length of s as a host text encoder would
// produce it: each invalid byte is replaced by U+FFFD (3 bytes).
func EncodedLen(s string) int {
	if utf8.ValidString(s) {
		return len(s)
	}
	n := 0
	for _, r := range s {
		n += utf8.RuneLen(r)
	}
	return n
}

// EventData is the payload of every signal without a dedicated type.
type EventData map[string]any

// ScriptEventCommandMessageAfterEvent is delivered to
// system.afterEvents.scriptEventReceive subscribers.
type ScriptEventCommandMessageAfterEvent struct {
	ID         string
	Message    string
	SourceType ScriptEventSource
}

// StartupEvent is delivered to system.beforeEvents.startup subscribers.
type StartupEvent struct {
	BlockComponentRegistry *ComponentRegistry
	ItemComponentRegistry  *ComponentRegistry
}

// WorldLoadAfterEvent is delivered to system.afterEvents.worldLoad subscribers.
type WorldLoadAfterEvent struct {
	BlockComponentRegistry *ComponentRegistry
	ItemComponentRegistry  *ComponentRegistry
}

// ComponentRegistry is a placeholder custom-component registry. It records
// what was registered so tests can inspect it after startup.
type ComponentRegistry struct {
	kind       string
	components map[string]any
}

func newComponentRegistry(kind string) *ComponentRegistry {
	return &ComponentRegistry{kind: kind, components: make(map[string]any)}
}

// RegisterCustomComponent records component under name. Names must be
// non-empty and unique per registry.
func (r *ComponentRegistry) RegisterCustomComponent(name string, component any) error {
	if name == "" {
		return fmt.Errorf("%s component name is empty", r.kind)
	}
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("%s component %q already registered", r.kind, name)
	}
	r.components[name] = component
	return nil
}

// Component returns the component registered under name.
func (r *ComponentRegistry) Component(name string) (any, bool) {
	c, ok := r.components[name]
	return c, ok
}

// Names returns the registered names, sorted.
func (r *ComponentRegistry) Names() []string {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
