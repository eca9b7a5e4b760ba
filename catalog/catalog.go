// Package catalog keeps the set of known event types and validates event
// data against each type's JSON Schema before it is dispatched.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/herald/event"
)

var (
	// ErrUnknownType is returned by a strict catalog for unregistered types.
	ErrUnknownType = errors.New("herald: unknown event type")

	// ErrInvalidPayload is returned when event data fails schema validation.
	ErrInvalidPayload = errors.New("herald: payload validation failed")
)

// Config configures a Catalog.
type Config struct {
	// Strict rejects events whose type has no definition and enforces the
	// schema of known types. A lenient catalog accepts any JSON data.
	Strict bool
}

// Catalog is the in-memory registry of event type definitions.
type Catalog struct {
	mu        sync.RWMutex
	defs      map[string]Definition
	validator *Validator
	strict    bool
	logger    *slog.Logger
}

// New creates an empty catalog.
func New(cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		defs:      make(map[string]Definition),
		validator: NewValidator(),
		strict:    cfg.Strict,
		logger:    logger,
	}
}

// Register adds or replaces a definition. A schema that does not compile
// is rejected.
func (c *Catalog) Register(def Definition) error {
	if def.Name == "" {
		return errors.New("catalog: definition name is required")
	}
	if def.Name == event.Wildcard {
		return fmt.Errorf("catalog: %q cannot be registered", event.Wildcard)
	}
	if len(def.Schema) > 0 {
		if _, err := c.validator.Compile(def.Schema); err != nil {
			return fmt.Errorf("catalog: %s: %w", def.Name, err)
		}
	}

	c.mu.Lock()
	c.defs[def.Name] = def
	c.mu.Unlock()

	c.logger.Debug("event type registered", "event_type", def.Name)
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(defs ...Definition) {
	for _, d := range defs {
		if err := c.Register(d); err != nil {
			panic(err)
		}
	}
}

// Get returns the definition for name.
func (c *Catalog) Get(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// Remove drops a definition.
func (c *Catalog) Remove(name string) {
	c.mu.Lock()
	delete(c.defs, name)
	c.mu.Unlock()
}

// List returns all definitions sorted by name.
func (c *Catalog) List() []Definition {
	c.mu.RLock()
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Strict reports whether unknown types and schema violations are rejected.
func (c *Catalog) Strict() bool { return c.strict }

// Validate checks evt against its type's schema. Only a strict catalog
// rejects anything.
func (c *Catalog) Validate(evt *event.Event) error {
	if !c.strict {
		return nil
	}
	def, ok := c.Get(evt.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, evt.Type)
	}
	if err := c.validator.Validate(def.Schema, evt.Data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, evt.Type, err)
	}
	return nil
}
