package types

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Resolver maps the type names used in mapping documents to runtime types.
// Aliases are case-insensitive, matching the document vocabulary where
// "map", "Map" and "MAP" all mean the same thing. Application types must be
// registered up front; there is no fully-qualified-name reflection fallback
// in Go, so the fallback lookup consults the registered named types by their
// package-qualified name.
type Resolver struct {
	mu      sync.RWMutex
	aliases map[string]reflect.Type
}

// NewResolver returns a Resolver preloaded with the built-in aliases.
func NewResolver() *Resolver {
	r := &Resolver{aliases: make(map[string]reflect.Type)}
	builtins := map[string]reflect.Type{
		"string":  reflect.TypeOf(""),
		"int":     reflect.TypeOf(int(0)),
		"int32":   reflect.TypeOf(int32(0)),
		"int64":   reflect.TypeOf(int64(0)),
		"long":    reflect.TypeOf(int64(0)),
		"float32": reflect.TypeOf(float32(0)),
		"float64": reflect.TypeOf(float64(0)),
		"double":  reflect.TypeOf(float64(0)),
		"bool":    reflect.TypeOf(false),
		"boolean": reflect.TypeOf(false),
		"bytes":   reflect.TypeOf([]byte(nil)),
		"time":    reflect.TypeOf(time.Time{}),
		"date":    reflect.TypeOf(time.Time{}),
		"map":     reflect.TypeOf(map[string]any(nil)),
		"hashmap": reflect.TypeOf(map[string]any(nil)),
		"list":    reflect.TypeOf([]any(nil)),
		"slice":   reflect.TypeOf([]any(nil)),
	}
	for name, t := range builtins {
		r.aliases[name] = t
	}
	return r
}

// Register makes t resolvable under its package-qualified name and its bare
// name, e.g. example.User and User.
func (r *Resolver) Register(t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Errorf("cannot register unnamed type %s", t)
	}
	if err := r.RegisterAlias(t.String(), t); err != nil {
		return err
	}
	return r.RegisterAlias(t.Name(), t)
}

// RegisterAlias makes t resolvable under alias. Re-registering an alias for
// a different type is an error; re-registering the same pair is a no-op.
func (r *Resolver) RegisterAlias(alias string, t reflect.Type) error {
	key := strings.ToLower(alias)
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.aliases[key]; ok && prev != t {
		return fmt.Errorf("type alias %q already registered for %s", alias, prev)
	}
	r.aliases[key] = t
	return nil
}

// AliasFor registers alias as another name for an already-resolvable type
// name. Used by the typeAliases configuration element.
func (r *Resolver) AliasFor(alias, typeName string) error {
	t, err := r.Resolve(typeName)
	if err != nil {
		return err
	}
	return r.RegisterAlias(alias, t)
}

// Resolve returns the runtime type for name. Unknown names are an error.
func (r *Resolver) Resolve(name string) (reflect.Type, error) {
	r.mu.RLock()
	t, ok := r.aliases[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown type %q: not a built-in alias and not registered", name)
	}
	return t, nil
}

// ResolveOptional resolves name, returning nil for an empty name. Used for
// optional type attributes.
func (r *Resolver) ResolveOptional(name string) (reflect.Type, error) {
	if name == "" {
		return nil, nil
	}
	return r.Resolve(name)
}
