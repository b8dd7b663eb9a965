package builder

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/vk/sqlmapper/cache"
	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/registry"
)

// assistant carries the per-document state shared by the element parsers:
// the current namespace, the namespace cache and whether a cache-ref is
// still unresolved. Statements compiled while the cache-ref is unresolved
// must themselves defer, or they would bind to no cache.
type assistant struct {
	cfg       *registry.Configuration
	resource  string
	namespace string

	currentCache       cache.Cache
	unresolvedCacheRef bool
}

func newAssistant(cfg *registry.Configuration, resource string) *assistant {
	return &assistant{cfg: cfg, resource: resource}
}

func (a *assistant) setNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("resource %q: mapper namespace must not be empty", a.resource)
	}
	if a.namespace != "" && a.namespace != ns {
		return fmt.Errorf("resource %q: namespace changed from %q to %q", a.resource, a.namespace, ns)
	}
	a.namespace = ns
	return nil
}

// qualify prefixes id with the current namespace. A reference may already
// be qualified with another namespace; a declaration may not contain dots.
func (a *assistant) qualify(id string, isReference bool) (string, error) {
	if id == "" {
		return "", nil
	}
	if isReference {
		if strings.Contains(id, ".") {
			return id, nil
		}
		return a.namespace + "." + id, nil
	}
	if strings.HasPrefix(id, a.namespace+".") {
		return id, nil
	}
	if strings.Contains(id, ".") {
		return "", fmt.Errorf("element id %q: dots are not allowed in declared ids", id)
	}
	return a.namespace + "." + id, nil
}

// useCacheRef points the namespace at another namespace's cache. When the
// target cache does not exist yet the returned error is incomplete and the
// assistant stays in the unresolved state.
func (a *assistant) useCacheRef(target string) error {
	if target == "" {
		return fmt.Errorf("cache-ref in namespace %q: target namespace must not be empty", a.namespace)
	}
	a.unresolvedCacheRef = true
	a.cfg.AddCacheRef(a.namespace, target)
	cc, err := a.cfg.Cache(target)
	if err != nil {
		return err
	}
	a.currentCache = cc
	a.unresolvedCacheRef = false
	return nil
}

// useNewCache builds and registers the namespace's own cache.
func (a *assistant) useNewCache(impl, eviction string, size int, flushInterval time.Duration, readOnly, blocking bool, props map[string]string) error {
	cc, err := cache.NewBuilder(a.namespace).
		Implementation(impl).
		Eviction(eviction).
		Size(size).
		FlushInterval(flushInterval).
		ReadOnly(readOnly).
		Blocking(blocking).
		Properties(props).
		Build()
	if err != nil {
		return fmt.Errorf("cache in namespace %q: %w", a.namespace, err)
	}
	if err := a.cfg.AddCache(a.namespace, cc); err != nil {
		return err
	}
	a.currentCache = cc
	a.unresolvedCacheRef = false
	return nil
}

// addStatement attaches the namespace cache and registers the statement.
func (a *assistant) addStatement(ms *mapping.MappedStatement) error {
	if a.unresolvedCacheRef {
		return registry.Incompletef("cache-ref target of namespace %q", a.namespace)
	}
	if ms.Cache == nil {
		ms.Cache = a.currentCache
	}
	return a.cfg.AddStatement(ms)
}

// addResultMap merges the extends parent (when declared) into the mapping
// list and registers the compiled map. A missing parent is an incomplete
// condition.
func (a *assistant) addResultMap(id string, typ reflect.Type, extend string, discriminator *mapping.Discriminator, mappings []*mapping.ResultMapping, autoMapping *bool) (*mapping.ResultMap, error) {
	if extend != "" {
		parent, err := a.cfg.ResultMap(extend)
		if err != nil {
			return nil, err
		}
		if parent.ID == id {
			return nil, fmt.Errorf("result map %q extends itself", id)
		}
		mappings = mergeExtended(parent.Mappings, mappings)
	}
	rm := mapping.NewResultMap(id, typ, mappings, discriminator, autoMapping)
	a.cfg.AddResultMap(rm)
	return rm, nil
}

// mergeExtended prepends the parent's mappings, dropping those the child
// redeclares. A child that declares its own constructor replaces the
// parent's constructor entirely.
func mergeExtended(parent, child []*mapping.ResultMapping) []*mapping.ResultMapping {
	childHasConstructor := false
	declared := make(map[string]struct{}, len(child))
	for _, m := range child {
		declared[mappingKey(m)] = struct{}{}
		if m.HasFlag(mapping.FlagConstructor) {
			childHasConstructor = true
		}
	}
	merged := make([]*mapping.ResultMapping, 0, len(parent)+len(child))
	for _, m := range parent {
		if _, ok := declared[mappingKey(m)]; ok {
			continue
		}
		if childHasConstructor && m.HasFlag(mapping.FlagConstructor) {
			continue
		}
		merged = append(merged, m)
	}
	return append(merged, child...)
}

func mappingKey(m *mapping.ResultMapping) string {
	if m.Property != "" {
		return "p:" + m.Property
	}
	return "c:" + m.Column
}
