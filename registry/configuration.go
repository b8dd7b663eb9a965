package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/sqlmapper/cache"
	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/types"
	"github.com/vk/sqlmapper/xmlnode"
)

// Environment is the connection target selected by the configuration
// document's default environment.
type Environment struct {
	ID     string
	Driver string
	DSN    string
}

// Configuration is the single compiled artifact produced by loading
// mapping documents. It is passed explicitly to everything that needs it.
type Configuration struct {
	Settings     Settings
	DatabaseID   string
	Environment  Environment
	Variables    map[string]string
	TypeResolver *types.Resolver
	Interceptors []mapping.Interceptor

	statements    map[string]*mapping.MappedStatement
	resultMaps    map[string]*mapping.ResultMap
	caches        map[string]cache.Cache
	cacheRefs     map[string]string
	keyGenerators map[string]mapping.KeyGenerator
	fragments     map[string]*xmlnode.Node
	loaded        map[string]struct{}

	pending pendingQueues
}

// NewConfiguration returns an empty configuration with default settings and
// a resolver preloaded with the builtin type aliases.
func NewConfiguration() *Configuration {
	return &Configuration{
		Settings:      DefaultSettings(),
		Variables:     make(map[string]string),
		TypeResolver:  types.NewResolver(),
		statements:    make(map[string]*mapping.MappedStatement),
		resultMaps:    make(map[string]*mapping.ResultMap),
		caches:        make(map[string]cache.Cache),
		cacheRefs:     make(map[string]string),
		keyGenerators: make(map[string]mapping.KeyGenerator),
		fragments:     make(map[string]*xmlnode.Node),
		loaded:        make(map[string]struct{}),
	}
}

// AddStatement stores a compiled statement under its qualified id. A
// vendor-specific entry is never displaced by a generic one; a generic
// entry yields to a vendor-specific one and to a later generic one. Two
// vendor-specific entries for the same id conflict.
func (c *Configuration) AddStatement(ms *mapping.MappedStatement) error {
	prev, ok := c.statements[ms.ID]
	if ok {
		if prev.DatabaseID != "" && ms.DatabaseID == "" {
			return nil
		}
		if prev.DatabaseID != "" && ms.DatabaseID != "" {
			return fmt.Errorf("statement %q registered twice for database %q", ms.ID, ms.DatabaseID)
		}
		slog.Warn("statement redefined, keeping the later definition",
			"statement", ms.ID, "previous", prev.Resource, "resource", ms.Resource)
	}
	c.statements[ms.ID] = ms
	return nil
}

// Statement returns the statement registered under id.
func (c *Configuration) Statement(id string) (*mapping.MappedStatement, error) {
	ms, ok := c.statements[id]
	if !ok {
		return nil, fmt.Errorf("no statement registered as %q", id)
	}
	return ms, nil
}

// HasStatement reports whether id is registered.
func (c *Configuration) HasStatement(id string) bool {
	_, ok := c.statements[id]
	return ok
}

// StatementIDs returns the registered statement ids, unordered.
func (c *Configuration) StatementIDs() []string {
	out := make([]string, 0, len(c.statements))
	for id := range c.statements {
		out = append(out, id)
	}
	return out
}

// AddResultMap stores a compiled result map under its qualified id.
func (c *Configuration) AddResultMap(rm *mapping.ResultMap) {
	c.resultMaps[rm.ID] = rm
}

// ResultMap returns the result map registered under id, or an
// IncompleteError so callers mid-build can defer.
func (c *Configuration) ResultMap(id string) (*mapping.ResultMap, error) {
	rm, ok := c.resultMaps[id]
	if !ok {
		return nil, Incompletef("result map %q", id)
	}
	return rm, nil
}

// HasResultMap reports whether id is registered.
func (c *Configuration) HasResultMap(id string) bool {
	_, ok := c.resultMaps[id]
	return ok
}

// AddCache stores the cache built for a namespace.
func (c *Configuration) AddCache(namespace string, cc cache.Cache) error {
	if _, ok := c.caches[namespace]; ok {
		return fmt.Errorf("cache for namespace %q registered twice", namespace)
	}
	c.caches[namespace] = cc
	return nil
}

// Cache returns the cache owned by (or shared into) the namespace, or an
// IncompleteError when no such cache exists yet.
func (c *Configuration) Cache(namespace string) (cache.Cache, error) {
	cc, ok := c.caches[namespace]
	if !ok {
		return nil, Incompletef("cache for namespace %q", namespace)
	}
	return cc, nil
}

// AddCacheRef records that namespace shares the cache of target.
func (c *Configuration) AddCacheRef(namespace, target string) {
	c.cacheRefs[namespace] = target
}

// CacheRef returns the namespace whose cache namespace shares, if any.
func (c *Configuration) CacheRef(namespace string) (string, bool) {
	t, ok := c.cacheRefs[namespace]
	return t, ok
}

// AddKeyGenerator registers a key generator under its qualified id.
func (c *Configuration) AddKeyGenerator(id string, kg mapping.KeyGenerator) {
	c.keyGenerators[id] = kg
}

// KeyGenerator returns the generator registered under id, or nil.
func (c *Configuration) KeyGenerator(id string) mapping.KeyGenerator {
	return c.keyGenerators[id]
}

// HasKeyGenerator reports whether id has a registered generator.
func (c *Configuration) HasKeyGenerator(id string) bool {
	_, ok := c.keyGenerators[id]
	return ok
}

// AddFragment stores a reusable sql element under its qualified id,
// applying the same vendor precedence as AddStatement. Fragment vendor
// identity is the element's databaseId attribute.
func (c *Configuration) AddFragment(id string, node *xmlnode.Node) error {
	prev, ok := c.fragments[id]
	if ok {
		prevDB := prev.StringAttr("databaseId")
		newDB := node.StringAttr("databaseId")
		if prevDB != "" && newDB == "" {
			return nil
		}
		if prevDB != "" && newDB != "" {
			return fmt.Errorf("sql fragment %q registered twice for database %q", id, newDB)
		}
	}
	c.fragments[id] = node
	return nil
}

// Fragment returns the fragment registered under id.
func (c *Configuration) Fragment(id string) (*xmlnode.Node, bool) {
	n, ok := c.fragments[id]
	return n, ok
}

// MarkLoaded records that a resource's document has been fully parsed.
func (c *Configuration) MarkLoaded(resource string) {
	c.loaded[resource] = struct{}{}
}

// IsLoaded reports whether the resource was already parsed.
func (c *Configuration) IsLoaded(resource string) bool {
	_, ok := c.loaded[resource]
	return ok
}
