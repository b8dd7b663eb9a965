package sqlmapper

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/sqlmapper/binding"
	"github.com/vk/sqlmapper/builder"
	"github.com/vk/sqlmapper/internal/ctxlog"
	"github.com/vk/sqlmapper/loader"
	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/registry"
)

// Load parses a configuration document and every mapper resource it lists,
// reading all of them through ld.
func Load(ctx context.Context, ld loader.Loader, resource string) (*registry.Configuration, error) {
	rc, err := ld.Open(resource)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return builder.NewConfigBuilder(ld).Parse(ctx, rc)
}

// Engine executes compiled statements: it layers the namespace caches and
// key generation over a base executor, applies the configured interceptor
// chain, and hands out typed mapper bindings.
type Engine struct {
	cfg     *registry.Configuration
	base    mapping.Executor
	mappers *binding.MapperRegistry
}

// New wraps base with the configuration's interceptors, outermost last.
func New(cfg *registry.Configuration, base mapping.Executor) *Engine {
	for _, ic := range cfg.Interceptors {
		base = ic.Plugin(base)
	}
	e := &Engine{cfg: cfg, base: base}
	// Mapper calls route through the engine itself, so they get caching
	// and key generation like direct calls do.
	e.mappers = binding.NewMapperRegistry(cfg, e)
	return e
}

// Configuration returns the compiled configuration the engine runs.
func (e *Engine) Configuration() *registry.Configuration { return e.cfg }

// RegisterMapper binds a contract struct's func fields to statements.
func (e *Engine) RegisterMapper(contract any) error { return e.mappers.Register(contract) }

// Mappers exposes the dispatcher, mainly for Require checks.
func (e *Engine) Mappers() *binding.MapperRegistry { return e.mappers }

// Select runs the select statement registered under id.
func (e *Engine) Select(ctx context.Context, id string, param any) ([]map[string]any, error) {
	ms, err := e.cfg.Statement(id)
	if err != nil {
		return nil, err
	}
	return e.Query(ctx, ms, param)
}

// SelectOne runs a select expected to produce at most one row; zero rows
// yield nil.
func (e *Engine) SelectOne(ctx context.Context, id string, param any) (map[string]any, error) {
	rows, err := e.Select(ctx, id, param)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	}
	return nil, fmt.Errorf("statement %q returned %d rows, want at most 1", id, len(rows))
}

// Exec runs the write statement registered under id.
func (e *Engine) Exec(ctx context.Context, id string, param any) (mapping.Result, error) {
	ms, err := e.cfg.Statement(id)
	if err != nil {
		return mapping.Result{}, err
	}
	return e.Update(ctx, ms, param)
}

// Query implements mapping.Executor with the statement's cache semantics:
// flushCache clears the namespace cache first, useCache serves and stores
// rows keyed by the bound SQL and its arguments.
func (e *Engine) Query(ctx context.Context, ms *mapping.MappedStatement, param any) ([]map[string]any, error) {
	cc := ms.Cache
	if cc == nil || !e.cfg.Settings.CacheEnabled {
		return e.base.Query(ctx, ms, param)
	}
	if ms.FlushCache {
		cc.Clear()
	}
	// Nested result maps group rows across cache entries; caching them
	// would serve partial aggregates.
	if !ms.UseCache || ms.HasNestedResultMaps() {
		return e.base.Query(ctx, ms, param)
	}

	key, err := cacheKey(ms, param)
	if err != nil {
		return nil, err
	}
	if hit, ok := cc.Get(key); ok {
		ctxlog.FromContext(ctx).Debug("cache hit", "statement", ms.ID)
		return hit.([]map[string]any), nil
	}
	rows, err := e.base.Query(ctx, ms, param)
	if err != nil {
		// A blocking cache holds the key after a miss; release it.
		cc.Remove(key)
		return nil, err
	}
	cc.Put(key, rows)
	return rows, nil
}

// Update implements mapping.Executor, flushing the namespace cache and
// running the statement's key generator around the write.
func (e *Engine) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (mapping.Result, error) {
	if ms.Cache != nil && e.cfg.Settings.CacheEnabled && ms.FlushCache {
		ms.Cache.Clear()
	}
	kg := ms.KeyGenerator
	if kg != nil {
		if err := kg.ProcessBefore(ctx, e.base, ms, param); err != nil {
			return mapping.Result{}, err
		}
	}
	res, err := e.base.Update(ctx, ms, param)
	if err != nil {
		return mapping.Result{}, err
	}
	if kg != nil {
		if err := kg.ProcessAfter(ctx, e.base, ms, param, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// cacheKey identifies one query execution: the statement, its final SQL
// and the rendered arguments. SqlSource purity makes the key stable for
// equal parameter objects.
func cacheKey(ms *mapping.MappedStatement, param any) (string, error) {
	bs, err := ms.SqlSource.BoundSql(param)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(ms.ID)
	sb.WriteByte('\x1f')
	sb.WriteString(bs.SQL)
	for _, pm := range bs.ParameterMappings {
		v, err := bs.ParameterValue(pm)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "\x1f%v", v)
	}
	return sb.String(), nil
}
