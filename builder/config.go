package builder

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/vk/sqlmapper/internal/ctxlog"
	"github.com/vk/sqlmapper/loader"
	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/registry"
	"github.com/vk/sqlmapper/xmlnode"
)

// InterceptorFactory builds one plugin instance from its property
// children.
type InterceptorFactory func(props map[string]string) (mapping.Interceptor, error)

// ConfigBuilder parses the top-level configuration document and loads the
// mapper resources it lists.
type ConfigBuilder struct {
	cfg          *registry.Configuration
	ld           loader.Loader
	interceptors map[string]InterceptorFactory
}

// NewConfigBuilder prepares a builder reading external resources through
// ld.
func NewConfigBuilder(ld loader.Loader) *ConfigBuilder {
	return &ConfigBuilder{
		cfg:          registry.NewConfiguration(),
		ld:           ld,
		interceptors: make(map[string]InterceptorFactory),
	}
}

// Configuration exposes the configuration being built, so callers can
// register application types before parsing.
func (b *ConfigBuilder) Configuration() *registry.Configuration { return b.cfg }

// RegisterInterceptor makes a plugin name instantiable from the plugins
// element.
func (b *ConfigBuilder) RegisterInterceptor(name string, f InterceptorFactory) {
	b.interceptors[name] = f
}

// Parse reads a configuration document. Elements are processed in a fixed
// order: properties, settings, typeAliases, plugins, environments,
// databaseIdProvider, then mappers, so every earlier element influences
// the later ones regardless of document order.
func (b *ConfigBuilder) Parse(ctx context.Context, r io.Reader) (*registry.Configuration, error) {
	root, err := xmlnode.Parse(r)
	if err != nil {
		return nil, err
	}
	if root.Name != "configuration" {
		return nil, fmt.Errorf("root element is <%s>, want <configuration>", root.Name)
	}

	if err := b.propertiesElement(root.ElementNamed("properties")); err != nil {
		return nil, err
	}
	if node := root.ElementNamed("settings"); node != nil {
		if err := b.cfg.Settings.Apply(node.ChildProperties()); err != nil {
			return nil, err
		}
	}
	if err := b.typeAliasesElement(root.ElementNamed("typeAliases")); err != nil {
		return nil, err
	}
	if err := b.pluginsElement(root.ElementNamed("plugins")); err != nil {
		return nil, err
	}
	if err := b.environmentsElement(root.ElementNamed("environments")); err != nil {
		return nil, err
	}
	if err := b.databaseIDElement(root.ElementNamed("databaseIdProvider")); err != nil {
		return nil, err
	}
	if err := b.mappersElement(ctx, root.ElementNamed("mappers")); err != nil {
		return nil, err
	}
	return b.cfg, nil
}

// propertiesElement merges build-time variables: inline children first,
// then an external resource, with programmatically preset variables
// keeping the last word.
func (b *ConfigBuilder) propertiesElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	resource, hasResource := node.Attr("resource")
	url, hasURL := node.Attr("url")
	if hasResource && hasURL {
		return fmt.Errorf("properties element declares both resource %q and url %q", resource, url)
	}

	merged := node.ChildProperties()
	external := resource
	if hasURL {
		external = url
	}
	if external != "" {
		rc, err := b.ld.Open(external)
		if err != nil {
			return err
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("reading properties %q: %w", external, err)
		}
		var fromFile map[string]string
		if err := yaml.Unmarshal(raw, &fromFile); err != nil {
			return fmt.Errorf("parsing properties %q: %w", external, err)
		}
		for k, v := range fromFile {
			merged[k] = v
		}
	}
	for k, v := range b.cfg.Variables {
		merged[k] = v
	}
	b.cfg.Variables = merged
	return nil
}

func (b *ConfigBuilder) typeAliasesElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	for _, c := range node.Elements() {
		if c.Name != "typeAlias" {
			return fmt.Errorf("%s: unexpected <%s> in typeAliases", node.Identifier(), c.Name)
		}
		alias, typeName := c.StringAttr("alias"), c.StringAttr("type")
		if alias == "" || typeName == "" {
			return fmt.Errorf("%s: typeAlias requires alias and type", c.Identifier())
		}
		if err := b.cfg.TypeResolver.AliasFor(alias, typeName); err != nil {
			return err
		}
	}
	return nil
}

func (b *ConfigBuilder) pluginsElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	for _, c := range node.ElementsNamed("plugin") {
		name := c.StringAttr("interceptor")
		factory, ok := b.interceptors[name]
		if !ok {
			return fmt.Errorf("plugin %q is not registered", name)
		}
		ic, err := factory(c.ChildProperties())
		if err != nil {
			return fmt.Errorf("plugin %q: %w", name, err)
		}
		b.cfg.Interceptors = append(b.cfg.Interceptors, ic)
	}
	return nil
}

func (b *ConfigBuilder) environmentsElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	def := node.StringAttr("default")
	if def == "" {
		return fmt.Errorf("environments element requires a default attribute")
	}
	for _, env := range node.ElementsNamed("environment") {
		if env.StringAttr("id") != def {
			continue
		}
		ds := env.ElementNamed("dataSource")
		if ds == nil {
			return fmt.Errorf("environment %q declares no dataSource", def)
		}
		props := ds.ChildProperties()
		b.cfg.Environment = registry.Environment{
			ID:     def,
			Driver: props["driver"],
			DSN:    props["dsn"],
		}
		return nil
	}
	return fmt.Errorf("default environment %q not declared", def)
}

// databaseIDElement derives the active vendor id from the environment's
// driver name via the provider's property table.
func (b *ConfigBuilder) databaseIDElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	if typ := node.StringAttrDefault("type", "DB_VENDOR"); typ != "DB_VENDOR" {
		return fmt.Errorf("unknown databaseIdProvider type %q", typ)
	}
	if id, ok := node.ChildProperties()[b.cfg.Environment.Driver]; ok {
		b.cfg.DatabaseID = id
	}
	return nil
}

func (b *ConfigBuilder) mappersElement(ctx context.Context, node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	for _, c := range node.Elements() {
		if c.Name != "mapper" {
			return fmt.Errorf("%s: unexpected <%s> in mappers", node.Identifier(), c.Name)
		}
		resource := c.StringAttr("resource")
		if resource == "" {
			resource = c.StringAttr("url")
		}
		if resource == "" {
			return fmt.Errorf("%s: mapper requires a resource or url", c.Identifier())
		}
		if err := b.loadMapper(ctx, resource); err != nil {
			return err
		}
	}
	return nil
}

// LoadMapper parses one additional mapper resource into the configuration,
// usable after Parse for late-registered documents.
func (b *ConfigBuilder) LoadMapper(ctx context.Context, resource string) error {
	return b.loadMapper(ctx, resource)
}

func (b *ConfigBuilder) loadMapper(ctx context.Context, resource string) error {
	rc, err := b.ld.Open(resource)
	if err != nil {
		return err
	}
	defer rc.Close()
	ctxlog.FromContext(ctx).Debug("loading mapper resource", "resource", resource)
	return NewMapperBuilder(b.cfg, resource).Parse(ctx, rc)
}
