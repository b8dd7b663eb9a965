package builder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vk/sqlmapper/internal/ctxlog"
	"github.com/vk/sqlmapper/registry"
	"github.com/vk/sqlmapper/xmlnode"
)

// MapperBuilder parses one mapper document into the shared configuration.
type MapperBuilder struct {
	cfg      *registry.Configuration
	resource string
	asst     *assistant
}

// NewMapperBuilder prepares a builder for the document identified by
// resource. The resource name is the dedup key for repeated loads.
func NewMapperBuilder(cfg *registry.Configuration, resource string) *MapperBuilder {
	return &MapperBuilder{cfg: cfg, resource: resource, asst: newAssistant(cfg, resource)}
}

// Parse loads the document, registers everything it declares, marks the
// resource loaded and retries all pending artifacts. Parsing an already
// loaded resource is a no-op.
func (b *MapperBuilder) Parse(ctx context.Context, r io.Reader) error {
	if b.cfg.IsLoaded(b.resource) {
		ctxlog.FromContext(ctx).Debug("resource already loaded", "resource", b.resource)
		return nil
	}
	root, err := xmlnode.Parse(r)
	if err != nil {
		return fmt.Errorf("resource %q: %w", b.resource, err)
	}
	if root.Name != "mapper" {
		return fmt.Errorf("resource %q: root element is <%s>, want <mapper>", b.resource, root.Name)
	}
	if err := b.asst.setNamespace(root.StringAttr("namespace")); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("loading mapper", "resource", b.resource, "namespace", b.asst.namespace)

	if err := b.cacheRefElement(root.ElementNamed("cache-ref")); err != nil {
		return err
	}
	if err := b.cacheElement(root.ElementNamed("cache")); err != nil {
		return err
	}
	for _, rm := range root.ElementsNamed("resultMap") {
		if err := b.resultMapElement(rm); err != nil {
			return err
		}
	}
	if err := b.sqlElements(root.ElementsNamed("sql")); err != nil {
		return err
	}
	if err := b.statementElements(root); err != nil {
		return err
	}

	b.cfg.MarkLoaded(b.resource)
	return b.cfg.DrainPending(ctx)
}

// cacheRefResolver retries pointing the namespace at a cache declared in a
// document loaded later.
type cacheRefResolver struct {
	asst   *assistant
	target string
}

func (r *cacheRefResolver) Description() string {
	return fmt.Sprintf("cache-ref %q -> %q", r.asst.namespace, r.target)
}

func (r *cacheRefResolver) Resolve() error { return r.asst.useCacheRef(r.target) }

func (b *MapperBuilder) cacheRefElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	resolver := &cacheRefResolver{asst: b.asst, target: node.StringAttr("namespace")}
	err := resolver.Resolve()
	if registry.IsIncomplete(err) {
		b.cfg.DeferCacheRef(resolver)
		return nil
	}
	return err
}

func (b *MapperBuilder) cacheElement(node *xmlnode.Node) error {
	if node == nil {
		return nil
	}
	size, err := node.IntAttr("size", 0)
	if err != nil {
		return err
	}
	flushMS, err := node.IntAttr("flushInterval", 0)
	if err != nil {
		return err
	}
	readOnly, err := node.BoolAttr("readOnly", false)
	if err != nil {
		return err
	}
	blocking, err := node.BoolAttr("blocking", false)
	if err != nil {
		return err
	}
	return b.asst.useNewCache(
		node.StringAttr("type"),
		node.StringAttr("eviction"),
		size,
		time.Duration(flushMS)*time.Millisecond,
		readOnly,
		blocking,
		node.ChildProperties(),
	)
}

func (b *MapperBuilder) resultMapElement(node *xmlnode.Node) error {
	resolver, err := parseResultMap(b.asst, node, nil)
	if err != nil {
		if registry.IsIncomplete(err) {
			// A nested map referenced something unloaded; parsing itself
			// can be retried wholesale.
			b.cfg.DeferResultMap(&reparseResultMap{asst: b.asst, node: node})
			return nil
		}
		return err
	}
	err = resolver.Resolve()
	if registry.IsIncomplete(err) {
		b.cfg.DeferResultMap(resolver)
		return nil
	}
	return err
}

// reparseResultMap defers a result map whose parsing (not just its
// registration) hit a missing dependency.
type reparseResultMap struct {
	asst *assistant
	node *xmlnode.Node
}

func (r *reparseResultMap) Description() string {
	return fmt.Sprintf("result map %s", r.node.Identifier())
}

func (r *reparseResultMap) Resolve() error {
	resolver, err := parseResultMap(r.asst, r.node, nil)
	if err != nil {
		return err
	}
	return resolver.Resolve()
}

// sqlElements registers reusable fragments, vendor pass first.
func (b *MapperBuilder) sqlElements(nodes []*xmlnode.Node) error {
	if b.cfg.DatabaseID != "" {
		for _, n := range nodes {
			if n.StringAttr("databaseId") == b.cfg.DatabaseID {
				if err := b.addFragment(n); err != nil {
					return err
				}
			}
		}
	}
	for _, n := range nodes {
		if n.StringAttr("databaseId") == "" {
			if err := b.addFragment(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *MapperBuilder) addFragment(node *xmlnode.Node) error {
	id, ok := node.Attr("id")
	if !ok || id == "" {
		return fmt.Errorf("%s: sql fragment requires an id", node.Identifier())
	}
	qid, err := b.asst.qualify(id, false)
	if err != nil {
		return err
	}
	return b.cfg.AddFragment(qid, node)
}

// statementElements compiles the statements, vendor pass first so generic
// variants yield to vendor-specific ones.
func (b *MapperBuilder) statementElements(root *xmlnode.Node) error {
	var statements []*xmlnode.Node
	for _, n := range root.Elements() {
		switch n.Name {
		case "select", "insert", "update", "delete":
			statements = append(statements, n)
		}
	}
	if b.cfg.DatabaseID != "" {
		if err := b.statementPass(statements, b.cfg.DatabaseID); err != nil {
			return err
		}
	}
	return b.statementPass(statements, "")
}

func (b *MapperBuilder) statementPass(nodes []*xmlnode.Node, requiredDatabaseID string) error {
	for _, n := range nodes {
		sb := &statementBuilder{cfg: b.cfg, asst: b.asst, node: n, requiredDatabaseID: requiredDatabaseID}
		err := sb.Resolve()
		if registry.IsIncomplete(err) {
			b.cfg.DeferStatement(sb)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
