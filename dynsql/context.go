package dynsql

import (
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/sqlmapper/types"
)

// DynamicContext accumulates SQL text and named bindings while a node tree
// is applied for one parameter object. A fresh context is created per
// BoundSql call; nodes never write through to themselves.
type DynamicContext struct {
	param any
	sb    strings.Builder
	binds map[string]any
	uniq  *int
}

// NewDynamicContext starts an empty context for the given parameter object.
func NewDynamicContext(param any) *DynamicContext {
	return &DynamicContext{param: param, binds: make(map[string]any), uniq: new(int)}
}

// AppendSQL adds a piece of SQL text. Pieces are joined with single spaces;
// blank pieces are dropped.
func (c *DynamicContext) AppendSQL(s string) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return
	}
	if c.sb.Len() > 0 {
		c.sb.WriteByte(' ')
	}
	c.sb.WriteString(trimmed)
}

// SQL returns the accumulated text.
func (c *DynamicContext) SQL() string { return c.sb.String() }

// Bind names an intermediate value visible to subsequent expressions and
// parameter bindings.
func (c *DynamicContext) Bind(name string, value any) {
	c.binds[name] = value
}

// Bindings returns the bound values accumulated so far.
func (c *DynamicContext) Bindings() map[string]any { return c.binds }

// ResolveProperty reads a dotted property path, consulting bound values
// before the parameter object.
func (c *DynamicContext) ResolveProperty(path string) (any, error) {
	root := path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		root = path[:i]
	}
	if v, ok := c.binds[root]; ok {
		if root == path {
			return v, nil
		}
		return types.GetProperty(map[string]any{root: v}, path)
	}
	return types.GetProperty(c.param, path)
}

// Eval evaluates a build-time expression against the parameter object and
// the bindings accumulated so far. The scope is rebuilt per evaluation:
// bind nodes may have extended it since the last call.
func (c *DynamicContext) Eval(e *Expr) (cty.Value, error) {
	return e.value(scopeVariables(c.param, c.binds))
}

// EvalTruthy evaluates e and folds the result to a condition boolean.
func (c *DynamicContext) EvalTruthy(e *Expr) (bool, error) {
	v, err := c.Eval(e)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// child returns a context capturing SQL separately while sharing the
// parameter object, the binding map and the unique-suffix counter.
func (c *DynamicContext) child() *DynamicContext {
	return &DynamicContext{param: c.param, binds: c.binds, uniq: c.uniq}
}

func (c *DynamicContext) uniqueNumber() int {
	n := *c.uniq
	*c.uniq++
	return n
}
