package dynsql

import (
	"fmt"
	"reflect"
	"strings"
)

// SqlNode is one node of a compiled statement body. Apply writes the
// node's contribution for this call into the context and reports whether
// anything was contributed.
type SqlNode interface {
	Apply(c *DynamicContext) (bool, error)
}

// MixedNode applies its children in order.
type MixedNode []SqlNode

func (n MixedNode) Apply(c *DynamicContext) (bool, error) {
	applied := false
	for _, child := range n {
		ok, err := child.Apply(c)
		if err != nil {
			return false, err
		}
		applied = applied || ok
	}
	return applied, nil
}

// StaticTextNode is literal SQL text with no runtime substitutions.
type StaticTextNode struct {
	Text string
}

func (n *StaticTextNode) Apply(c *DynamicContext) (bool, error) {
	c.AppendSQL(n.Text)
	return strings.TrimSpace(n.Text) != "", nil
}

// textSegment is either literal text or a parsed ${...} expression.
type textSegment struct {
	literal string
	expr    *Expr
}

// TextNode is SQL text containing runtime ${...} substitutions, split into
// segments at build time.
type TextNode struct {
	segments []textSegment
}

// NewTextNode splits text on ${...} markers, parsing each inner expression
// once. The second result reports whether any substitution is present.
func NewTextNode(text string) (SqlNode, bool, error) {
	var segs []textSegment
	rest := text
	dynamic := false
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			break
		}
		end += start
		expr, err := ParseExpr(strings.TrimSpace(rest[start+2:end]), "${...}")
		if err != nil {
			return nil, false, err
		}
		segs = append(segs, textSegment{literal: rest[:start]}, textSegment{expr: expr})
		rest = rest[end+1:]
		dynamic = true
	}
	if !dynamic {
		return &StaticTextNode{Text: text}, false, nil
	}
	segs = append(segs, textSegment{literal: rest})
	return &TextNode{segments: segs}, true, nil
}

func (n *TextNode) Apply(c *DynamicContext) (bool, error) {
	var sb strings.Builder
	for _, seg := range n.segments {
		if seg.expr == nil {
			sb.WriteString(seg.literal)
			continue
		}
		v, err := c.Eval(seg.expr)
		if err != nil {
			return false, err
		}
		s, err := stringValue(v)
		if err != nil {
			return false, fmt.Errorf("${%s}: %w", seg.expr.Src, err)
		}
		sb.WriteString(s)
	}
	c.AppendSQL(sb.String())
	return true, nil
}

// IfNode applies its contents when the test expression is truthy.
type IfNode struct {
	Test     *Expr
	Contents SqlNode
}

func (n *IfNode) Apply(c *DynamicContext) (bool, error) {
	ok, err := c.EvalTruthy(n.Test)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if _, err := n.Contents.Apply(c); err != nil {
		return false, err
	}
	return true, nil
}

// ChooseNode applies the first when-branch whose test is truthy, falling
// back to the otherwise-branch.
type ChooseNode struct {
	Whens     []*IfNode
	Otherwise SqlNode
}

func (n *ChooseNode) Apply(c *DynamicContext) (bool, error) {
	for _, when := range n.Whens {
		ok, err := when.Apply(c)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if n.Otherwise != nil {
		return n.Otherwise.Apply(c)
	}
	return false, nil
}

// BindNode computes a value and names it for subsequent expressions and
// parameter bindings.
type BindNode struct {
	Name  string
	Value *Expr
}

func (n *BindNode) Apply(c *DynamicContext) (bool, error) {
	v, err := c.Eval(n.Value)
	if err != nil {
		return false, fmt.Errorf("bind %q: %w", n.Name, err)
	}
	c.Bind(n.Name, nativeValue(v))
	return true, nil
}

// TrimNode wraps its contents with a prefix/suffix and strips unwanted
// leading/trailing tokens, the basis for <where> and <set>.
type TrimNode struct {
	Contents        SqlNode
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
}

// NewWhereNode wraps contents in WHERE, dropping a leading AND/OR.
func NewWhereNode(contents SqlNode) *TrimNode {
	return &TrimNode{
		Contents:        contents,
		Prefix:          "WHERE",
		PrefixOverrides: []string{"AND ", "OR "},
	}
}

// NewSetNode wraps contents in SET, dropping stray commas.
func NewSetNode(contents SqlNode) *TrimNode {
	return &TrimNode{
		Contents:        contents,
		Prefix:          "SET",
		PrefixOverrides: []string{","},
		SuffixOverrides: []string{","},
	}
}

func (n *TrimNode) Apply(c *DynamicContext) (bool, error) {
	sub := c.child()
	if _, err := n.Contents.Apply(sub); err != nil {
		return false, err
	}
	text := strings.TrimSpace(sub.SQL())
	for _, ov := range n.PrefixOverrides {
		if len(text) >= len(ov) && strings.EqualFold(text[:len(ov)], ov) {
			text = strings.TrimSpace(text[len(ov):])
			break
		}
	}
	for _, ov := range n.SuffixOverrides {
		trimmed := strings.TrimRight(ov, " ")
		if len(text) >= len(trimmed) && strings.EqualFold(text[len(text)-len(trimmed):], trimmed) {
			text = strings.TrimSpace(text[:len(text)-len(trimmed)])
			break
		}
	}
	if text == "" {
		return false, nil
	}
	if n.Prefix != "" {
		text = n.Prefix + " " + text
	}
	if n.Suffix != "" {
		text = text + " " + n.Suffix
	}
	c.AppendSQL(text)
	return true, nil
}

// ForEachNode emits its contents once per element of a collection-valued
// property, binding the item and index names into scope for each pass.
// Placeholders referencing the item/index are rewritten to per-iteration
// binding names so the bindings survive into the bound SQL.
type ForEachNode struct {
	Collection string
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
	Contents   SqlNode
}

const itemPrefix = "__frch_"

func (n *ForEachNode) Apply(c *DynamicContext) (bool, error) {
	col, err := c.ResolveProperty(n.Collection)
	if err != nil {
		return false, fmt.Errorf("foreach collection %q: %w", n.Collection, err)
	}
	if col == nil {
		return false, nil
	}
	rv := reflect.ValueOf(col)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}

	type entry struct{ index, item any }
	var entries []entry
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			entries = append(entries, entry{index: i, item: rv.Index(i).Interface()})
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return false, fmt.Errorf("foreach collection %q: map keys must be strings", n.Collection)
		}
		for _, k := range sortedKeys(rv) {
			entries = append(entries, entry{index: k.String(), item: rv.MapIndex(k).Interface()})
		}
	default:
		return false, fmt.Errorf("foreach collection %q: cannot iterate %s", n.Collection, rv.Kind())
	}
	if len(entries) == 0 {
		return false, nil
	}

	var sb strings.Builder
	sb.WriteString(n.Open)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(n.Separator)
		}
		num := c.uniqueNumber()
		itemKey := fmt.Sprintf("%s%s_%d", itemPrefix, n.Item, num)
		indexKey := fmt.Sprintf("%s%s_%d", itemPrefix, n.Index, num)
		c.Bind(n.Item, e.item)
		c.Bind(itemKey, e.item)
		c.Bind(n.Index, e.index)
		c.Bind(indexKey, e.index)

		sub := c.child()
		if _, err := n.Contents.Apply(sub); err != nil {
			return false, err
		}
		body := sub.SQL()
		body = rewritePlaceholders(body, n.Item, itemKey)
		body = rewritePlaceholders(body, n.Index, indexKey)
		sb.WriteString(body)
	}
	sb.WriteString(n.Close)
	c.AppendSQL(sb.String())
	return true, nil
}

// rewritePlaceholders renames the leading path segment of #{...} contents
// from name to repl, leaving nested paths and binding attributes intact.
func rewritePlaceholders(sql, name, repl string) string {
	var sb strings.Builder
	rest := sql
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start
		sb.WriteString(rest[:start])
		content := rest[start+2 : end]
		path := content
		attrs := ""
		if i := strings.IndexByte(content, ','); i >= 0 {
			path, attrs = content[:i], content[i:]
		}
		path = strings.TrimSpace(path)
		switch {
		case path == name:
			path = repl
		case strings.HasPrefix(path, name+"."):
			path = repl + path[len(name):]
		}
		sb.WriteString("#{")
		sb.WriteString(path)
		sb.WriteString(attrs)
		sb.WriteString("}")
		rest = rest[end+1:]
	}
	return sb.String()
}
