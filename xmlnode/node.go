package xmlnode

import (
	"fmt"
	"strconv"
	"strings"
)

// Attr is a single name="value" pair on an element.
type Attr struct {
	Name  string
	Value string
}

// Node is one node of a parsed mapping document: either an element with a
// name, attributes and children, or a text node (Name == "" and Text set).
// Nodes are mutable on purpose; include expansion rewrites trees in place.
type Node struct {
	Name     string
	Text     string
	Attrs    []Attr
	Children []*Node

	parent *Node
}

// IsText reports whether the node is a text node.
func (n *Node) IsText() bool { return n.Name == "" }

// Parent returns the enclosing element, or nil for a document root.
func (n *Node) Parent() *Node { return n.parent }

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// StringAttr returns the named attribute value, or "" when absent.
func (n *Node) StringAttr(name string) string {
	v, _ := n.Attr(name)
	return v
}

// StringAttrDefault returns the named attribute value, or def when absent.
func (n *Node) StringAttrDefault(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr replaces the value of the named attribute, adding it if missing.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// BoolAttr parses the named attribute as a boolean, returning def when the
// attribute is absent. A malformed value is an error.
func (n *Node) BoolAttr(name string, def bool) (bool, error) {
	v, ok := n.Attr(name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("attribute %q of <%s>: %w", name, n.Name, err)
	}
	return b, nil
}

// IntAttr parses the named attribute as an int, returning def when absent.
func (n *Node) IntAttr(name string, def int) (int, error) {
	v, ok := n.Attr(name)
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("attribute %q of <%s>: %w", name, n.Name, err)
	}
	return i, nil
}

// Elements returns the element children, skipping text nodes.
func (n *Node) Elements() []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if !c.IsText() {
			out = append(out, c)
		}
	}
	return out
}

// ElementsNamed returns the element children with the given name.
func (n *Node) ElementsNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ElementNamed returns the first element child with the given name, or nil.
func (n *Node) ElementNamed(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Body returns the concatenated text of the node and all descendants, in
// document order.
func (n *Node) Body() string {
	var sb strings.Builder
	n.writeBody(&sb)
	return sb.String()
}

func (n *Node) writeBody(sb *strings.Builder) {
	if n.IsText() {
		sb.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.writeBody(sb)
	}
}

// ChildProperties collects <property name="" value=""/>-style children into
// a map. The element name of the children is not checked; only elements
// carrying a name attribute contribute.
func (n *Node) ChildProperties() map[string]string {
	props := make(map[string]string)
	for _, c := range n.Elements() {
		name, ok := c.Attr("name")
		if !ok {
			continue
		}
		props[name] = c.StringAttr("value")
	}
	return props
}

// Clone returns a deep copy of the node with no aliasing of attributes or
// children. The copy has no parent.
func (n *Node) Clone() *Node {
	cp := &Node{Name: n.Name, Text: n.Text}
	if len(n.Attrs) > 0 {
		cp.Attrs = make([]Attr, len(n.Attrs))
		copy(cp.Attrs, n.Attrs)
	}
	for _, c := range n.Children {
		cc := c.Clone()
		cc.parent = cp
		cp.Children = append(cp.Children, cc)
	}
	return cp
}

// AppendChild adds child as the last child of n.
func (n *Node) AppendChild(child *Node) {
	child.parent = n
	n.Children = append(n.Children, child)
}

// ReplaceChild swaps old for repl in n's child list. It is a no-op when old
// is not a child of n.
func (n *Node) ReplaceChild(old, repl *Node) {
	for i, c := range n.Children {
		if c == old {
			repl.parent = n
			old.parent = nil
			n.Children[i] = repl
			return
		}
	}
}

// InsertBefore inserts child immediately before ref in n's child list.
func (n *Node) InsertBefore(ref, child *Node) {
	for i, c := range n.Children {
		if c == ref {
			child.parent = n
			n.Children = append(n.Children, nil)
			copy(n.Children[i+1:], n.Children[i:])
			n.Children[i] = child
			return
		}
	}
}

// RemoveChild detaches child from n.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.Children {
		if c == child {
			child.parent = nil
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Identifier returns a location string for diagnostics, built from the
// node's ancestry and id-bearing attributes, e.g. "mapper[user]_resultMap[userMap]".
func (n *Node) Identifier() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		if cur.IsText() {
			continue
		}
		part := cur.Name
		if id, ok := cur.Attr("id"); ok {
			part += "[" + id + "]"
		} else if v, ok := cur.Attr("value"); ok {
			part += "[" + v + "]"
		} else if p, ok := cur.Attr("property"); ok {
			part += "[" + p + "]"
		} else if ns, ok := cur.Attr("namespace"); ok {
			part += "[" + ns + "]"
		}
		parts = append([]string{part}, parts...)
	}
	return strings.Join(parts, "_")
}
