package dynsql

import (
	"fmt"
	"strings"

	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/xmlnode"
)

// BuildSqlSource compiles the body of a statement element into a SqlSource.
// Build-time ${...} variables are substituted into text as the tree is
// walked; a body left with no runtime conditions, iterations or
// substitutions compiles to a precomputed static source.
func BuildSqlSource(node *xmlnode.Node, vars map[string]string) (mapping.SqlSource, error) {
	root, dynamic, err := buildMixed(node, vars)
	if err != nil {
		return nil, err
	}
	if dynamic {
		return &DynamicSqlSource{Root: root}, nil
	}
	return NewRawSqlSource(root)
}

// buildMixed compiles the children of an element into a MixedNode and
// reports whether any of them needs runtime evaluation.
func buildMixed(parent *xmlnode.Node, vars map[string]string) (SqlNode, bool, error) {
	var nodes MixedNode
	dynamic := false
	for _, child := range parent.Children {
		if child.IsText() {
			n, dyn, err := NewTextNode(xmlnode.SubstituteVars(child.Text, vars))
			if err != nil {
				return nil, false, fmt.Errorf("%s: %w", parent.Identifier(), err)
			}
			nodes = append(nodes, n)
			dynamic = dynamic || dyn
			continue
		}
		n, err := buildElement(child, vars)
		if err != nil {
			return nil, false, err
		}
		nodes = append(nodes, n)
		dynamic = true
	}
	return nodes, dynamic, nil
}

func buildElement(el *xmlnode.Node, vars map[string]string) (SqlNode, error) {
	switch el.Name {
	case "if":
		return buildIf(el, vars)

	case "choose":
		choose := &ChooseNode{}
		for _, c := range el.Elements() {
			switch c.Name {
			case "when":
				when, err := buildIf(c, vars)
				if err != nil {
					return nil, err
				}
				choose.Whens = append(choose.Whens, when)
			case "otherwise":
				if choose.Otherwise != nil {
					return nil, fmt.Errorf("%s: multiple <otherwise> branches", el.Identifier())
				}
				contents, _, err := buildMixed(c, vars)
				if err != nil {
					return nil, err
				}
				choose.Otherwise = contents
			default:
				return nil, fmt.Errorf("%s: unexpected <%s> inside <choose>", el.Identifier(), c.Name)
			}
		}
		if len(choose.Whens) == 0 {
			return nil, fmt.Errorf("%s: <choose> needs at least one <when>", el.Identifier())
		}
		return choose, nil

	case "where":
		contents, _, err := buildMixed(el, vars)
		if err != nil {
			return nil, err
		}
		return NewWhereNode(contents), nil

	case "set":
		contents, _, err := buildMixed(el, vars)
		if err != nil {
			return nil, err
		}
		return NewSetNode(contents), nil

	case "trim":
		contents, _, err := buildMixed(el, vars)
		if err != nil {
			return nil, err
		}
		return &TrimNode{
			Contents:        contents,
			Prefix:          el.StringAttr("prefix"),
			Suffix:          el.StringAttr("suffix"),
			PrefixOverrides: splitOverrides(el.StringAttr("prefixOverrides")),
			SuffixOverrides: splitOverrides(el.StringAttr("suffixOverrides")),
		}, nil

	case "foreach":
		collection, ok := el.Attr("collection")
		if !ok {
			return nil, fmt.Errorf("%s: <foreach> requires a collection attribute", el.Identifier())
		}
		contents, _, err := buildMixed(el, vars)
		if err != nil {
			return nil, err
		}
		return &ForEachNode{
			Collection: collection,
			Item:       el.StringAttrDefault("item", "item"),
			Index:      el.StringAttrDefault("index", "index"),
			Open:       el.StringAttr("open"),
			Close:      el.StringAttr("close"),
			Separator:  el.StringAttr("separator"),
			Contents:   contents,
		}, nil

	case "bind":
		name, ok := el.Attr("name")
		if !ok {
			return nil, fmt.Errorf("%s: <bind> requires a name attribute", el.Identifier())
		}
		src, ok := el.Attr("value")
		if !ok {
			return nil, fmt.Errorf("%s: <bind> requires a value attribute", el.Identifier())
		}
		expr, err := ParseExpr(xmlnode.SubstituteVars(src, vars), el.Identifier())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", el.Identifier(), err)
		}
		return &BindNode{Name: name, Value: expr}, nil
	}
	return nil, fmt.Errorf("%s: unknown dynamic element <%s>", el.Identifier(), el.Name)
}

func buildIf(el *xmlnode.Node, vars map[string]string) (*IfNode, error) {
	src, ok := el.Attr("test")
	if !ok {
		return nil, fmt.Errorf("%s: <%s> requires a test attribute", el.Identifier(), el.Name)
	}
	test, err := ParseExpr(xmlnode.SubstituteVars(src, vars), el.Identifier())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", el.Identifier(), err)
	}
	contents, _, err := buildMixed(el, vars)
	if err != nil {
		return nil, err
	}
	return &IfNode{Test: test, Contents: contents}, nil
}

// splitOverrides splits a pipe-separated override list, keeping spacing
// inside each alternative.
func splitOverrides(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}
