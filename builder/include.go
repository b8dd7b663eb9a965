package builder

import (
	"fmt"
	"strings"

	"github.com/vk/sqlmapper/registry"
	"github.com/vk/sqlmapper/xmlnode"
)

// applyIncludes replaces every include element under node with a deep copy
// of the referenced fragment, innermost first. The expansion never touches
// registered fragments, so repeating it over the same registry is
// idempotent. A fragment not registered yet is an incomplete condition.
func applyIncludes(cfg *registry.Configuration, a *assistant, node *xmlnode.Node, vars map[string]string) error {
	return expandIncludes(cfg, a, node, vars, false)
}

func expandIncludes(cfg *registry.Configuration, a *assistant, node *xmlnode.Node, vars map[string]string, included bool) error {
	if node.IsText() {
		if included && len(vars) > 0 {
			node.Text = xmlnode.SubstituteVars(node.Text, vars)
		}
		return nil
	}
	if node.Name == "include" {
		return spliceInclude(cfg, a, node, vars)
	}
	if included && len(vars) > 0 {
		for i := range node.Attrs {
			node.Attrs[i].Value = xmlnode.SubstituteVars(node.Attrs[i].Value, vars)
		}
	}
	// Snapshot: splicing replaces children in place.
	children := make([]*xmlnode.Node, len(node.Children))
	copy(children, node.Children)
	for _, c := range children {
		if err := expandIncludes(cfg, a, c, vars, included); err != nil {
			return err
		}
	}
	return nil
}

func spliceInclude(cfg *registry.Configuration, a *assistant, inc *xmlnode.Node, vars map[string]string) error {
	refid := xmlnode.SubstituteVars(inc.StringAttr("refid"), vars)
	if refid == "" {
		return fmt.Errorf("%s: include requires a refid attribute", inc.Identifier())
	}
	if !strings.Contains(refid, ".") {
		refid = a.namespace + "." + refid
	}
	frag, ok := cfg.Fragment(refid)
	if !ok {
		return registry.Incompletef("sql fragment %q", refid)
	}
	frag = frag.Clone()

	childVars, err := includeVariables(inc, vars)
	if err != nil {
		return err
	}
	// Expand nested includes inside the copy first, so fragments may build
	// on other fragments.
	if err := expandIncludes(cfg, a, frag, childVars, true); err != nil {
		return err
	}

	parent := inc.Parent()
	if parent == nil {
		return fmt.Errorf("%s: include has no enclosing element", inc.Identifier())
	}
	parent.ReplaceChild(inc, frag)
	children := make([]*xmlnode.Node, len(frag.Children))
	copy(children, frag.Children)
	for _, c := range children {
		parent.InsertBefore(frag, c)
	}
	parent.RemoveChild(frag)
	return nil
}

// includeVariables merges the include's property children over the
// inherited variables. Declaring the same name twice on one include is
// fatal.
func includeVariables(inc *xmlnode.Node, inherited map[string]string) (map[string]string, error) {
	props := inc.ElementsNamed("property")
	if len(props) == 0 {
		return inherited, nil
	}
	merged := make(map[string]string, len(inherited)+len(props))
	for k, v := range inherited {
		merged[k] = v
	}
	declared := make(map[string]struct{}, len(props))
	for _, p := range props {
		name, ok := p.Attr("name")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: include property requires a name", inc.Identifier())
		}
		if _, dup := declared[name]; dup {
			return nil, fmt.Errorf("%s: include variable %q defined twice", inc.Identifier(), name)
		}
		declared[name] = struct{}{}
		merged[name] = xmlnode.SubstituteVars(p.StringAttr("value"), inherited)
	}
	return merged, nil
}
