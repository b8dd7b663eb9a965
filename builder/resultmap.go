package builder

import (
	"fmt"
	"reflect"

	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/types"
	"github.com/vk/sqlmapper/xmlnode"
)

// resultMapResolver holds the fully parsed ingredients of one result map
// and registers it on Resolve. Registration is what can be incomplete: the
// extends parent may live in a document not loaded yet.
type resultMapResolver struct {
	asst          *assistant
	id            string
	typ           reflect.Type
	extend        string
	discriminator *mapping.Discriminator
	mappings      []*mapping.ResultMapping
	autoMapping   *bool
}

func (r *resultMapResolver) Description() string {
	return fmt.Sprintf("result map %q (extends %q)", r.id, r.extend)
}

func (r *resultMapResolver) Resolve() error {
	_, err := r.asst.addResultMap(r.id, r.typ, r.extend, r.discriminator, r.mappings, r.autoMapping)
	return err
}

// parseResultMap parses a resultMap element (or an inline association,
// collection or case element) into a resolver. enclosingType carries the
// declaring map's type so nested elements can infer theirs.
func parseResultMap(a *assistant, node *xmlnode.Node, enclosingType reflect.Type) (*resultMapResolver, error) {
	id := node.StringAttr("id")
	if id == "" {
		// Anonymous nested maps get a structural identity so equal shapes
		// land on the same registration.
		id = node.Identifier()
	}
	qid, err := a.qualify(id, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.Identifier(), err)
	}

	typ, err := declaredType(a, node)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.Identifier(), err)
	}
	if typ == nil {
		typ, err = inferredType(node, enclosingType)
		if err != nil {
			return nil, err
		}
	}
	if typ == nil {
		return nil, fmt.Errorf("%s: cannot determine result type", node.Identifier())
	}

	var autoMapping *bool
	if _, ok := node.Attr("autoMapping"); ok {
		b, err := node.BoolAttr("autoMapping", false)
		if err != nil {
			return nil, err
		}
		autoMapping = &b
	}

	var discriminator *mapping.Discriminator
	var mappings []*mapping.ResultMapping
	for _, child := range node.Elements() {
		switch child.Name {
		case "constructor":
			for _, arg := range child.Elements() {
				flags := mapping.FlagConstructor
				if arg.Name == "idArg" {
					flags |= mapping.FlagID
				}
				m, err := parseResultMapping(a, arg, typ, flags)
				if err != nil {
					return nil, err
				}
				mappings = append(mappings, m)
			}
		case "discriminator":
			discriminator, err = parseDiscriminator(a, child, typ)
			if err != nil {
				return nil, err
			}
		case "id", "result", "association", "collection":
			var flags mapping.ResultFlag
			if child.Name == "id" {
				flags |= mapping.FlagID
			}
			m, err := parseResultMapping(a, child, typ, flags)
			if err != nil {
				return nil, err
			}
			mappings = append(mappings, m)
		default:
			return nil, fmt.Errorf("%s: unexpected element <%s> in result map", node.Identifier(), child.Name)
		}
	}

	extend := node.StringAttr("extends")
	if extend != "" {
		if extend, err = a.qualify(extend, true); err != nil {
			return nil, err
		}
		if extend == qid {
			return nil, fmt.Errorf("%s: result map extends itself", node.Identifier())
		}
	}
	return &resultMapResolver{
		asst:          a,
		id:            qid,
		typ:           typ,
		extend:        extend,
		discriminator: discriminator,
		mappings:      mappings,
		autoMapping:   autoMapping,
	}, nil
}

// declaredType reads whichever type attribute the element carries.
func declaredType(a *assistant, node *xmlnode.Node) (reflect.Type, error) {
	for _, attr := range []string{"type", "ofType", "resultType", "javaType"} {
		if name, ok := node.Attr(attr); ok {
			return a.cfg.TypeResolver.Resolve(name)
		}
	}
	return nil, nil
}

// inferredType derives an undeclared type from the enclosing map: an
// association or case takes the target property's type; a case with no
// property keeps the enclosing type itself.
func inferredType(node *xmlnode.Node, enclosingType reflect.Type) (reflect.Type, error) {
	if enclosingType == nil {
		return nil, nil
	}
	switch node.Name {
	case "association":
		prop := node.StringAttr("property")
		if prop == "" {
			return nil, nil
		}
		if t, ok := types.PropertyType(enclosingType, prop); ok {
			return t, nil
		}
		return nil, nil
	case "case":
		return enclosingType, nil
	}
	return nil, nil
}

// parseResultMapping reads one column-to-property rule.
func parseResultMapping(a *assistant, node *xmlnode.Node, enclosingType reflect.Type, flags mapping.ResultFlag) (*mapping.ResultMapping, error) {
	property := node.StringAttr("property")
	if property == "" {
		// Constructor args use name instead of property.
		property = node.StringAttr("name")
	}

	javaType, err := a.cfg.TypeResolver.ResolveOptional(node.StringAttr("javaType"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.Identifier(), err)
	}
	sqlType, err := types.ResolveSQLType(node.StringAttr("jdbcType"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.Identifier(), err)
	}

	nestedSelect := node.StringAttr("select")
	if nestedSelect != "" {
		if nestedSelect, err = a.qualify(nestedSelect, true); err != nil {
			return nil, err
		}
	}
	nestedResultMap, err := nestedResultMapID(a, node, enclosingType, javaType)
	if err != nil {
		return nil, err
	}

	lazy := a.cfg.Settings.LazyLoadingEnabled
	switch node.StringAttr("fetchType") {
	case "lazy":
		lazy = true
	case "eager":
		lazy = false
	case "":
	default:
		return nil, fmt.Errorf("%s: fetchType must be lazy or eager", node.Identifier())
	}

	return &mapping.ResultMapping{
		Property:        property,
		Column:          node.StringAttr("column"),
		JavaType:        javaType,
		SQLType:         sqlType,
		TypeHandler:     node.StringAttr("typeHandler"),
		NestedSelect:    nestedSelect,
		NestedResultMap: nestedResultMap,
		NotNullColumns:  splitList(node.StringAttr("notNullColumn")),
		ColumnPrefix:    node.StringAttr("columnPrefix"),
		ResultSet:       node.StringAttr("resultSet"),
		ForeignColumn:   node.StringAttr("foreignColumn"),
		Lazy:            lazy,
		Flags:           flags,
	}, nil
}

// nestedResultMapID returns the id of the mapping's nested result map: the
// resultMap attribute when present, otherwise a map built from the
// element's own children. A collection with neither a nested shape nor a
// declarable element type is ambiguous and fails hard.
func nestedResultMapID(a *assistant, node *xmlnode.Node, enclosingType, javaType reflect.Type) (string, error) {
	if ref, ok := node.Attr("resultMap"); ok {
		return a.qualify(ref, true)
	}
	if node.Name == "collection" && node.StringAttr("select") == "" && javaType == nil && !hasTypeAttr(node) {
		return "", fmt.Errorf("%s: ambiguous collection %q: declare ofType, javaType or resultMap",
			node.Identifier(), node.StringAttr("property"))
	}
	isContainer := node.Name == "association" || node.Name == "collection" || node.Name == "case"
	if !isContainer || len(node.Elements()) == 0 {
		return "", nil
	}
	nested, err := parseResultMap(a, node, enclosingType)
	if err != nil {
		return "", err
	}
	if err := nested.Resolve(); err != nil {
		return "", err
	}
	return nested.id, nil
}

func hasTypeAttr(node *xmlnode.Node) bool {
	for _, attr := range []string{"type", "ofType", "resultType", "javaType"} {
		if _, ok := node.Attr(attr); ok {
			return true
		}
	}
	return false
}

// parseDiscriminator reads a discriminator element and registers its
// inline case maps.
func parseDiscriminator(a *assistant, node *xmlnode.Node, enclosingType reflect.Type) (*mapping.Discriminator, error) {
	column := node.StringAttr("column")
	if column == "" {
		return nil, fmt.Errorf("%s: discriminator requires a column", node.Identifier())
	}
	sqlType, err := types.ResolveSQLType(node.StringAttr("jdbcType"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node.Identifier(), err)
	}

	caseMaps := make(map[string]string)
	for _, c := range node.ElementsNamed("case") {
		value, ok := c.Attr("value")
		if !ok {
			return nil, fmt.Errorf("%s: discriminator case requires a value", c.Identifier())
		}
		id, err := nestedResultMapID(a, c, enclosingType, nil)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, fmt.Errorf("%s: discriminator case needs a resultMap or nested mappings", c.Identifier())
		}
		caseMaps[value] = id
	}
	if len(caseMaps) == 0 {
		return nil, fmt.Errorf("%s: discriminator declares no cases", node.Identifier())
	}
	return &mapping.Discriminator{Column: column, SQLType: sqlType, CaseMaps: caseMaps}, nil
}
