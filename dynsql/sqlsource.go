package dynsql

import (
	"fmt"
	"strings"

	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/types"
)

// ParsePlaceholders replaces every #{...} marker in sql with a positional
// marker and returns the ordered parameter mappings. Marker contents are
// "property[,jdbcType=...][,typeHandler=...]".
func ParsePlaceholders(sql string) (string, []mapping.ParameterMapping, error) {
	var sb strings.Builder
	var mappings []mapping.ParameterMapping
	rest := sql
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated #{ in %q", sql)
		}
		end += start
		sb.WriteString(rest[:start])
		pm, err := parseMapping(rest[start+2 : end])
		if err != nil {
			return "", nil, err
		}
		mappings = append(mappings, pm)
		sb.WriteString("?")
		rest = rest[end+1:]
	}
	return sb.String(), mappings, nil
}

func parseMapping(content string) (mapping.ParameterMapping, error) {
	parts := strings.Split(content, ",")
	pm := mapping.ParameterMapping{Property: strings.TrimSpace(parts[0])}
	if pm.Property == "" {
		return pm, fmt.Errorf("empty parameter placeholder #{%s}", content)
	}
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return pm, fmt.Errorf("malformed placeholder attribute %q in #{%s}", part, content)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "jdbcType":
			st, err := types.ResolveSQLType(val)
			if err != nil {
				return pm, fmt.Errorf("#{%s}: %w", content, err)
			}
			pm.SQLType = st
		case "typeHandler":
			pm.TypeHandler = val
		case "mode", "javaType", "numericScale":
			// carried by the conversion layer; nothing for the engine to do
		default:
			return pm, fmt.Errorf("unknown placeholder attribute %q in #{%s}", key, content)
		}
	}
	return pm, nil
}

// DynamicSqlSource re-applies the node tree for every call.
type DynamicSqlSource struct {
	Root SqlNode
}

func (s *DynamicSqlSource) BoundSql(param any) (*mapping.BoundSql, error) {
	c := NewDynamicContext(param)
	if _, err := s.Root.Apply(c); err != nil {
		return nil, err
	}
	sql, mappings, err := ParsePlaceholders(c.SQL())
	if err != nil {
		return nil, err
	}
	return &mapping.BoundSql{
		SQL:               sql,
		ParameterMappings: mappings,
		Parameter:         param,
		AdditionalParams:  c.Bindings(),
	}, nil
}

// NewRawSqlSource applies a fully static node tree once at build time and
// precomputes the placeholder scan.
func NewRawSqlSource(root SqlNode) (mapping.SqlSource, error) {
	c := NewDynamicContext(nil)
	if _, err := root.Apply(c); err != nil {
		return nil, err
	}
	sql, mappings, err := ParsePlaceholders(c.SQL())
	if err != nil {
		return nil, err
	}
	return &mapping.StaticSqlSource{SQL: sql, Mappings: mappings}, nil
}
