package mapping

import (
	"reflect"

	"github.com/vk/sqlmapper/types"
)

// ResultFlag marks a mapping's role within its result map.
type ResultFlag int

const (
	// FlagID marks an identifying mapping used for row-group identity.
	FlagID ResultFlag = 1 << iota
	// FlagConstructor marks a constructor-argument mapping.
	FlagConstructor
)

// ResultMapping is one column-to-property rule.
type ResultMapping struct {
	Property        string
	Column          string
	JavaType        reflect.Type
	SQLType         types.SQLType
	TypeHandler     string
	NestedSelect    string
	NestedResultMap string
	NotNullColumns  []string
	ColumnPrefix    string
	ResultSet       string
	ForeignColumn   string
	Lazy            bool
	Flags           ResultFlag
}

// HasFlag reports whether the mapping carries the given flag.
func (m *ResultMapping) HasFlag(f ResultFlag) bool { return m.Flags&f != 0 }

// Discriminator routes a row to one of several result maps based on a
// column value.
type Discriminator struct {
	Column   string
	SQLType  types.SQLType
	CaseMaps map[string]string
}

// ResultMapFor returns the result-map id mapped to the discriminator value.
func (d *Discriminator) ResultMapFor(value string) (string, bool) {
	id, ok := d.CaseMaps[value]
	return id, ok
}

// ResultMap is one compiled result-mapping rule set.
type ResultMap struct {
	ID   string
	Type reflect.Type

	Mappings            []*ResultMapping
	IDMappings          []*ResultMapping
	ConstructorMappings []*ResultMapping
	MappedColumns       map[string]struct{}

	Discriminator *Discriminator
	AutoMapping   *bool

	HasNestedResultMaps bool
	HasNestedQueries    bool
}

// NewResultMap derives the id/constructor views and the column index from
// the ordered mapping list.
func NewResultMap(id string, typ reflect.Type, mappings []*ResultMapping, discriminator *Discriminator, autoMapping *bool) *ResultMap {
	rm := &ResultMap{
		ID:            id,
		Type:          typ,
		Mappings:      mappings,
		Discriminator: discriminator,
		AutoMapping:   autoMapping,
		MappedColumns: make(map[string]struct{}, len(mappings)),
	}
	for _, m := range mappings {
		if m.NestedResultMap != "" && m.ResultSet == "" {
			rm.HasNestedResultMaps = true
		}
		if m.NestedSelect != "" {
			rm.HasNestedQueries = true
		}
		if m.Column != "" {
			rm.MappedColumns[m.Column] = struct{}{}
		}
		if m.HasFlag(FlagConstructor) {
			rm.ConstructorMappings = append(rm.ConstructorMappings, m)
		}
		if m.HasFlag(FlagID) {
			rm.IDMappings = append(rm.IDMappings, m)
		}
	}
	// Without declared id mappings every mapping participates in identity.
	if len(rm.IDMappings) == 0 {
		rm.IDMappings = rm.Mappings
	}
	return rm
}
