package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/sqlmapper/cache"
	"github.com/vk/sqlmapper/types"
)

// CommandType classifies a statement element by its tag.
type CommandType int

const (
	CommandUnknown CommandType = iota
	CommandSelect
	CommandInsert
	CommandUpdate
	CommandDelete
)

// CommandTypeOf maps a statement element name to its command type.
func CommandTypeOf(element string) (CommandType, error) {
	switch strings.ToLower(element) {
	case "select":
		return CommandSelect, nil
	case "insert":
		return CommandInsert, nil
	case "update":
		return CommandUpdate, nil
	case "delete":
		return CommandDelete, nil
	}
	return CommandUnknown, fmt.Errorf("unknown statement element <%s>", element)
}

func (c CommandType) String() string {
	switch c {
	case CommandSelect:
		return "SELECT"
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	}
	return "UNKNOWN"
}

// IsWrite reports whether the command mutates data.
func (c CommandType) IsWrite() bool {
	return c == CommandInsert || c == CommandUpdate || c == CommandDelete
}

// StatementType selects the execution mode handed to the driver.
type StatementType int

const (
	StatementPrepared StatementType = iota
	StatementStatement
	StatementCallable
)

// StatementTypeOf parses a statementType attribute; the empty string is the
// PREPARED default.
func StatementTypeOf(s string) (StatementType, error) {
	switch strings.ToUpper(s) {
	case "", "PREPARED":
		return StatementPrepared, nil
	case "STATEMENT":
		return StatementStatement, nil
	case "CALLABLE":
		return StatementCallable, nil
	}
	return StatementPrepared, fmt.Errorf("unknown statementType %q", s)
}

// ParameterMapping is one positional binding produced by placeholder
// scanning: the property path to read off the parameter object, plus
// optional per-binding hints.
type ParameterMapping struct {
	Property    string
	SQLType     types.SQLType
	TypeHandler string
}

// BoundSql is the final, executable form of a statement for one parameter
// object: SQL text with positional markers, the ordered bindings, and any
// additional values contributed by bind nodes or iteration scopes.
type BoundSql struct {
	SQL               string
	ParameterMappings []ParameterMapping
	Parameter         any
	AdditionalParams  map[string]any
}

// ParameterValue resolves one binding against the parameter object,
// consulting the additional values first.
func (b *BoundSql) ParameterValue(pm ParameterMapping) (any, error) {
	if v, ok := b.AdditionalParams[pm.Property]; ok {
		return v, nil
	}
	if v, ok := b.AdditionalParams[rootSegment(pm.Property)]; ok {
		return types.GetProperty(map[string]any{rootSegment(pm.Property): v}, pm.Property)
	}
	if b.Parameter == nil {
		return nil, nil
	}
	if isScalar(b.Parameter) {
		return b.Parameter, nil
	}
	return types.GetProperty(b.Parameter, pm.Property)
}

func rootSegment(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func isScalar(v any) bool {
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// SqlSource produces BoundSql for a parameter object. Implementations must
// be pure: the same parameter object always regenerates the same SQL and
// bindings, and no internal state changes across calls.
type SqlSource interface {
	BoundSql(param any) (*BoundSql, error)
}

// StaticSqlSource is a SqlSource whose SQL and bindings were fixed at build
// time.
type StaticSqlSource struct {
	SQL      string
	Mappings []ParameterMapping
}

func (s *StaticSqlSource) BoundSql(param any) (*BoundSql, error) {
	return &BoundSql{SQL: s.SQL, ParameterMappings: s.Mappings, Parameter: param}, nil
}

// MappedStatement is one compiled statement. Identity is the
// namespace-qualified id plus the optional vendor id.
type MappedStatement struct {
	ID            string
	DatabaseID    string
	Resource      string
	CommandType   CommandType
	StatementType StatementType
	SqlSource     SqlSource

	FetchSize     int
	Timeout       int
	FlushCache    bool
	UseCache      bool
	ResultOrdered bool

	ParameterType reflect.Type
	ResultType    reflect.Type
	ResultMaps    []*ResultMap
	ResultSets    []string

	KeyGenerator  KeyGenerator
	KeyProperties []string
	KeyColumns    []string

	Cache cache.Cache
}

// HasNestedResultMaps reports whether any attached result map declares
// nested maps, which disables caching of row groups upstream.
func (ms *MappedStatement) HasNestedResultMaps() bool {
	for _, rm := range ms.ResultMaps {
		if rm.HasNestedResultMaps {
			return true
		}
	}
	return false
}
