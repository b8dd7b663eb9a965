package types

import (
	"fmt"
	"strings"
)

// SQLType is the driver-level column type tag declared with jdbcType
// attributes. The engine only carries the tag through to the execution
// collaborator; it never interprets it.
type SQLType string

var sqlTypes = map[string]SQLType{}

func init() {
	for _, name := range []string{
		"BIT", "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "FLOAT", "REAL",
		"DOUBLE", "NUMERIC", "DECIMAL", "CHAR", "VARCHAR", "LONGVARCHAR",
		"DATE", "TIME", "TIMESTAMP", "BINARY", "VARBINARY", "LONGVARBINARY",
		"BLOB", "CLOB", "BOOLEAN", "NULL", "OTHER", "UNDEFINED",
	} {
		sqlTypes[name] = SQLType(name)
	}
}

// ResolveSQLType maps a column-type name to its tag. The empty name
// resolves to the zero SQLType.
func ResolveSQLType(name string) (SQLType, error) {
	if name == "" {
		return "", nil
	}
	t, ok := sqlTypes[strings.ToUpper(name)]
	if !ok {
		return "", fmt.Errorf("unknown column type %q", name)
	}
	return t, nil
}
