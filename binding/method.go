package binding

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/sqlmapper/mapping"
)

// methodShape classifies a supported operation signature by its results.
type methodShape int

const (
	// shapeExec is func(ctx[, param]) error, valid for writes.
	shapeExec methodShape = iota
	// shapeExecRows is func(ctx[, param]) (int64, error), valid for writes.
	shapeExecRows
	// shapeMany is func(ctx[, param]) ([]map[string]any, error).
	shapeMany
	// shapeOne is func(ctx[, param]) (map[string]any, error); more than one
	// row is an error, zero rows yield nil.
	shapeOne
)

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType   = reflect.TypeOf((*error)(nil)).Elem()
	int64Type = reflect.TypeOf(int64(0))
	rowType   = reflect.TypeOf(map[string]any(nil))
	rowsType  = reflect.TypeOf([]map[string]any(nil))
)

// analyzeSignature validates a func field's shape: a leading
// context.Context, an optional parameter, and a supported result list
// ending in error.
func analyzeSignature(ft reflect.Type) (methodShape, bool, error) {
	if ft.IsVariadic() {
		return 0, false, fmt.Errorf("variadic signatures are not supported")
	}
	if ft.NumIn() < 1 || ft.NumIn() > 2 || ft.In(0) != ctxType {
		return 0, false, fmt.Errorf("want func(ctx context.Context[, param]) ..., got %s", ft)
	}
	hasParam := ft.NumIn() == 2
	if ft.NumOut() < 1 || ft.NumOut() > 2 || ft.Out(ft.NumOut()-1) != errType {
		return 0, false, fmt.Errorf("results must end in error, got %s", ft)
	}
	if ft.NumOut() == 1 {
		return shapeExec, hasParam, nil
	}
	switch ft.Out(0) {
	case int64Type:
		return shapeExecRows, hasParam, nil
	case rowsType:
		return shapeMany, hasParam, nil
	case rowType:
		return shapeOne, hasParam, nil
	}
	return 0, false, fmt.Errorf("unsupported result type %s", ft.Out(0))
}

// MapperMethod is the per-operation dispatch record: the resolved
// statement and the shape of the declared signature.
type MapperMethod struct {
	statement *mapping.MappedStatement
	shape     methodShape
}

func newMapperMethod(ms *mapping.MappedStatement, shape methodShape) (*MapperMethod, error) {
	isSelect := ms.CommandType == mapping.CommandSelect
	switch shape {
	case shapeMany, shapeOne:
		if !isSelect {
			return nil, fmt.Errorf("statement %q is %s; row-returning signatures need a select", ms.ID, ms.CommandType)
		}
	default:
		if isSelect {
			return nil, fmt.Errorf("statement %q is a select; the signature must return rows", ms.ID)
		}
	}
	return &MapperMethod{statement: ms, shape: shape}, nil
}

// call executes the bound statement and folds the outcome into the
// declared result shape. The non-error result comes first, matching the
// declared signature.
func (m *MapperMethod) call(ctx context.Context, exec mapping.Executor, param any) (any, error) {
	switch m.shape {
	case shapeExec:
		_, err := exec.Update(ctx, m.statement, param)
		return nil, err
	case shapeExecRows:
		res, err := exec.Update(ctx, m.statement, param)
		return res.RowsAffected, err
	case shapeMany:
		return exec.Query(ctx, m.statement, param)
	case shapeOne:
		rows, err := exec.Query(ctx, m.statement, param)
		if err != nil {
			return nil, err
		}
		switch len(rows) {
		case 0:
			return map[string]any(nil), nil
		case 1:
			return rows[0], nil
		}
		return nil, fmt.Errorf("statement %q returned %d rows, want at most 1", m.statement.ID, len(rows))
	}
	return nil, fmt.Errorf("statement %q: unknown dispatch shape", m.statement.ID)
}
