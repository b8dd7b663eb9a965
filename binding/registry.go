package binding

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/registry"
)

// MapperRegistry binds contract structs to statements and dispatches their
// calls through the executor.
type MapperRegistry struct {
	cfg  *registry.Configuration
	exec mapping.Executor

	mu    sync.Mutex
	known map[reflect.Type]struct{}

	// methods caches one MapperMethod per operation, built on first call.
	// LoadOrStore makes concurrent first calls converge on one instance.
	methods       sync.Map
	constructions atomic.Int64
}

// NewMapperRegistry dispatches through exec for statements compiled into
// cfg.
func NewMapperRegistry(cfg *registry.Configuration, exec mapping.Executor) *MapperRegistry {
	return &MapperRegistry{cfg: cfg, exec: exec, known: make(map[reflect.Type]struct{})}
}

// binding is one validated field-to-statement association, staged so
// registration can be all-or-nothing.
type fieldBinding struct {
	field       reflect.StructField
	statementID string
	shape       methodShape
}

// Register fills contract's exported func fields with dispatch closures.
// Contract must be a pointer to a struct; anything else, or a struct with
// no func fields, is a no-op. Every binding is validated before any field
// is touched: one bad operation rejects the whole contract.
func (r *MapperRegistry) Register(contract any) error {
	t := reflect.TypeOf(contract)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil
	}
	elem := t.Elem()

	var bindings []fieldBinding
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Field(i)
		if !f.IsExported() || f.Type.Kind() != reflect.Func {
			continue
		}
		shape, _, err := analyzeSignature(f.Type)
		if err != nil {
			return fmt.Errorf("mapper %s.%s: %w", elem.Name(), f.Name, err)
		}
		id, err := r.statementID(elem, f)
		if err != nil {
			return err
		}
		ms, err := r.cfg.Statement(id)
		if err != nil {
			return fmt.Errorf("mapper %s.%s: %w", elem.Name(), f.Name, err)
		}
		// Shape compatibility is checked now so registration fails eagerly,
		// even though the method record is built lazily.
		if _, err := newMapperMethod(ms, shape); err != nil {
			return fmt.Errorf("mapper %s.%s: %w", elem.Name(), f.Name, err)
		}
		bindings = append(bindings, fieldBinding{field: f, statementID: id, shape: shape})
	}
	if len(bindings) == 0 {
		return nil
	}

	r.mu.Lock()
	if _, dup := r.known[t]; dup {
		r.mu.Unlock()
		return fmt.Errorf("mapper type %s registered twice", t)
	}
	r.known[t] = struct{}{}
	r.mu.Unlock()

	v := reflect.ValueOf(contract).Elem()
	for _, b := range bindings {
		r.install(v, elem, b)
	}
	return nil
}

// statementID derives the statement bound to a field: the mapstmt tag when
// present (qualified with the type name if bare), otherwise
// TypeName.fieldName with the field's first letter lowered.
func (r *MapperRegistry) statementID(elem reflect.Type, f reflect.StructField) (string, error) {
	if tag, ok := f.Tag.Lookup("mapstmt"); ok {
		if tag == "" {
			return "", fmt.Errorf("mapper %s.%s: empty mapstmt tag", elem.Name(), f.Name)
		}
		if strings.Contains(tag, ".") {
			return tag, nil
		}
		return elem.Name() + "." + tag, nil
	}
	conventional := elem.Name() + "." + lowerFirst(f.Name)
	if r.cfg.HasStatement(conventional) {
		return conventional, nil
	}
	// Documents sometimes keep exported-style ids.
	return elem.Name() + "." + f.Name, nil
}

func (r *MapperRegistry) install(structVal reflect.Value, elem reflect.Type, b fieldBinding) {
	key := elem.String() + "." + b.field.Name
	ft := b.field.Type
	hasParam := ft.NumIn() == 2

	fn := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)
		var param any
		if hasParam {
			param = args[1].Interface()
		}
		var out any
		m, err := r.method(key, b)
		if err == nil {
			out, err = m.call(ctx, r.exec, param)
		}
		if ft.NumOut() == 1 {
			return []reflect.Value{errValue(err)}
		}
		res := reflect.Zero(ft.Out(0))
		if err == nil && out != nil {
			res = reflect.ValueOf(out).Convert(ft.Out(0))
		}
		return []reflect.Value{res, errValue(err)}
	})
	structVal.FieldByIndex(b.field.Index).Set(fn)
}

// errValue wraps err as a reflect value of the error interface type; a nil
// error needs the typed zero value, not an untyped nil.
func errValue(err error) reflect.Value {
	if err == nil {
		return reflect.Zero(errType)
	}
	return reflect.ValueOf(err)
}

// method resolves the cached MapperMethod for one operation, constructing
// it at most effectively once.
func (r *MapperRegistry) method(key string, b fieldBinding) (*MapperMethod, error) {
	if m, ok := r.methods.Load(key); ok {
		return m.(*MapperMethod), nil
	}
	ms, err := r.cfg.Statement(b.statementID)
	if err != nil {
		return nil, err
	}
	built, err := newMapperMethod(ms, b.shape)
	if err != nil {
		return nil, err
	}
	r.constructions.Add(1)
	actual, _ := r.methods.LoadOrStore(key, built)
	return actual.(*MapperMethod), nil
}

// MethodConstructions reports how many MapperMethod records have been
// built; repeated calls to the same operation must not grow it.
func (r *MapperRegistry) MethodConstructions() int64 { return r.constructions.Load() }

// Require verifies that contract's type has been registered, naming the
// type when it has not.
func (r *MapperRegistry) Require(contract any) error {
	t := reflect.TypeOf(contract)
	r.mu.Lock()
	_, ok := r.known[t]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("mapper type %v is not registered", t)
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return s
	}
	return string(s[0]+'a'-'A') + s[1:]
}
