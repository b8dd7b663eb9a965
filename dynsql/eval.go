package dynsql

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Expr is a test/bind/substitution expression parsed once at build time.
type Expr struct {
	Src  string
	expr hcl.Expression
}

// ParseExpr parses src as an HCL expression. The name is used in
// diagnostics only.
func ParseExpr(src, name string) (*Expr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), name, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing expression %q: %s", src, diags.Error())
	}
	return &Expr{Src: src, expr: expr}, nil
}

func (e *Expr) value(vars map[string]cty.Value) (cty.Value, error) {
	v, diags := e.expr.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating %q: %s", e.Src, diags.Error())
	}
	return v, nil
}

// Truthy folds a cty value to a boolean the way dynamic SQL conditions
// expect: null and unknown are false, booleans are themselves, numbers are
// true when non-zero, strings when non-empty, collections when non-empty.
func Truthy(v cty.Value) bool {
	if v == cty.NilVal || v.IsNull() || !v.IsKnown() {
		return false
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return v.True()
	case ty == cty.Number:
		return v.AsBigFloat().Sign() != 0
	case ty == cty.String:
		return v.AsString() != ""
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType() || ty.IsMapType() || ty.IsObjectType():
		return v.LengthInt() > 0
	}
	return true
}

// scopeVariables derives the evaluation scope from the parameter object:
// the whole object is bound as _parameter, every top-level map key or
// exported struct field becomes a variable, and bound values override both.
// Struct fields are additionally visible under their lower-first-letter
// name to match the property spelling used in documents.
func scopeVariables(param any, binds map[string]any) map[string]cty.Value {
	vars := make(map[string]cty.Value)
	vars["_parameter"] = ctyValue(param)

	rv := reflect.ValueOf(param)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}
	if rv.IsValid() {
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() == reflect.String {
				for _, k := range rv.MapKeys() {
					vars[k.String()] = ctyValue(rv.MapIndex(k).Interface())
				}
			}
		case reflect.Struct:
			st := rv.Type()
			for i := 0; i < st.NumField(); i++ {
				f := st.Field(i)
				if !f.IsExported() {
					continue
				}
				v := ctyValue(rv.Field(i).Interface())
				vars[f.Name] = v
				if lower := lowerFirst(f.Name); lower != f.Name {
					vars[lower] = v
				}
			}
		default:
			vars["value"] = vars["_parameter"]
		}
	}
	for k, v := range binds {
		vars[k] = ctyValue(v)
	}
	return vars
}

func lowerFirst(s string) string {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return s
	}
	return string(s[0]+'a'-'A') + s[1:]
}

// ctyValue converts an arbitrary Go value into a cty value, best effort.
// Values with no cty analogue fall back to their string form; they can
// still be compared and substituted, just not arithmetically.
func ctyValue(v any) cty.Value {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	switch tv := v.(type) {
	case bool:
		return cty.BoolVal(tv)
	case string:
		return cty.StringVal(tv)
	case []byte:
		return cty.StringVal(string(tv))
	case time.Time:
		return cty.StringVal(tv.Format(time.RFC3339))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType)
		}
		return ctyValue(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cty.NumberUIntVal(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return cty.NumberFloatVal(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, rv.Len())
		for i := range vals {
			vals[i] = ctyValue(rv.Index(i).Interface())
		}
		return cty.TupleVal(vals)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return cty.StringVal(fmt.Sprint(v))
		}
		if rv.Len() == 0 {
			return cty.EmptyObjectVal
		}
		vals := make(map[string]cty.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			vals[k.String()] = ctyValue(rv.MapIndex(k).Interface())
		}
		return cty.ObjectVal(vals)
	case reflect.Struct:
		st := rv.Type()
		vals := make(map[string]cty.Value)
		for i := 0; i < st.NumField(); i++ {
			f := st.Field(i)
			if !f.IsExported() {
				continue
			}
			fv := ctyValue(rv.Field(i).Interface())
			vals[f.Name] = fv
			if lower := lowerFirst(f.Name); lower != f.Name {
				vals[lower] = fv
			}
		}
		if len(vals) == 0 {
			return cty.EmptyObjectVal
		}
		return cty.ObjectVal(vals)
	}
	return cty.StringVal(fmt.Sprint(v))
}

// nativeValue folds a cty value back to a plain Go value for parameter
// binding: null→nil, bool, string, whole numbers→int64, other
// numbers→float64, collections→[]any / map[string]any.
func nativeValue(v cty.Value) any {
	if v == cty.NilVal || v.IsNull() {
		return nil
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return v.True()
	case ty == cty.String:
		return v.AsString()
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if i, acc := bf.Int64(); acc == 0 {
			return i
		}
		f, _ := bf.Float64()
		return f
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, nativeValue(ev))
		}
		return out
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			out[kv.AsString()] = nativeValue(ev)
		}
		return out
	}
	if s, err := convert.Convert(v, cty.String); err == nil {
		return s.AsString()
	}
	return nil
}

// stringValue renders a cty value for ${...} text substitution.
func stringValue(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("substitution produced null")
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("substitution result is not text-convertible: %w", err)
	}
	return s.AsString(), nil
}

// sortedKeys returns map keys in a stable order so iteration output is
// deterministic across calls.
func sortedKeys(rv reflect.Value) []reflect.Value {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
