// Package binding connects typed mapper contracts to compiled statements.
// A contract is a pointer to a struct whose exported func-typed fields are
// the operations; registration fills each field with a closure routing to
// the executor. Methods declared directly on the struct are left alone and
// dispatch natively.
package binding
