// Package dynsql compiles a statement body into a tree of text,
// conditional, iteration and bind nodes, and turns that tree plus a
// runtime parameter object into final SQL text with an ordered list of
// positional parameter bindings.
//
// Conditions (<if test>, <when test>) and runtime ${...} substitutions are
// HCL expressions, parsed once at build time with hclsyntax and evaluated
// against a cty scope derived from the parameter object and any values
// bound so far. Node trees never mutate themselves across calls: the same
// parameter object always regenerates the same SQL and bindings.
package dynsql
