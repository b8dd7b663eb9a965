// Package types supplies the type-resolution and reflection capabilities
// consumed by the builders and key generators: an alias table mapping the
// type names written in mapping documents to runtime types, column-type
// name resolution, and property metadata for arbitrary parameter and
// result objects.
//
// Nothing in here reaches for a global registry; a Resolver is constructed
// per configuration load and injected into every builder that needs it.
package types
