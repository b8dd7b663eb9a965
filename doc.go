// Package sqlmapper compiles declarative XML mapping documents into an
// executable statement registry and dispatches typed mapper calls against
// it.
//
// A configuration document selects settings, an environment and the mapper
// documents to load; mapper documents declare caches, reusable SQL
// fragments, result maps and statements. Documents may reference artifacts
// from documents loaded later; resolution is deferred and retried after
// every load, so load order never matters. Statement bodies are dynamic:
// conditions, iteration and text substitution are evaluated per call
// against the parameter object.
package sqlmapper
