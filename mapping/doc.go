// Package mapping defines the compiled entities produced by the build
// pipeline — statements, result maps, discriminators, bound SQL — and the
// collaborator contracts consumed at call time: the SQL source, the
// execution engine, and the key-generation strategy.
//
// Everything here is immutable once a configuration load finishes, which is
// what lets the registry serve unlimited concurrent lookups without locking.
package mapping
