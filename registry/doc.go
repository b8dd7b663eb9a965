// Package registry holds the compiled configuration: statements, result
// maps, caches, fragments and key generators keyed by qualified id, plus
// the deferred-resolution queues that let documents reference artifacts
// declared in documents loaded later.
//
// The registry is mutable during the build phase only. Once loading has
// finished the maps are read without locking; concurrent readers are safe
// because nothing writes after build.
package registry
