// Package builder parses configuration and mapper documents into the
// compiled registry. Parsing is multi-pass: an element that references an
// artifact from a document not loaded yet is queued as a deferred resolver
// and retried after every subsequent document, so load order between
// documents never matters.
package builder
