// Package xmlnode provides a small mutable element tree for mapping
// documents.
//
// The builder pipeline needs more than a streaming decoder: fragment
// inclusion splices deep copies of one document's subtree into another
// document before any further compilation happens, and attribute values
// inside included subtrees are rewritten with the merged variable context.
// encoding/xml gives us tokens; this package owns the tree those tokens
// become, plus the typed attribute accessors the builders rely on.
package xmlnode
