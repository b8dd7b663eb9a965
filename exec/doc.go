// Package exec supplies the execution-side collaborators: a database/sql
// backed executor that runs bound statements, and the key-generator
// strategies that fill primary-key properties on inserted parameter
// objects.
package exec
