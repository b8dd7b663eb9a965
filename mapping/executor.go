package mapping

import "context"

// Result reports the outcome of a write command.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Executor is the execution collaborator: it runs a compiled statement's
// bound SQL against a connection and returns rows or an affected-row
// result. Row shape is one string-keyed map per row; value conversion
// beyond the driver's is owned by the (external) conversion layer.
type Executor interface {
	Query(ctx context.Context, ms *MappedStatement, param any) ([]map[string]any, error)
	Update(ctx context.Context, ms *MappedStatement, param any) (Result, error)
}

// KeyGenerator is the strategy producing primary-key values for inserted
// rows. ProcessBefore runs before the main statement, ProcessAfter after it
// with the statement's Result.
type KeyGenerator interface {
	ProcessBefore(ctx context.Context, exec Executor, ms *MappedStatement, param any) error
	ProcessAfter(ctx context.Context, exec Executor, ms *MappedStatement, param any, res Result) error
}

// Interceptor wraps the executor with cross-cutting behavior; plugins
// declared in the configuration document are applied outermost-last.
type Interceptor interface {
	Plugin(next Executor) Executor
}
