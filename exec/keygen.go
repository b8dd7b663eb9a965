package exec

import (
	"context"
	"fmt"

	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/types"
)

// NoKeyGenerator is the strategy for statements that produce no keys.
type NoKeyGenerator struct{}

func (NoKeyGenerator) ProcessBefore(context.Context, mapping.Executor, *mapping.MappedStatement, any) error {
	return nil
}

func (NoKeyGenerator) ProcessAfter(context.Context, mapping.Executor, *mapping.MappedStatement, any, mapping.Result) error {
	return nil
}

// DriverKeyGenerator assigns the driver-reported last insert id to the
// statement's first key property.
type DriverKeyGenerator struct{}

func (DriverKeyGenerator) ProcessBefore(context.Context, mapping.Executor, *mapping.MappedStatement, any) error {
	return nil
}

func (DriverKeyGenerator) ProcessAfter(_ context.Context, _ mapping.Executor, ms *mapping.MappedStatement, param any, res mapping.Result) error {
	if param == nil || len(ms.KeyProperties) == 0 {
		return nil
	}
	if err := types.SetProperty(param, ms.KeyProperties[0], res.LastInsertID); err != nil {
		return fmt.Errorf("statement %q: assigning generated key: %w", ms.ID, err)
	}
	return nil
}

// SelectKeyGenerator obtains key values by running a companion query and
// writing the resulting columns onto the parameter object, either before
// or after the owning statement.
type SelectKeyGenerator struct {
	keyStatement *mapping.MappedStatement
	before       bool
}

// NewSelectKeyGenerator wraps the companion key statement. before selects
// the BEFORE ordering; the default ordering runs after the owning
// statement.
func NewSelectKeyGenerator(keyStatement *mapping.MappedStatement, before bool) *SelectKeyGenerator {
	return &SelectKeyGenerator{keyStatement: keyStatement, before: before}
}

// KeyStatement exposes the companion statement, mainly for inspection in
// diagnostics.
func (g *SelectKeyGenerator) KeyStatement() *mapping.MappedStatement { return g.keyStatement }

func (g *SelectKeyGenerator) ProcessBefore(ctx context.Context, exec mapping.Executor, _ *mapping.MappedStatement, param any) error {
	if !g.before {
		return nil
	}
	return g.run(ctx, exec, param)
}

func (g *SelectKeyGenerator) ProcessAfter(ctx context.Context, exec mapping.Executor, _ *mapping.MappedStatement, param any, _ mapping.Result) error {
	if g.before {
		return nil
	}
	return g.run(ctx, exec, param)
}

func (g *SelectKeyGenerator) run(ctx context.Context, exec mapping.Executor, param any) error {
	if param == nil || len(g.keyStatement.KeyProperties) == 0 {
		return nil
	}
	rows, err := exec.Query(ctx, g.keyStatement, param)
	if err != nil {
		return fmt.Errorf("key statement %q: %w", g.keyStatement.ID, err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("key statement %q returned %d rows, want exactly 1", g.keyStatement.ID, len(rows))
	}
	row := rows[0]

	props := g.keyStatement.KeyProperties
	cols := g.keyStatement.KeyColumns
	for i, prop := range props {
		var val any
		var ok bool
		switch {
		case i < len(cols):
			val, ok = row[cols[i]]
		case len(props) == 1 && len(row) == 1:
			for _, v := range row {
				val, ok = v, true
			}
		default:
			val, ok = row[prop]
		}
		if !ok {
			return fmt.Errorf("key statement %q: no column for key property %q", g.keyStatement.ID, prop)
		}
		if err := types.SetProperty(param, prop, val); err != nil {
			return fmt.Errorf("key statement %q: assigning %q: %w", g.keyStatement.ID, prop, err)
		}
	}
	return nil
}
