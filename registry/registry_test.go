package registry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sqlmapper/mapping"
)

func TestSettingsDefaults(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.CacheEnabled)
	assert.False(t, s.LazyLoadingEnabled)
	assert.False(t, s.UseGeneratedKeys)
	assert.Zero(t, s.DefaultStatementTimeout)
}

func TestSettingsApply(t *testing.T) {
	s := DefaultSettings()
	err := s.Apply(map[string]string{
		"cacheEnabled":            "false",
		"useGeneratedKeys":        "true",
		"defaultStatementTimeout": "30",
	})
	require.NoError(t, err)
	assert.False(t, s.CacheEnabled)
	assert.True(t, s.UseGeneratedKeys)
	assert.Equal(t, 30, s.DefaultStatementTimeout)

	assert.Error(t, s.Apply(map[string]string{"cacheEnbaled": "true"}), "typos must not pass silently")
	assert.Error(t, s.Apply(map[string]string{"defaultFetchSize": "lots"}))
}

func TestAddStatementVendorPrecedence(t *testing.T) {
	generic := func(id string) *mapping.MappedStatement {
		return &mapping.MappedStatement{ID: id}
	}
	vendor := func(id, db string) *mapping.MappedStatement {
		return &mapping.MappedStatement{ID: id, DatabaseID: db}
	}

	t.Run("vendor survives a later generic", func(t *testing.T) {
		c := NewConfiguration()
		pg := vendor("ns.find", "postgres")
		require.NoError(t, c.AddStatement(pg))
		require.NoError(t, c.AddStatement(generic("ns.find")))
		got, err := c.Statement("ns.find")
		require.NoError(t, err)
		assert.Same(t, pg, got)
	})

	t.Run("vendor displaces an earlier generic", func(t *testing.T) {
		c := NewConfiguration()
		require.NoError(t, c.AddStatement(generic("ns.find")))
		pg := vendor("ns.find", "postgres")
		require.NoError(t, c.AddStatement(pg))
		got, err := c.Statement("ns.find")
		require.NoError(t, err)
		assert.Same(t, pg, got)
	})

	t.Run("later generic replaces earlier generic", func(t *testing.T) {
		c := NewConfiguration()
		require.NoError(t, c.AddStatement(generic("ns.find")))
		second := generic("ns.find")
		require.NoError(t, c.AddStatement(second))
		got, err := c.Statement("ns.find")
		require.NoError(t, err)
		assert.Same(t, second, got)
	})

	t.Run("generic redefinition is logged", func(t *testing.T) {
		var buf bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
		t.Cleanup(func() { slog.SetDefault(prev) })

		c := NewConfiguration()
		require.NoError(t, c.AddStatement(generic("ns.find")))
		assert.Empty(t, buf.String(), "the first definition is silent")

		require.NoError(t, c.AddStatement(generic("ns.find")))
		assert.Contains(t, buf.String(), "statement redefined")
		assert.Contains(t, buf.String(), "ns.find")
	})

	t.Run("two vendor entries conflict", func(t *testing.T) {
		c := NewConfiguration()
		require.NoError(t, c.AddStatement(vendor("ns.find", "postgres")))
		err := c.AddStatement(vendor("ns.find", "mysql"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ns.find")
	})
}

func TestLookupsReportMissing(t *testing.T) {
	c := NewConfiguration()

	_, err := c.Statement("ns.nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ns.nope")

	_, err = c.ResultMap("ns.nope")
	assert.True(t, IsIncomplete(err), "missing result map must be a deferrable condition")

	_, err = c.Cache("ns")
	assert.True(t, IsIncomplete(err))
}

// fakeDeferred resolves after a set number of attempts, recording each one.
type fakeDeferred struct {
	name     string
	failures int
	hardErr  error
	log      *[]string
}

func (f *fakeDeferred) Description() string { return f.name }

func (f *fakeDeferred) Resolve() error {
	*f.log = append(*f.log, f.name)
	if f.hardErr != nil {
		return f.hardErr
	}
	if f.failures > 0 {
		f.failures--
		return Incompletef("dependency of %s", f.name)
	}
	return nil
}

func TestDrainPendingOrderAndRequeue(t *testing.T) {
	c := NewConfiguration()
	ctx := context.Background()
	var log []string

	c.DeferStatement(&fakeDeferred{name: "stmt", log: &log})
	c.DeferCacheRef(&fakeDeferred{name: "cacheref", failures: 1, log: &log})
	c.DeferResultMap(&fakeDeferred{name: "resultmap", log: &log})

	require.NoError(t, c.DrainPending(ctx))
	assert.Equal(t, []string{"resultmap", "cacheref", "stmt"}, log, "queues drain result maps first, statements last")
	assert.Equal(t, 1, c.PendingCount(), "incomplete resolver stays queued")

	err := c.CheckComplete()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cacheref")

	log = nil
	require.NoError(t, c.DrainPending(ctx))
	assert.Equal(t, []string{"cacheref"}, log)
	assert.Zero(t, c.PendingCount())
	assert.NoError(t, c.CheckComplete())
}

func TestDrainPendingAbortsOnHardError(t *testing.T) {
	c := NewConfiguration()
	var log []string
	boom := errors.New("boom")

	c.DeferResultMap(&fakeDeferred{name: "bad", hardErr: boom, log: &log})
	c.DeferStatement(&fakeDeferred{name: "stmt", log: &log})

	err := c.DrainPending(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"bad"}, log, "later queues are not attempted after a hard failure")
}

func TestIncompleteErrorWrapping(t *testing.T) {
	base := Incompletef("result map %q", "ns.m")
	wrapped := errors.Join(errors.New("while compiling ns.find"), base)
	assert.True(t, IsIncomplete(wrapped))
	assert.False(t, IsIncomplete(errors.New("plain")))
	assert.Contains(t, base.Error(), `ns.m`)
}

func TestLoadedResources(t *testing.T) {
	c := NewConfiguration()
	assert.False(t, c.IsLoaded("user.xml"))
	c.MarkLoaded("user.xml")
	assert.True(t, c.IsLoaded("user.xml"))
}
