package sqlmapper

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sqlmapper/exec"
	"github.com/vk/sqlmapper/loader"
	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/registry"
)

const engineConfig = `<configuration>
	<settings>
		<setting name="useGeneratedKeys" value="true"/>
	</settings>
	<environments default="test">
		<environment id="test">
			<dataSource type="UNPOOLED">
				<property name="driver" value="sqlite3"/>
				<property name="dsn" value=":memory:"/>
			</dataSource>
		</environment>
	</environments>
	<mappers>
		<mapper resource="user_store.xml"/>
	</mappers>
</configuration>`

const userStoreMapper = `<mapper namespace="UserStore">
	<insert id="create" keyProperty="id">
		INSERT INTO users (name, email) VALUES (#{name}, #{email})
	</insert>
	<select id="find">
		SELECT id, name, email FROM users
		<where>
			<if test='name != ""'>name = #{name}</if>
		</where>
		ORDER BY id
	</select>
	<select id="byId">SELECT id, name, email FROM users WHERE id = #{id}</select>
</mapper>`

type User struct {
	ID    int64
	Name  string
	Email string
}

type UserStore struct {
	Create func(ctx context.Context, u any) (int64, error)
	Find   func(ctx context.Context, filter any) ([]map[string]any, error)
	ByID   func(ctx context.Context, id any) (map[string]any, error) `mapstmt:"byId"`
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	ld := loader.Map{"config.xml": engineConfig, "user_store.xml": userStoreMapper}
	cfg, err := Load(context.Background(), ld, "config.xml")
	require.NoError(t, err)
	require.NoError(t, cfg.CheckComplete())

	db, err := sql.Open(cfg.Environment.Driver, cfg.Environment.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, email TEXT)`)
	require.NoError(t, err)

	return New(cfg, exec.NewSQLExecutor(db))
}

func TestEngineRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	u := &User{Name: "ada", Email: "ada@x"}
	res, err := e.Exec(ctx, "UserStore.create", u)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)
	assert.EqualValues(t, 1, u.ID, "the generated key lands on the parameter object")

	_, err = e.Exec(ctx, "UserStore.create", &User{Name: "grace", Email: "grace@x"})
	require.NoError(t, err)

	t.Run("dynamic filter applied", func(t *testing.T) {
		rows, err := e.Select(ctx, "UserStore.find", map[string]any{"name": "ada"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "ada", rows[0]["name"])
	})

	t.Run("empty filter lists everything", func(t *testing.T) {
		rows, err := e.Select(ctx, "UserStore.find", map[string]any{"name": ""})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("select one", func(t *testing.T) {
		row, err := e.SelectOne(ctx, "UserStore.byId", map[string]any{"id": 1})
		require.NoError(t, err)
		assert.Equal(t, "ada", row["name"])

		row, err = e.SelectOne(ctx, "UserStore.byId", map[string]any{"id": 99})
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("unknown statement", func(t *testing.T) {
		_, err := e.Select(ctx, "UserStore.nope", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UserStore.nope")
	})
}

func TestEngineMapperDispatch(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	store := &UserStore{}
	require.NoError(t, e.RegisterMapper(store))

	n, err := store.Create(ctx, &User{Name: "ada", Email: "ada@x"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	row, err := store.ByID(ctx, map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "ada", row["name"])

	rows, err := store.Find(ctx, map[string]any{"name": ""})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

// countingExecutor counts pass-throughs to the real executor.
type countingExecutor struct {
	inner   mapping.Executor
	queries int
	updates int
}

func (c *countingExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, param any) ([]map[string]any, error) {
	c.queries++
	return c.inner.Query(ctx, ms, param)
}

func (c *countingExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (mapping.Result, error) {
	c.updates++
	return c.inner.Update(ctx, ms, param)
}

const cachedMapper = `<mapper namespace="cached">
	<cache size="32"/>
	<insert id="add">INSERT INTO users (name, email) VALUES (#{name}, #{email})</insert>
	<select id="all">SELECT id, name FROM users ORDER BY id</select>
</mapper>`

func TestEngineQueryCaching(t *testing.T) {
	ld := loader.Map{
		"config.xml": `<configuration><mappers><mapper resource="cached.xml"/></mappers></configuration>`,
		"cached.xml": cachedMapper,
	}
	ctx := context.Background()
	cfg, err := Load(ctx, ld, "config.xml")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, email TEXT)`)
	require.NoError(t, err)

	counter := &countingExecutor{inner: exec.NewSQLExecutor(db)}
	e := New(cfg, counter)

	_, err = e.Exec(ctx, "cached.add", map[string]any{"name": "ada", "email": "a@x"})
	require.NoError(t, err)

	first, err := e.Select(ctx, "cached.all", nil)
	require.NoError(t, err)
	second, err := e.Select(ctx, "cached.all", nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, counter.queries, "the repeat query is served from the namespace cache")

	// A write flushes the namespace cache.
	_, err = e.Exec(ctx, "cached.add", map[string]any{"name": "grace", "email": "g@x"})
	require.NoError(t, err)
	third, err := e.Select(ctx, "cached.all", nil)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, counter.queries)
}

func TestEngineCachingDisabledBySetting(t *testing.T) {
	ld := loader.Map{
		"config.xml": `<configuration>
			<settings><setting name="cacheEnabled" value="false"/></settings>
			<mappers><mapper resource="cached.xml"/></mappers>
		</configuration>`,
		"cached.xml": cachedMapper,
	}
	ctx := context.Background()
	cfg, err := Load(ctx, ld, "config.xml")
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, email TEXT)`)
	require.NoError(t, err)

	counter := &countingExecutor{inner: exec.NewSQLExecutor(db)}
	e := New(cfg, counter)

	_, err = e.Select(ctx, "cached.all", nil)
	require.NoError(t, err)
	_, err = e.Select(ctx, "cached.all", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, counter.queries)
}

// taggingInterceptor records the order interceptors see a query in.
type taggingInterceptor struct {
	tag   string
	trace *[]string
}

func (i *taggingInterceptor) Plugin(next mapping.Executor) mapping.Executor {
	return &taggedExecutor{tag: i.tag, trace: i.trace, next: next}
}

type taggedExecutor struct {
	tag   string
	trace *[]string
	next  mapping.Executor
}

func (e *taggedExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, param any) ([]map[string]any, error) {
	*e.trace = append(*e.trace, e.tag)
	return e.next.Query(ctx, ms, param)
}

func (e *taggedExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (mapping.Result, error) {
	*e.trace = append(*e.trace, e.tag)
	return e.next.Update(ctx, ms, param)
}

func TestInterceptorChainOrder(t *testing.T) {
	cfg := registry.NewConfiguration()
	require.NoError(t, cfg.AddStatement(&mapping.MappedStatement{
		ID:          "ns.ping",
		CommandType: mapping.CommandSelect,
		SqlSource:   &mapping.StaticSqlSource{SQL: "SELECT 1"},
	}))
	var trace []string
	cfg.Interceptors = []mapping.Interceptor{
		&taggingInterceptor{tag: "inner", trace: &trace},
		&taggingInterceptor{tag: "outer", trace: &trace},
	}

	e := New(cfg, stubExecutor{})
	_, err := e.Select(context.Background(), "ns.ping", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, trace, "the last declared interceptor is outermost")
}

type stubExecutor struct{}

func (stubExecutor) Query(context.Context, *mapping.MappedStatement, any) ([]map[string]any, error) {
	return nil, nil
}

func (stubExecutor) Update(context.Context, *mapping.MappedStatement, any) (mapping.Result, error) {
	return mapping.Result{}, nil
}
