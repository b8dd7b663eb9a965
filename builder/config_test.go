package builder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sqlmapper/loader"
	"github.com/vk/sqlmapper/mapping"
)

func TestConfigBuilderEndToEnd(t *testing.T) {
	ld := loader.Map{
		"app.yaml": "tbl: users\n",
		"user.xml": `<mapper namespace="user">
			<select id="byId">SELECT * FROM ${tbl} WHERE id = #{id}</select>
			<select id="version" databaseId="sqlite">SELECT sqlite_version()</select>
			<select id="version">SELECT version()</select>
		</mapper>`,
	}
	doc := `<configuration>
		<properties resource="app.yaml">
			<property name="tbl" value="inline_default"/>
			<property name="schema" value="main"/>
		</properties>
		<settings>
			<setting name="useGeneratedKeys" value="true"/>
			<setting name="defaultStatementTimeout" value="5"/>
		</settings>
		<environments default="dev">
			<environment id="dev">
				<dataSource type="UNPOOLED">
					<property name="driver" value="sqlite3"/>
					<property name="dsn" value=":memory:"/>
				</dataSource>
			</environment>
			<environment id="prod">
				<dataSource type="UNPOOLED">
					<property name="driver" value="pgx"/>
					<property name="dsn" value="postgres://"/>
				</dataSource>
			</environment>
		</environments>
		<databaseIdProvider type="DB_VENDOR">
			<property name="sqlite3" value="sqlite"/>
			<property name="pgx" value="postgres"/>
		</databaseIdProvider>
		<mappers>
			<mapper resource="user.xml"/>
		</mappers>
	</configuration>`

	cfg, err := NewConfigBuilder(ld).Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.True(t, cfg.Settings.UseGeneratedKeys)
	assert.Equal(t, 5, cfg.Settings.DefaultStatementTimeout)
	assert.Equal(t, "dev", cfg.Environment.ID)
	assert.Equal(t, "sqlite3", cfg.Environment.Driver)
	assert.Equal(t, ":memory:", cfg.Environment.DSN)
	assert.Equal(t, "sqlite", cfg.DatabaseID)
	assert.Equal(t, "main", cfg.Variables["schema"])
	assert.Equal(t, "users", cfg.Variables["tbl"], "the external resource overrides the inline default")

	byID, err := cfg.Statement("user.byId")
	require.NoError(t, err)
	bs, err := byID.SqlSource.BoundSql(map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id = ?", bs.SQL)
	assert.Equal(t, 5, byID.Timeout, "settings default flows into statements")

	version, err := cfg.Statement("user.version")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", version.DatabaseID, "vendor id derived from the environment driver")
}

func TestPropertiesResourceAndURLConflict(t *testing.T) {
	doc := `<configuration>
		<properties resource="a.yaml" url="https://example.com/b.yaml"/>
	</configuration>`
	_, err := NewConfigBuilder(loader.Map{}).Parse(context.Background(), strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both resource")
}

func TestDefaultEnvironmentMustExist(t *testing.T) {
	doc := `<configuration>
		<environments default="prod">
			<environment id="dev"><dataSource type="UNPOOLED"/></environment>
		</environments>
	</configuration>`
	_, err := NewConfigBuilder(loader.Map{}).Parse(context.Background(), strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod")
}

type tagInterceptor struct {
	tag  string
	next mapping.Executor
}

func (i *tagInterceptor) Plugin(next mapping.Executor) mapping.Executor {
	return &tagInterceptor{tag: i.tag, next: next}
}

func (i *tagInterceptor) Query(ctx context.Context, ms *mapping.MappedStatement, param any) ([]map[string]any, error) {
	return i.next.Query(ctx, ms, param)
}

func (i *tagInterceptor) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (mapping.Result, error) {
	return i.next.Update(ctx, ms, param)
}

func TestPlugins(t *testing.T) {
	doc := `<configuration>
		<plugins>
			<plugin interceptor="audit"><property name="level" value="all"/></plugin>
		</plugins>
	</configuration>`

	t.Run("registered factory is applied", func(t *testing.T) {
		b := NewConfigBuilder(loader.Map{})
		var gotProps map[string]string
		b.RegisterInterceptor("audit", func(props map[string]string) (mapping.Interceptor, error) {
			gotProps = props
			return &tagInterceptor{tag: "audit"}, nil
		})
		cfg, err := b.Parse(context.Background(), strings.NewReader(doc))
		require.NoError(t, err)
		require.Len(t, cfg.Interceptors, 1)
		assert.Equal(t, map[string]string{"level": "all"}, gotProps)
	})

	t.Run("unknown plugin is fatal", func(t *testing.T) {
		_, err := NewConfigBuilder(loader.Map{}).Parse(context.Background(), strings.NewReader(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit")
	})
}

func TestTypeAliases(t *testing.T) {
	doc := `<configuration>
		<typeAliases>
			<typeAlias alias="UserRow" type="map"/>
		</typeAliases>
	</configuration>`
	cfg, err := NewConfigBuilder(loader.Map{}).Parse(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	typ, err := cfg.TypeResolver.Resolve("UserRow")
	require.NoError(t, err)
	assert.Equal(t, "map[string]interface {}", typ.String())
}
