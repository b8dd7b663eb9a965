package dynsql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/sqlmapper/types"
	"github.com/vk/sqlmapper/xmlnode"
)

func parseBody(t *testing.T, doc string) *xmlnode.Node {
	t.Helper()
	node, err := xmlnode.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return node
}

func TestStaticBodyCompilesToStaticSource(t *testing.T) {
	node := parseBody(t, `<select id="find">SELECT * FROM users WHERE id = #{id}</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"id": 42})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id = ?", bs.SQL)
	require.Len(t, bs.ParameterMappings, 1)
	assert.Equal(t, "id", bs.ParameterMappings[0].Property)

	v, err := bs.ParameterValue(bs.ParameterMappings[0])
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBuildTimeVariableSubstitution(t *testing.T) {
	node := parseBody(t, `<select id="find">SELECT * FROM ${table} WHERE id = #{id}</select>`)
	src, err := BuildSqlSource(node, map[string]string{"table": "accounts"})
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM accounts WHERE id = ?", bs.SQL)
}

func TestIfInsideWhere(t *testing.T) {
	node := parseBody(t, `<select id="find">
		SELECT * FROM users
		<where>
			<if test='name != ""'>AND name = #{name}</if>
			<if test='id != 0'>AND id = #{id}</if>
		</where>
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	t.Run("both conditions", func(t *testing.T) {
		bs, err := src.BoundSql(map[string]any{"name": "ada", "id": 7})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM users WHERE name = ? AND id = ?", bs.SQL)
		require.Len(t, bs.ParameterMappings, 2)
		assert.Equal(t, "name", bs.ParameterMappings[0].Property)
		assert.Equal(t, "id", bs.ParameterMappings[1].Property)
	})

	t.Run("second only drops leading AND", func(t *testing.T) {
		bs, err := src.BoundSql(map[string]any{"name": "", "id": 7})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM users WHERE id = ?", bs.SQL)
	})

	t.Run("neither drops WHERE entirely", func(t *testing.T) {
		bs, err := src.BoundSql(map[string]any{"name": "", "id": 0})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM users", bs.SQL)
	})
}

func TestSetStripsTrailingComma(t *testing.T) {
	node := parseBody(t, `<update id="patch">
		UPDATE users
		<set>
			<if test='name != ""'>name = #{name},</if>
			<if test='email != ""'>email = #{email},</if>
		</set>
		WHERE id = #{id}
	</update>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"name": "ada", "email": "", "id": 3})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET name = ? WHERE id = ?", bs.SQL)
}

func TestChoosePicksFirstTruthyBranch(t *testing.T) {
	node := parseBody(t, `<select id="find">
		SELECT * FROM users
		<where>
			<choose>
				<when test='id != 0'>id = #{id}</when>
				<when test='name != ""'>name = #{name}</when>
				<otherwise>active = 1</otherwise>
			</choose>
		</where>
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	cases := []struct {
		name  string
		param map[string]any
		want  string
	}{
		{"first when", map[string]any{"id": 5, "name": "ada"}, "SELECT * FROM users WHERE id = ?"},
		{"second when", map[string]any{"id": 0, "name": "ada"}, "SELECT * FROM users WHERE name = ?"},
		{"otherwise", map[string]any{"id": 0, "name": ""}, "SELECT * FROM users WHERE active = 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bs, err := src.BoundSql(tc.param)
			require.NoError(t, err)
			assert.Equal(t, tc.want, bs.SQL)
		})
	}
}

func TestForEachOverSlice(t *testing.T) {
	node := parseBody(t, `<select id="find">
		SELECT * FROM users WHERE id IN
		<foreach collection="ids" item="v" open="(" separator=", " close=")">#{v}</foreach>
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"ids": []int{10, 20, 30}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id IN (?, ?, ?)", bs.SQL)
	require.Len(t, bs.ParameterMappings, 3)

	var got []any
	for _, pm := range bs.ParameterMappings {
		assert.True(t, strings.HasPrefix(pm.Property, "__frch_v_"), "property %q", pm.Property)
		v, err := bs.ParameterValue(pm)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []any{10, 20, 30}, got)
}

func TestForEachEmptyCollectionContributesNothing(t *testing.T) {
	node := parseBody(t, `<select id="find">
		SELECT * FROM users
		<where>
			<foreach collection="ids" item="v" open="id IN (" separator="," close=")">#{v}</foreach>
		</where>
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"ids": []int{}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users", bs.SQL)
	assert.Empty(t, bs.ParameterMappings)
}

func TestForEachItemProperties(t *testing.T) {
	type row struct {
		Name  string
		Email string
	}
	node := parseBody(t, `<insert id="bulk">
		INSERT INTO users (name, email) VALUES
		<foreach collection="rows" item="r" separator=", ">(#{r.name}, #{r.email})</foreach>
	</insert>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"rows": []row{{"a", "a@x"}, {"b", "b@x"}}})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name, email) VALUES (?, ?), (?, ?)", bs.SQL)
	require.Len(t, bs.ParameterMappings, 4)

	v, err := bs.ParameterValue(bs.ParameterMappings[2])
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestBindFeedsLaterExpressionsAndPlaceholders(t *testing.T) {
	node := parseBody(t, `<select id="find">
		<bind name="pattern" value='"%${name}%"'/>
		SELECT * FROM users WHERE name LIKE #{pattern}
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE name LIKE ?", bs.SQL)

	v, err := bs.ParameterValue(bs.ParameterMappings[0])
	require.NoError(t, err)
	assert.Equal(t, "%ada%", v)
}

func TestRuntimeSubstitutionUsesParameter(t *testing.T) {
	node := parseBody(t, `<select id="find">SELECT * FROM users ORDER BY ${column}</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(map[string]any{"column": "created_at"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users ORDER BY created_at", bs.SQL)
}

func TestDynamicSourceIsPure(t *testing.T) {
	node := parseBody(t, `<select id="find">
		SELECT * FROM users
		<where>
			<if test='name != ""'>name = #{name}</if>
			<foreach collection="ids" item="v" open="AND id IN (" separator="," close=")">#{v}</foreach>
		</where>
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	param := map[string]any{"name": "ada", "ids": []int{1, 2}}
	first, err := src.BoundSql(param)
	require.NoError(t, err)
	second, err := src.BoundSql(param)
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.ParameterMappings, second.ParameterMappings)
}

func TestStructParameterScope(t *testing.T) {
	type filter struct {
		Name string
		ID   int
	}
	node := parseBody(t, `<select id="find">
		SELECT * FROM users
		<where>
			<if test='name != ""'>name = #{name}</if>
		</where>
	</select>`)
	src, err := BuildSqlSource(node, nil)
	require.NoError(t, err)

	bs, err := src.BoundSql(filter{Name: "ada", ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE name = ?", bs.SQL)

	v, err := bs.ParameterValue(bs.ParameterMappings[0])
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}

func TestPlaceholderAttributes(t *testing.T) {
	sql, mappings, err := ParsePlaceholders("UPDATE t SET v = #{v,jdbcType=VARCHAR} WHERE id = #{id}")
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t SET v = ? WHERE id = ?", sql)
	require.Len(t, mappings, 2)
	assert.Equal(t, "v", mappings[0].Property)
	assert.Equal(t, types.SQLType("VARCHAR"), mappings[0].SQLType)

	_, _, err = ParsePlaceholders("SELECT #{v,bogus=1}")
	assert.Error(t, err)

	_, _, err = ParsePlaceholders("SELECT #{v")
	assert.Error(t, err)
}

func TestUnknownDynamicElementFails(t *testing.T) {
	node := parseBody(t, `<select id="find">SELECT 1 <loop over="x">#{x}</loop></select>`)
	_, err := BuildSqlSource(node, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop")
}
