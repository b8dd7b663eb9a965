package builder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/sqlmapper/dynsql"
	"github.com/vk/sqlmapper/exec"
	"github.com/vk/sqlmapper/mapping"
	"github.com/vk/sqlmapper/registry"
	"github.com/vk/sqlmapper/xmlnode"
)

// selectKeySuffix qualifies the synthetic statement generated for a
// selectKey element, keyed under its parent statement's id.
const selectKeySuffix = "!selectKey"

// statementBuilder compiles one select/insert/update/delete element. It
// implements registry.Deferred so a statement referencing artifacts from
// unloaded documents can be retried.
type statementBuilder struct {
	cfg  *registry.Configuration
	asst *assistant
	node *xmlnode.Node

	// requiredDatabaseID is the vendor pass this builder belongs to; the
	// empty string is the generic pass.
	requiredDatabaseID string
}

func (b *statementBuilder) Description() string {
	return fmt.Sprintf("statement %s", b.node.Identifier())
}

func (b *statementBuilder) Resolve() error { return b.parse() }

func (b *statementBuilder) parse() error {
	node := b.node
	id, ok := node.Attr("id")
	if !ok || id == "" {
		return fmt.Errorf("%s: statement requires an id", node.Identifier())
	}
	qid, err := b.asst.qualify(id, false)
	if err != nil {
		return fmt.Errorf("%s: %w", node.Identifier(), err)
	}
	databaseID := node.StringAttr("databaseId")
	if !b.databaseIDMatches(qid, databaseID) {
		return nil
	}

	commandType, err := mapping.CommandTypeOf(node.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", node.Identifier(), err)
	}
	isSelect := commandType == mapping.CommandSelect

	flushCache, err := node.BoolAttr("flushCache", !isSelect)
	if err != nil {
		return err
	}
	useCache, err := node.BoolAttr("useCache", isSelect)
	if err != nil {
		return err
	}
	resultOrdered, err := node.BoolAttr("resultOrdered", false)
	if err != nil {
		return err
	}

	// Includes expand before selectKey extraction so fragments may carry
	// selectKey elements of their own.
	if err := applyIncludes(b.cfg, b.asst, node, b.cfg.Variables); err != nil {
		return err
	}

	parameterType, err := b.cfg.TypeResolver.ResolveOptional(node.StringAttr("parameterType"))
	if err != nil {
		return fmt.Errorf("%s: %w", node.Identifier(), err)
	}

	if err := b.processSelectKeys(node, qid); err != nil {
		return err
	}

	keyGenerator, err := b.keyGenerator(node, qid, commandType)
	if err != nil {
		return err
	}

	statementType, err := mapping.StatementTypeOf(node.StringAttr("statementType"))
	if err != nil {
		return fmt.Errorf("%s: %w", node.Identifier(), err)
	}
	fetchSize, err := node.IntAttr("fetchSize", b.cfg.Settings.DefaultFetchSize)
	if err != nil {
		return err
	}
	timeout, err := node.IntAttr("timeout", b.cfg.Settings.DefaultStatementTimeout)
	if err != nil {
		return err
	}

	resultType, err := b.cfg.TypeResolver.ResolveOptional(node.StringAttr("resultType"))
	if err != nil {
		return fmt.Errorf("%s: %w", node.Identifier(), err)
	}
	resultMaps, err := b.statementResultMaps(node.StringAttr("resultMap"), resultType, qid)
	if err != nil {
		return err
	}

	sqlSource, err := dynsql.BuildSqlSource(node, b.cfg.Variables)
	if err != nil {
		return err
	}

	ms := &mapping.MappedStatement{
		ID:            qid,
		DatabaseID:    databaseID,
		Resource:      b.asst.resource,
		CommandType:   commandType,
		StatementType: statementType,
		SqlSource:     sqlSource,
		FetchSize:     fetchSize,
		Timeout:       timeout,
		FlushCache:    flushCache,
		UseCache:      useCache,
		ResultOrdered: resultOrdered,
		ParameterType: parameterType,
		ResultType:    resultType,
		ResultMaps:    resultMaps,
		KeyGenerator:  keyGenerator,
		KeyProperties: splitList(node.StringAttr("keyProperty")),
		KeyColumns:    splitList(node.StringAttr("keyColumn")),
		ResultSets:    splitList(node.StringAttr("resultSets")),
	}
	return b.asst.addStatement(ms)
}

// databaseIDMatches implements the two-pass vendor selection: the vendor
// pass takes only matching vendor statements, the generic pass takes
// unmarked statements unless a vendor statement already claimed the id.
func (b *statementBuilder) databaseIDMatches(qid, databaseID string) bool {
	if b.requiredDatabaseID != "" {
		return databaseID == b.requiredDatabaseID
	}
	if databaseID != "" {
		return false
	}
	if prev, err := b.cfg.Statement(qid); err == nil {
		return prev.DatabaseID == ""
	}
	return true
}

// keyGenerator picks the statement's key strategy: a selectKey-generated
// one when present, otherwise the driver generator when generated keys are
// requested by attribute or by global setting for inserts.
func (b *statementBuilder) keyGenerator(node *xmlnode.Node, qid string, commandType mapping.CommandType) (mapping.KeyGenerator, error) {
	keyStatementID := qid + selectKeySuffix
	if kg := b.cfg.KeyGenerator(keyStatementID); kg != nil {
		return kg, nil
	}
	useGenerated, err := node.BoolAttr("useGeneratedKeys",
		b.cfg.Settings.UseGeneratedKeys && commandType == mapping.CommandInsert)
	if err != nil {
		return nil, err
	}
	if useGenerated {
		return exec.DriverKeyGenerator{}, nil
	}
	return exec.NoKeyGenerator{}, nil
}

// statementResultMaps resolves the resultMap attribute list, or derives an
// inline single-type map from resultType. A referenced map that is not
// registered yet is an incomplete condition.
func (b *statementBuilder) statementResultMaps(resultMapAttr string, resultType reflect.Type, qid string) ([]*mapping.ResultMap, error) {
	if resultMapAttr != "" {
		var maps []*mapping.ResultMap
		for _, name := range splitList(resultMapAttr) {
			ref, err := b.asst.qualify(name, true)
			if err != nil {
				return nil, err
			}
			rm, err := b.cfg.ResultMap(ref)
			if err != nil {
				return nil, err
			}
			maps = append(maps, rm)
		}
		return maps, nil
	}
	if resultType != nil {
		inline := mapping.NewResultMap(qid+"-Inline", resultType, nil, nil, nil)
		return []*mapping.ResultMap{inline}, nil
	}
	return nil, nil
}

// processSelectKeys compiles selectKey children into synthetic statements
// and strips them from the parent before its SQL source is built. The
// vendor pass runs first within the element, mirroring statement parsing.
func (b *statementBuilder) processSelectKeys(node *xmlnode.Node, qid string) error {
	keys := node.ElementsNamed("selectKey")
	if len(keys) == 0 {
		return nil
	}
	if b.cfg.DatabaseID != "" {
		for _, k := range keys {
			if k.StringAttr("databaseId") == b.cfg.DatabaseID {
				if err := b.parseSelectKey(k, qid); err != nil {
					return err
				}
			}
		}
	}
	for _, k := range keys {
		if k.StringAttr("databaseId") == "" {
			if err := b.parseSelectKey(k, qid); err != nil {
				return err
			}
		}
	}
	for _, k := range keys {
		node.RemoveChild(k)
	}
	return nil
}

func (b *statementBuilder) parseSelectKey(key *xmlnode.Node, qid string) error {
	keyStatementID := qid + selectKeySuffix
	if b.cfg.HasKeyGenerator(keyStatementID) && key.StringAttr("databaseId") == "" {
		// A vendor selectKey already claimed the slot.
		return nil
	}

	resultType, err := b.cfg.TypeResolver.ResolveOptional(key.StringAttr("resultType"))
	if err != nil {
		return fmt.Errorf("%s: %w", key.Identifier(), err)
	}
	statementType, err := mapping.StatementTypeOf(key.StringAttr("statementType"))
	if err != nil {
		return fmt.Errorf("%s: %w", key.Identifier(), err)
	}
	order := strings.ToUpper(key.StringAttrDefault("order", "AFTER"))
	if order != "BEFORE" && order != "AFTER" {
		return fmt.Errorf("%s: order must be BEFORE or AFTER, got %q", key.Identifier(), order)
	}

	sqlSource, err := dynsql.BuildSqlSource(key, b.cfg.Variables)
	if err != nil {
		return err
	}

	ms := &mapping.MappedStatement{
		ID:            keyStatementID,
		DatabaseID:    key.StringAttr("databaseId"),
		Resource:      b.asst.resource,
		CommandType:   mapping.CommandSelect,
		StatementType: statementType,
		SqlSource:     sqlSource,
		// Key statements never participate in caching.
		FlushCache:    false,
		UseCache:      false,
		ResultType:    resultType,
		KeyProperties: splitList(key.StringAttr("keyProperty")),
		KeyColumns:    splitList(key.StringAttr("keyColumn")),
		KeyGenerator:  exec.NoKeyGenerator{},
	}
	if err := b.cfg.AddStatement(ms); err != nil {
		return err
	}
	b.cfg.AddKeyGenerator(keyStatementID, exec.NewSelectKeyGenerator(ms, order == "BEFORE"))
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
