package sqlkit

import (
	"fmt"
	"sort"
	"strings"
)

// Join type identifiers accepted by JoinSubquery.
const (
	JoinInner = "JOIN"
	JoinLeft  = "LEFT JOIN"
	JoinRight = "RIGHT JOIN"
	JoinFull  = "FULL OUTER JOIN"
	JoinCross = "CROSS JOIN"
)

var joinTypes = map[string]bool{
	JoinInner: true,
	JoinLeft:  true,
	JoinRight: true,
	JoinFull:  true,
	JoinCross: true,
}

// comparisonOps are the operators valid against a single placeholder. IN and
// NULL shapes have dedicated methods with their own placeholder handling.
var comparisonOps = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"LIKE": true, "NOT LIKE": true,
}

// subqueryOps additionally admit set membership, since a subquery supplies
// the row set rather than a lone placeholder.
var subqueryOps = map[string]bool{
	"=": true, "!=": true, "<>": true,
	"<": true, ">": true, "<=": true, ">=": true,
	"IN": true, "NOT IN": true,
}

// Builder accumulates a declarative description of one SQL statement across
// chained calls and compiles it deterministically on demand. It is bound to
// one dialect and one runner for its whole life. A Builder is not safe for
// concurrent mutation; concurrent callers branch with Clone or get fresh
// instances from DB.Builder.
type Builder struct {
	conn    ExecQuerier
	dialect *Dialect
	cfg     *Config
	cache   *QueryCache
	logger  Logger

	selectFields []string
	distinct     bool
	// fromTable holds pre-resolved FROM text (aliases, subqueries, raw
	// expressions); fromName holds a plain table name whose qualification
	// and quoting is deferred to compile time, where declared CTE names
	// are known and must not be schema-qualified.
	fromTable string
	fromName  string
	joins     []string
	wheres    []string
	groupBys  []string
	havings   []string
	orderBys  []string
	limit     int
	offset    int

	// Bind values are kept per clause family and concatenated in compile
	// order (CTE, FROM subquery, JOIN subquery, WHERE, HAVING, UNION),
	// which keeps them positionally aligned with placeholders no matter
	// what order the mutators ran in.
	whereParams   []any
	havingParams  []any
	cteParams     []any
	fromSubParams []any
	joinSubParams []any
	unionParams   []any

	ctes         []string
	cteNames     []string
	cteRecursive bool
	unions       []string

	setCols []string
	setVals []any

	isSubquery bool

	// First validation error recorded by a mutator; surfaced by the next
	// compile or terminal call, before any transport traffic.
	err error

	tx        txState
	lastQuery *QueryLog
}

// NewBuilder constructs a Builder bound to the given runner and driver.
// Unsupported drivers are a hard construction-time error.
func NewBuilder(conn ExecQuerier, driver string, cfg *Config) (*Builder, error) {
	dialect, err := getDialect(driver)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	b := &Builder{
		conn:    conn,
		dialect: dialect,
		cfg:     cfg,
		cache:   NewQueryCache(cfg.MaxQueryCache),
		logger:  nopLogger{},
	}
	b.resetState()
	return b, nil
}

// WithCache replaces the builder's compiled-query cache, typically to share
// one cache across the builders of a DB.
func (b *Builder) WithCache(c *QueryCache) *Builder {
	b.cache = c
	return b
}

// WithLogger replaces the builder's logger.
func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// Dialect exposes the builder's dialect for out-of-band uses.
func (b *Builder) Dialect() *Dialect {
	return b.dialect
}

func (b *Builder) setErr(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

// quote escapes an identifier via the dialect, recording a validation error
// on failure. Fragments built from a failed quote never execute.
func (b *Builder) quote(name string) string {
	quoted, err := b.dialect.QuoteIdentifier(name)
	if err != nil {
		b.setErr(err)
		return name
	}
	return quoted
}

// resetState returns every clause list and flag to its default. Dialect,
// runner, cache, logger, transaction state and the last-query record survive.
func (b *Builder) resetState() {
	b.selectFields = []string{"*"}
	b.distinct = false
	b.fromTable = ""
	b.fromName = ""
	b.joins = nil
	b.wheres = nil
	b.groupBys = nil
	b.havings = nil
	b.orderBys = nil
	b.limit = -1
	b.offset = -1
	b.whereParams = nil
	b.havingParams = nil
	b.cteParams = nil
	b.fromSubParams = nil
	b.joinSubParams = nil
	b.unionParams = nil
	b.ctes = nil
	b.cteNames = nil
	b.cteRecursive = false
	b.unions = nil
	b.setCols = nil
	b.setVals = nil
	b.err = nil
}

// subBuilder returns a fresh builder for grouped conditions, subqueries and
// CTEs. It shares configuration but never clause state with its parent.
func (b *Builder) subBuilder() *Builder {
	sub := &Builder{
		conn:       b.conn,
		dialect:    b.dialect,
		cfg:        b.cfg,
		cache:      b.cache,
		logger:     b.logger,
		isSubquery: true,
	}
	sub.resetState()
	return sub
}

// Clone deep-copies all clause state so the copy can diverge freely. The
// runner, dialect and cache are shared; slices and update data are not.
func (b *Builder) Clone() *Builder {
	c := *b
	c.selectFields = append([]string(nil), b.selectFields...)
	c.joins = append([]string(nil), b.joins...)
	c.wheres = append([]string(nil), b.wheres...)
	c.groupBys = append([]string(nil), b.groupBys...)
	c.havings = append([]string(nil), b.havings...)
	c.orderBys = append([]string(nil), b.orderBys...)
	c.whereParams = append([]any(nil), b.whereParams...)
	c.havingParams = append([]any(nil), b.havingParams...)
	c.cteParams = append([]any(nil), b.cteParams...)
	c.fromSubParams = append([]any(nil), b.fromSubParams...)
	c.joinSubParams = append([]any(nil), b.joinSubParams...)
	c.unionParams = append([]any(nil), b.unionParams...)
	c.ctes = append([]string(nil), b.ctes...)
	c.cteNames = append([]string(nil), b.cteNames...)
	c.unions = append([]string(nil), b.unions...)
	c.setCols = append([]string(nil), b.setCols...)
	c.setVals = append([]any(nil), b.setVals...)
	return &c
}

// Select replaces the projected fields. Identifiers are escaped; use
// SelectRaw for expressions.
func (b *Builder) Select(fields ...string) *Builder {
	if len(fields) == 0 {
		return b
	}
	if !b.cfg.DisableValidation && len(fields) > b.cfg.MaxSelectFields {
		b.setErr(validationErrf("select fields exceed the maximum of %d", b.cfg.MaxSelectFields))
		return b
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, b.quote(f))
	}
	b.selectFields = quoted
	return b
}

// SelectAlias replaces the projection with aliased fields. Fields are emitted
// in sorted order so compilation stays deterministic.
func (b *Builder) SelectAlias(fields map[string]string) *Builder {
	if len(fields) == 0 {
		return b
	}
	names := sortedKeys(fields)
	quoted := make([]string, 0, len(names))
	for _, f := range names {
		quoted = append(quoted, b.quote(f)+" AS "+b.quote(fields[f]))
	}
	b.selectFields = quoted
	return b
}

// SelectRaw replaces the projection with a raw expression. The expression is
// the caller's responsibility and bypasses escaping.
func (b *Builder) SelectRaw(expr string) *Builder {
	if expr == "" {
		b.setErr(validationErrf("raw select expression cannot be empty"))
		return b
	}
	b.selectFields = []string{expr}
	return b
}

func (b *Builder) selectAggregate(fn, field string, alias ...string) *Builder {
	expr := fmt.Sprintf("%s(%s)", fn, b.quote(field))
	if len(alias) > 0 && alias[0] != "" {
		expr += " AS " + b.quote(alias[0])
	}
	b.selectFields = []string{expr}
	return b
}

func (b *Builder) SelectMax(field string, alias ...string) *Builder {
	return b.selectAggregate("MAX", field, alias...)
}

func (b *Builder) SelectMin(field string, alias ...string) *Builder {
	return b.selectAggregate("MIN", field, alias...)
}

func (b *Builder) SelectAvg(field string, alias ...string) *Builder {
	return b.selectAggregate("AVG", field, alias...)
}

func (b *Builder) SelectSum(field string, alias ...string) *Builder {
	return b.selectAggregate("SUM", field, alias...)
}

func (b *Builder) SelectCount(field string, alias ...string) *Builder {
	return b.selectAggregate("COUNT", field, alias...)
}

// Distinct marks the projection DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// From sets the source table, applying schema qualification where the
// backend uses schemas. Names containing a space or a parenthesis are raw
// expressions and bypass escaping.
func (b *Builder) From(table string) *Builder {
	if table == "" {
		b.setErr(validationErrf("table name cannot be empty"))
		return b
	}
	if strings.ContainsAny(table, " (") {
		b.fromTable = table
		b.fromName = ""
		b.fromSubParams = nil
		return b
	}
	b.fromName = table
	b.fromTable = ""
	b.fromSubParams = nil
	return b
}

// FromAlias sets an aliased source table.
func (b *Builder) FromAlias(table, alias string) *Builder {
	if table == "" || alias == "" {
		b.setErr(validationErrf("table name and alias cannot be empty"))
		return b
	}
	b.fromTable = b.quote(b.dialect.QualifyTable(table, b.cfg.Schema)) + " " + b.quote(alias)
	b.fromName = ""
	b.fromSubParams = nil
	return b
}

// FromSub sets the source to a subquery built by fn, aliased.
func (b *Builder) FromSub(fn func(*Builder), alias string) *Builder {
	sql, params, err := b.compileSub(fn)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.fromTable = "(" + sql + ") " + b.quote(alias)
	b.fromName = ""
	// FROM-subquery params hold their own slot in the final positional
	// order, after CTE params and before JOIN-subquery params, regardless
	// of when FromSub was called.
	b.fromSubParams = params
	return b
}

// addWhere appends one WHERE fragment. The connector is decided at append
// time from the current list length, so grouped sub-builders assemble their
// own connector-free lists before being parenthesized by the parent.
func (b *Builder) addWhere(connector, frag string, params ...any) {
	if !b.cfg.DisableValidation && len(b.wheres) >= b.cfg.MaxWhereConditions {
		b.setErr(validationErrf("where conditions exceed the maximum of %d", b.cfg.MaxWhereConditions))
		return
	}
	if len(b.wheres) > 0 {
		frag = connector + " " + frag
	}
	b.wheres = append(b.wheres, frag)
	b.whereParams = append(b.whereParams, params...)
}

// Where appends an equality condition combined with AND.
func (b *Builder) Where(field string, value any) *Builder {
	return b.WhereOp(field, "=", value)
}

// WhereOp appends `field op ?` combined with AND.
func (b *Builder) WhereOp(field, op string, value any) *Builder {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !comparisonOps[op] {
		b.setErr(validationErrf("unsupported operator %q", op))
		return b
	}
	b.addWhere("AND", fmt.Sprintf("%s %s ?", b.quote(field), op), value)
	return b
}

// WhereMap appends one equality condition per entry, each combined with AND.
// Entries are emitted in sorted key order so compilation stays deterministic.
func (b *Builder) WhereMap(conds map[string]any) *Builder {
	for _, field := range sortedKeys(conds) {
		b.Where(field, conds[field])
	}
	return b
}

// WhereRaw appends a raw boolean fragment combined with AND. The fragment
// bypasses escaping; its placeholders must match params.
func (b *Builder) WhereRaw(expr string, params ...any) *Builder {
	if expr == "" {
		b.setErr(validationErrf("raw where expression cannot be empty"))
		return b
	}
	b.addWhere("AND", expr, params...)
	return b
}

// WhereGroup appends a parenthesized sub-expression built by fn against a
// fresh builder, combined with AND.
func (b *Builder) WhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup("AND", fn)
}

// OrWhereGroup is WhereGroup with an OR connector.
func (b *Builder) OrWhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup("OR", fn)
}

func (b *Builder) whereGroup(connector string, fn func(*Builder)) *Builder {
	sub := b.subBuilder()
	fn(sub)
	if sub.err != nil {
		b.setErr(sub.err)
		return b
	}
	if len(sub.wheres) == 0 {
		return b
	}
	b.addWhere(connector, "("+strings.Join(sub.wheres, " ")+")", sub.whereParams...)
	return b
}

// OrWhere appends an equality condition combined with OR. With no prior
// clause it degrades to Where: an OR with nothing to disjoin is meaningless.
func (b *Builder) OrWhere(field string, value any) *Builder {
	return b.OrWhereOp(field, "=", value)
}

// OrWhereOp appends `field op ?` combined with OR.
func (b *Builder) OrWhereOp(field, op string, value any) *Builder {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !comparisonOps[op] {
		b.setErr(validationErrf("unsupported operator %q", op))
		return b
	}
	b.addWhere("OR", fmt.Sprintf("%s %s ?", b.quote(field), op), value)
	return b
}

// OrWhereRaw appends a raw boolean fragment combined with OR.
func (b *Builder) OrWhereRaw(expr string, params ...any) *Builder {
	if expr == "" {
		b.setErr(validationErrf("raw where expression cannot be empty"))
		return b
	}
	b.addWhere("OR", expr, params...)
	return b
}

func (b *Builder) whereIn(connector, field, op string, values []any) *Builder {
	if len(values) == 0 {
		b.setErr(validationErrf("%s requires at least one value", op))
		return b
	}
	phs := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	b.addWhere(connector, fmt.Sprintf("%s %s (%s)", b.quote(field), op, phs), values...)
	return b
}

// WhereIn appends `field IN (?, ...)` with one placeholder per value. An
// empty value list is a validation error.
func (b *Builder) WhereIn(field string, values ...any) *Builder {
	return b.whereIn("AND", field, "IN", values)
}

// WhereNotIn appends `field NOT IN (?, ...)`.
func (b *Builder) WhereNotIn(field string, values ...any) *Builder {
	return b.whereIn("AND", field, "NOT IN", values)
}

// OrWhereIn appends an IN condition with an OR connector.
func (b *Builder) OrWhereIn(field string, values ...any) *Builder {
	return b.whereIn("OR", field, "IN", values)
}

// WhereLike appends `field LIKE ?`.
func (b *Builder) WhereLike(field, pattern string) *Builder {
	b.addWhere("AND", b.quote(field)+" LIKE ?", pattern)
	return b
}

// WhereNotLike appends `field NOT LIKE ?`.
func (b *Builder) WhereNotLike(field, pattern string) *Builder {
	b.addWhere("AND", b.quote(field)+" NOT LIKE ?", pattern)
	return b
}

// OrWhereLike appends a LIKE condition with an OR connector, degrading to
// WhereLike when no prior clause exists (mirrors OrWhere's degradation rule).
func (b *Builder) OrWhereLike(field, pattern string) *Builder {
	b.addWhere("OR", b.quote(field)+" LIKE ?", pattern)
	return b
}

// WhereBetween appends `field BETWEEN ? AND ?`.
func (b *Builder) WhereBetween(field string, low, high any) *Builder {
	b.addWhere("AND", b.quote(field)+" BETWEEN ? AND ?", low, high)
	return b
}

// WhereNotBetween appends `field NOT BETWEEN ? AND ?`.
func (b *Builder) WhereNotBetween(field string, low, high any) *Builder {
	b.addWhere("AND", b.quote(field)+" NOT BETWEEN ? AND ?", low, high)
	return b
}

// WhereNull appends `field IS NULL`.
func (b *Builder) WhereNull(field string) *Builder {
	b.addWhere("AND", b.quote(field)+" IS NULL")
	return b
}

// WhereNotNull appends `field IS NOT NULL`.
func (b *Builder) WhereNotNull(field string) *Builder {
	b.addWhere("AND", b.quote(field)+" IS NOT NULL")
	return b
}

// compileSub builds a nested SELECT with a fresh builder and returns its
// neutral-placeholder SQL and params.
func (b *Builder) compileSub(fn func(*Builder)) (string, []any, error) {
	sub := b.subBuilder()
	fn(sub)
	return sub.compileSelect()
}

// WhereSubquery appends `field op (SELECT ...)`, splicing the subquery's
// params into the WHERE param sequence at the matching position.
func (b *Builder) WhereSubquery(field, op string, fn func(*Builder)) *Builder {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !subqueryOps[op] {
		b.setErr(validationErrf("unsupported operator %q", op))
		return b
	}
	sql, params, err := b.compileSub(fn)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.addWhere("AND", fmt.Sprintf("%s %s (%s)", b.quote(field), op, sql), params...)
	return b
}

// WhereExists appends `EXISTS (SELECT ...)`.
func (b *Builder) WhereExists(fn func(*Builder)) *Builder {
	return b.whereExists("EXISTS", fn)
}

// WhereNotExists appends `NOT EXISTS (SELECT ...)`.
func (b *Builder) WhereNotExists(fn func(*Builder)) *Builder {
	return b.whereExists("NOT EXISTS", fn)
}

func (b *Builder) whereExists(keyword string, fn func(*Builder)) *Builder {
	sql, params, err := b.compileSub(fn)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.addWhere("AND", fmt.Sprintf("%s (%s)", keyword, sql), params...)
	return b
}

func (b *Builder) addJoin(joinType, target, condition string) {
	if !b.cfg.DisableValidation && len(b.joins) >= b.cfg.MaxJoins {
		b.setErr(validationErrf("joins exceed the maximum of %d", b.cfg.MaxJoins))
		return
	}
	if condition == "" && joinType != JoinCross {
		b.setErr(validationErrf("%s requires a join condition", joinType))
		return
	}
	frag := joinType + " " + target
	if condition != "" {
		frag += " ON " + condition
	}
	b.joins = append(b.joins, frag)
}

// Join appends an INNER JOIN. The condition is a raw boolean expression of
// column comparisons and is not parameterized.
func (b *Builder) Join(table, condition string) *Builder {
	b.addJoin(JoinInner, b.quote(table), condition)
	return b
}

// LeftJoin appends a LEFT JOIN.
func (b *Builder) LeftJoin(table, condition string) *Builder {
	b.addJoin(JoinLeft, b.quote(table), condition)
	return b
}

// RightJoin appends a RIGHT JOIN.
func (b *Builder) RightJoin(table, condition string) *Builder {
	b.addJoin(JoinRight, b.quote(table), condition)
	return b
}

// FullJoin appends a FULL OUTER JOIN.
func (b *Builder) FullJoin(table, condition string) *Builder {
	b.addJoin(JoinFull, b.quote(table), condition)
	return b
}

// CrossJoin appends a CROSS JOIN; it takes no condition.
func (b *Builder) CrossJoin(table string) *Builder {
	b.addJoin(JoinCross, b.quote(table), "")
	return b
}

// JoinAlias appends a join against an aliased table.
func (b *Builder) JoinAlias(joinType, table, alias, condition string) *Builder {
	if !joinTypes[joinType] {
		b.setErr(validationErrf("invalid join type %q", joinType))
		return b
	}
	b.addJoin(joinType, b.quote(table)+" "+b.quote(alias), condition)
	return b
}

// JoinSubquery joins a compiled subquery under an alias. Its params slot
// after CTE and FROM-subquery params and before WHERE params in the final
// positional order.
func (b *Builder) JoinSubquery(fn func(*Builder), alias, condition, joinType string) *Builder {
	if !joinTypes[joinType] {
		b.setErr(validationErrf("invalid join type %q", joinType))
		return b
	}
	sql, params, err := b.compileSub(fn)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.addJoin(joinType, "("+sql+") "+b.quote(alias), condition)
	b.joinSubParams = append(b.joinSubParams, params...)
	return b
}

// GroupBy appends grouping fields.
func (b *Builder) GroupBy(fields ...string) *Builder {
	if !b.cfg.DisableValidation && len(b.groupBys)+len(fields) > b.cfg.MaxGroupByFields {
		b.setErr(validationErrf("group by fields exceed the maximum of %d", b.cfg.MaxGroupByFields))
		return b
	}
	for _, f := range fields {
		b.groupBys = append(b.groupBys, b.quote(f))
	}
	return b
}

func (b *Builder) addHaving(connector, frag string, params ...any) {
	if len(b.havings) > 0 {
		frag = connector + " " + frag
	}
	b.havings = append(b.havings, frag)
	b.havingParams = append(b.havingParams, params...)
}

// Having appends `field op ?` to the HAVING list, combined with AND.
func (b *Builder) Having(field, op string, value any) *Builder {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !comparisonOps[op] {
		b.setErr(validationErrf("unsupported operator %q", op))
		return b
	}
	b.addHaving("AND", fmt.Sprintf("%s %s ?", b.quote(field), op), value)
	return b
}

// OrHaving is Having with an OR connector, degrading like OrWhere.
func (b *Builder) OrHaving(field, op string, value any) *Builder {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !comparisonOps[op] {
		b.setErr(validationErrf("unsupported operator %q", op))
		return b
	}
	b.addHaving("OR", fmt.Sprintf("%s %s ?", b.quote(field), op), value)
	return b
}

// HavingRaw appends a raw HAVING fragment. Fragments after the first are
// always AND-prefixed; see DESIGN.md for the rationale.
func (b *Builder) HavingRaw(expr string, params ...any) *Builder {
	if expr == "" {
		b.setErr(validationErrf("raw having expression cannot be empty"))
		return b
	}
	b.addHaving("AND", expr, params...)
	return b
}

// OrderBy appends an ordering field. Direction must be ASC or DESC; an empty
// direction means ASC.
func (b *Builder) OrderBy(field, direction string) *Builder {
	if !b.cfg.DisableValidation && len(b.orderBys) >= b.cfg.MaxOrderByFields {
		b.setErr(validationErrf("order by fields exceed the maximum of %d", b.cfg.MaxOrderByFields))
		return b
	}
	direction = strings.ToUpper(strings.TrimSpace(direction))
	if direction == "" {
		direction = "ASC"
	}
	if direction != "ASC" && direction != "DESC" {
		b.setErr(validationErrf("invalid sort direction %q", direction))
		return b
	}
	b.orderBys = append(b.orderBys, b.quote(field)+" "+direction)
	return b
}

// OrderByRandom appends the backend's random ordering expression.
func (b *Builder) OrderByRandom() *Builder {
	b.orderBys = append(b.orderBys, b.dialect.RandomFunction())
	return b
}

// Limit caps the row count. Negative values are a validation error.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		b.setErr(validationErrf("limit cannot be negative"))
		return b
	}
	b.limit = n
	return b
}

// LimitOffset sets both limit and offset in one call.
func (b *Builder) LimitOffset(n, offset int) *Builder {
	return b.Limit(n).Offset(offset)
}

// Offset skips rows. Negative values are a validation error.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		b.setErr(validationErrf("offset cannot be negative"))
		return b
	}
	b.offset = n
	return b
}

// Paginate computes limit/offset from a 1-based page number.
func (b *Builder) Paginate(page, perPage int) *Builder {
	if page < 1 || perPage < 1 {
		b.setErr(validationErrf("page and perPage must be positive"))
		return b
	}
	return b.LimitOffset(perPage, (page-1)*perPage)
}

// With prepends a Common Table Expression. CTE params precede the main
// query's own params in final positional order.
func (b *Builder) With(name string, fn func(*Builder)) *Builder {
	return b.with(name, false, fn)
}

// WithRecursive prepends a recursive CTE.
func (b *Builder) WithRecursive(name string, fn func(*Builder)) *Builder {
	return b.with(name, true, fn)
}

func (b *Builder) with(name string, recursive bool, fn func(*Builder)) *Builder {
	if !b.dialect.SupportsCTE {
		b.setErr(validationErrf("common table expressions are not supported on %s", b.dialect.DriverName))
		return b
	}
	sql, params, err := b.compileSub(fn)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.ctes = append(b.ctes, b.quote(name)+" AS ("+sql+")")
	b.cteNames = append(b.cteNames, name)
	b.cteParams = append(b.cteParams, params...)
	if recursive {
		b.cteRecursive = true
	}
	return b
}

// Union appends a `UNION (SELECT ...)` suffix.
func (b *Builder) Union(fn func(*Builder)) *Builder {
	return b.union("UNION", fn)
}

// UnionAll appends a `UNION ALL (SELECT ...)` suffix.
func (b *Builder) UnionAll(fn func(*Builder)) *Builder {
	return b.union("UNION ALL", fn)
}

func (b *Builder) union(keyword string, fn func(*Builder)) *Builder {
	sql, params, err := b.compileSub(fn)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.unions = append(b.unions, keyword+" ("+sql+")")
	b.unionParams = append(b.unionParams, params...)
	return b
}

// Set accumulates one column assignment for a later Update call.
func (b *Builder) Set(field string, value any) *Builder {
	b.setCols = append(b.setCols, field)
	b.setVals = append(b.setVals, value)
	return b
}

// SetMap accumulates column assignments in sorted key order.
func (b *Builder) SetMap(data map[string]any) *Builder {
	for _, field := range sortedKeys(data) {
		b.Set(field, data[field])
	}
	return b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
