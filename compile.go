package sqlkit

import (
	"strings"
)

// compileSelect assembles the SELECT statement with neutral ? placeholders
// and returns it alongside the full positional param sequence. Clause order
// is fixed: CTE prefix, SELECT [DISTINCT], FROM, joins, WHERE, GROUP BY,
// HAVING, ORDER BY, limit/offset, UNION suffix.
func (b *Builder) compileSelect() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	from, err := b.resolveFrom()
	if err != nil {
		return "", nil, err
	}

	// Param concatenation mirrors the emission order of the sections below,
	// not the order the mutators ran in.
	params := make([]any, 0,
		len(b.cteParams)+len(b.fromSubParams)+len(b.joinSubParams)+
			len(b.whereParams)+len(b.havingParams)+len(b.unionParams))
	params = append(params, b.cteParams...)
	params = append(params, b.fromSubParams...)
	params = append(params, b.joinSubParams...)
	params = append(params, b.whereParams...)
	params = append(params, b.havingParams...)
	params = append(params, b.unionParams...)

	key, keyErr := b.stateKey(from).encode()
	if keyErr == nil {
		if sql, ok := b.cache.Get(key); ok {
			return sql, params, nil
		}
	}

	var sections []string
	if len(b.ctes) > 0 {
		with := "WITH "
		if b.cteRecursive {
			with = "WITH RECURSIVE "
		}
		sections = append(sections, with+strings.Join(b.ctes, ", "))
	}

	sel := "SELECT "
	if b.distinct {
		sel = "SELECT DISTINCT "
	}
	sections = append(sections, sel+strings.Join(b.selectFields, ", "))
	sections = append(sections, "FROM "+from)
	sections = append(sections, b.joins...)

	if len(b.wheres) > 0 {
		sections = append(sections, "WHERE "+strings.Join(b.wheres, " "))
	}
	if len(b.groupBys) > 0 {
		sections = append(sections, "GROUP BY "+strings.Join(b.groupBys, ", "))
	}
	if len(b.havings) > 0 {
		sections = append(sections, "HAVING "+strings.Join(b.havings, " "))
	}
	if len(b.orderBys) > 0 {
		sections = append(sections, "ORDER BY "+strings.Join(b.orderBys, ", "))
	}
	if b.limit >= 0 {
		sections = append(sections, b.dialect.LimitSyntax(b.limit, b.offset))
	}
	sections = append(sections, b.unions...)

	sql := strings.Join(sections, " ")
	if keyErr == nil {
		b.cache.Put(key, sql)
	}
	return sql, params, nil
}

// resolveFrom finalizes the FROM text. Plain table names are quoted here and
// schema-qualified unless they refer to a declared CTE.
func (b *Builder) resolveFrom() (string, error) {
	if b.fromTable != "" {
		return b.fromTable, nil
	}
	if b.fromName == "" {
		return "", compilationErrf("select requires a table: call From first")
	}
	name := b.fromName
	isCTE := false
	for _, cte := range b.cteNames {
		if cte == name {
			isCTE = true
			break
		}
	}
	if !isCTE {
		name = b.dialect.QualifyTable(name, b.cfg.Schema)
	}
	return b.dialect.QuoteIdentifier(name)
}

func (b *Builder) stateKey(from string) stateKey {
	return stateKey{
		Driver:    b.dialect.DriverName,
		Distinct:  b.distinct,
		Select:    b.selectFields,
		From:      from,
		Joins:     b.joins,
		Wheres:    b.wheres,
		GroupBys:  b.groupBys,
		Havings:   b.havings,
		OrderBys:  b.orderBys,
		Limit:     b.limit,
		Offset:    b.offset,
		CTEs:      b.ctes,
		Recursive: b.cteRecursive,
		Unions:    b.unions,
	}
}

// ToSQL compiles the accumulated SELECT state without executing or resetting
// it. The returned SQL uses the backend's native placeholder syntax.
func (b *Builder) ToSQL() (string, []any, error) {
	sql, params, err := b.compileSelect()
	if err != nil {
		return "", nil, err
	}
	return b.dialect.ConvertPlaceholders(sql), params, nil
}

// rowColumns returns the row's column names in sorted order, quoted and raw.
func (b *Builder) rowColumns(row Row) (quoted []string, names []string) {
	names = sortedKeys(row)
	quoted = make([]string, 0, len(names))
	for _, c := range names {
		quoted = append(quoted, b.quote(c))
	}
	return quoted, names
}

// compileInsert builds a single or multi row INSERT with neutral
// placeholders. All rows must share an identical field set.
func (b *Builder) compileInsert(table string, rows []Row) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if table == "" {
		return "", nil, validationErrf("insert requires a table")
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil, validationErrf("insert requires at least one row with data")
	}
	quoted, names := b.rowColumns(rows[0])
	for i, row := range rows[1:] {
		if len(row) != len(names) {
			return "", nil, validationErrf("insert row %d has a different field set", i+1)
		}
		for _, c := range names {
			if _, ok := row[c]; !ok {
				return "", nil, validationErrf("insert row %d is missing field %q", i+1, c)
			}
		}
	}

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(names)), ",") + ")"
	tuples := make([]string, len(rows))
	params := make([]any, 0, len(rows)*len(names))
	for i, row := range rows {
		tuples[i] = tuple
		for _, c := range names {
			params = append(params, row[c])
		}
	}

	sql := "INSERT INTO " + b.quote(table) +
		" (" + strings.Join(quoted, ",") + ") VALUES " + strings.Join(tuples, ",")
	if b.dialect.SupportsReturning {
		sql += " RETURNING *"
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return sql, params, nil
}

// compileUpsert builds the backend-specific insert-or-update statement.
// MySQL-family emits ON DUPLICATE KEY UPDATE and ignores conflictCols;
// Postgres requires conflictCols and emits ON CONFLICT ... DO UPDATE, or
// DO NOTHING when every column is a conflict column.
func (b *Builder) compileUpsert(table string, row Row, conflictCols []string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if table == "" {
		return "", nil, validationErrf("upsert requires a table")
	}
	if len(row) == 0 {
		return "", nil, validationErrf("upsert requires data")
	}
	quoted, names := b.rowColumns(row)
	params := make([]any, 0, len(names))
	for _, c := range names {
		params = append(params, row[c])
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(names)), ",") + ")"
	sql := "INSERT INTO " + b.quote(table) +
		" (" + strings.Join(quoted, ",") + ") VALUES " + tuple

	if b.dialect.SupportsOnConflict {
		if len(conflictCols) == 0 {
			return "", nil, validationErrf("upsert on %s requires conflict columns", b.dialect.DriverName)
		}
		conflictSet := make(map[string]bool, len(conflictCols))
		quotedConflict := make([]string, 0, len(conflictCols))
		for _, c := range conflictCols {
			conflictSet[c] = true
			quotedConflict = append(quotedConflict, b.quote(c))
		}
		var updates []string
		for _, c := range names {
			if conflictSet[c] {
				continue
			}
			qc := b.quote(c)
			updates = append(updates, qc+" = EXCLUDED."+qc)
		}
		sql += " ON CONFLICT (" + strings.Join(quotedConflict, ",") + ")"
		if len(updates) == 0 {
			sql += " DO NOTHING"
		} else {
			sql += " DO UPDATE SET " + strings.Join(updates, ", ")
		}
		if b.dialect.SupportsReturning {
			sql += " RETURNING *"
		}
	} else {
		var updates []string
		for _, c := range names {
			qc := b.quote(c)
			updates = append(updates, qc+" = VALUES("+qc+")")
		}
		sql += " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return sql, params, nil
}

// compileUpdate builds an UPDATE from explicit assignments plus the
// accumulated WHERE state. Assignment params precede WHERE params, matching
// placeholder order.
func (b *Builder) compileUpdate(table string, cols []string, vals []any) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if table == "" {
		return "", nil, validationErrf("update requires a table")
	}
	if len(cols) == 0 {
		return "", nil, validationErrf("update requires data: call Set or pass a data map")
	}
	assignments := make([]string, 0, len(cols))
	for _, c := range cols {
		assignments = append(assignments, b.quote(c)+" = ?")
	}
	sql := "UPDATE " + b.quote(table) + " SET " + strings.Join(assignments, ", ")
	params := append(append([]any(nil), vals...), b.whereParams...)
	if len(b.wheres) > 0 {
		sql += " WHERE " + strings.Join(b.wheres, " ")
	}
	if b.dialect.SupportsReturning {
		sql += " RETURNING *"
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return sql, params, nil
}

// compileDelete builds a DELETE from the accumulated WHERE state.
func (b *Builder) compileDelete(table string) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if table == "" {
		return "", nil, validationErrf("delete requires a table")
	}
	sql := "DELETE FROM " + b.quote(table)
	params := append([]any(nil), b.whereParams...)
	if len(b.wheres) > 0 {
		sql += " WHERE " + strings.Join(b.wheres, " ")
	}
	if b.dialect.SupportsReturning {
		sql += " RETURNING *"
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return sql, params, nil
}

// compileCounterUpdate builds `field = field ± ?` for Increment/Decrement.
func (b *Builder) compileCounterUpdate(table, field, op string, amount int) (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if table == "" {
		return "", nil, validationErrf("%s requires a table", strings.ToLower(op))
	}
	if amount < 0 {
		return "", nil, validationErrf("amount cannot be negative")
	}
	qf := b.quote(field)
	sql := "UPDATE " + b.quote(table) + " SET " + qf + " = " + qf + " " + op + " ?"
	params := append([]any{amount}, b.whereParams...)
	if len(b.wheres) > 0 {
		sql += " WHERE " + strings.Join(b.wheres, " ")
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return sql, params, nil
}
