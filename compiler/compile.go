package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sheetflow/sheetflow/model"
)

// hasPrimaryKey reports whether any column's Extra declares a primary key
// (case-insensitive substring match, per §4.7.4).
func hasPrimaryKey(dtypes map[string]model.ColumnType) bool {
	for _, dt := range dtypes {
		if strings.Contains(strings.ToLower(dt.Extra), "primary key") {
			return true
		}
	}
	return false
}

// Compile runs the full pipeline (§4.7): it emits per-column DDL from the
// AST, builds the column dependency graph, rejects cyclic input, and
// assembles the level-ordered CREATE TABLE / ALTER TABLE statements.
//
// cols maps declared column name → formula AST. columns maps a raw cell
// key (e.g. "A1") to the declared column name it feeds — the resolution
// table every `cell`/`cell-range`/`reference-node` emitter consults. dtypes
// gives the SQL type and extra modifiers for every declared column.
func Compile(cols map[string]model.Node, columns ColumnResolver, dtypes map[string]model.ColumnType, tableName string) model.CompileResult {
	g := buildGraph(cols, columns)
	if g.hasCycle() {
		return model.CompileResult{Content: map[int][]model.LevelStatement{}, Error: "cyclic dependencies"}
	}

	emitted := make(map[string]model.DDLNode, len(cols))
	for name, ast := range cols {
		emitted[name] = emitNode(ast, columns)
	}

	levels := g.levels()

	content := map[int][]model.LevelStatement{}

	var level0Cols []string
	var otherCols []string
	for name, lvl := range levels {
		if lvl == 0 {
			level0Cols = append(level0Cols, name)
		} else {
			otherCols = append(otherCols, name)
		}
	}
	sort.Strings(level0Cols)

	level0Types := make(map[string]model.ColumnType, len(level0Cols))
	for _, name := range level0Cols {
		level0Types[name] = dtypes[name]
	}
	addPK := !hasPrimaryKey(level0Types)

	content[0] = []model.LevelStatement{buildCreateTable(tableName, level0Cols, dtypes, addPK)}

	sort.Slice(otherCols, func(i, j int) bool {
		if levels[otherCols[i]] != levels[otherCols[j]] {
			return levels[otherCols[i]] < levels[otherCols[j]]
		}
		return otherCols[i] < otherCols[j]
	})

	for _, name := range otherCols {
		lvl := levels[name]
		stmt := buildAlterTable(tableName, name, dtypes[name], emitted[name])
		content[lvl] = append(content[lvl], stmt)
	}

	return model.CompileResult{Content: content}
}

func buildCreateTable(tableName string, level0Cols []string, dtypes map[string]model.ColumnType, addPK bool) model.LevelStatement {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", tableName)

	columns := make([]string, 0, len(level0Cols)+1)
	if addPK {
		b.WriteString("id SERIAL PRIMARY KEY, ")
		columns = append(columns, "id")
	}

	parts := make([]string, 0, len(level0Cols))
	for _, col := range level0Cols {
		dt := dtypes[col]
		part := strings.TrimSpace(fmt.Sprintf("%s %s %s", col, dt.Type, dt.Extra))
		parts = append(parts, part)
		columns = append(columns, col)
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(");")

	return model.LevelStatement{SQL: b.String(), Columns: columns}
}

func buildAlterTable(tableName, col string, dt model.ColumnType, ddl model.DDLNode) model.LevelStatement {
	expr := ddl.SQL
	if ddl.Error != "" {
		expr = ""
	}
	extra := strings.TrimSpace(dt.Extra)
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s GENERATED ALWAYS AS (%s) STORED", tableName, col, dt.Type, expr)
	if extra != "" {
		sql += " " + extra
	}
	sql += ";"
	return model.LevelStatement{SQL: sql, Columns: []string{col}}
}
